package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zoworld/eventsync/functions/gateway/types"
)

type calendarsFile struct {
	Calendars []types.CalendarConfig `yaml:"calendars"`
}

// CalendarConfigService reads the calendar list from a YAML file. The file is re-read
// when its modification time changes.
type CalendarConfigService struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	cached  []types.CalendarConfig
}

func NewCalendarConfigService(path string) *CalendarConfigService {
	return &CalendarConfigService{path: path}
}

func (s *CalendarConfigService) ListConfiguredCalendars(ctx context.Context) ([]types.CalendarConfig, error) {
	if s.path == "" {
		log.Printf("WARN: no calendars file configured")
		return []types.CalendarConfig{}, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading calendars file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return append([]types.CalendarConfig(nil), s.cached...), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading calendars file: %w", err)
	}
	calendars, err := ParseCalendarsYAML(data)
	if err != nil {
		return nil, err
	}

	s.cached = calendars
	s.modTime = info.ModTime()
	log.Printf("loaded %d calendars from %s", len(calendars), s.path)
	return append([]types.CalendarConfig(nil), calendars...), nil
}

// ParseCalendarsYAML decodes and validates a calendar list. ${VAR} references in
// credentials are expanded from the environment.
func ParseCalendarsYAML(data []byte) ([]types.CalendarConfig, error) {
	var file calendarsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing calendars file: %w", err)
	}

	seen := map[string]bool{}
	calendars := make([]types.CalendarConfig, 0, len(file.Calendars))
	for i, cal := range file.Calendars {
		cal.ID = strings.TrimSpace(cal.ID)
		cal.Provider = strings.ToLower(strings.TrimSpace(cal.Provider))
		cal.APIKey = strings.TrimSpace(os.ExpandEnv(cal.APIKey))
		cal.FeedURL = strings.TrimSpace(os.ExpandEnv(cal.FeedURL))

		if err := validate.Struct(cal); err != nil {
			return nil, fmt.Errorf("calendar #%d (%s): %w", i+1, cal.ID, err)
		}
		if cal.DefaultTimezone != "" {
			if _, err := time.LoadLocation(cal.DefaultTimezone); err != nil {
				return nil, fmt.Errorf("calendar %s: default_timezone %q: %w", cal.ID, cal.DefaultTimezone, err)
			}
		}
		if seen[cal.ID] {
			return nil, fmt.Errorf("calendar id %q is configured twice", cal.ID)
		}
		seen[cal.ID] = true
		calendars = append(calendars, cal)
	}
	return calendars, nil
}
