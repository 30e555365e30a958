package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

func TestMain(m *testing.M) {
	os.Setenv("GO_ENV", constants.GO_TEST_ENV)
	os.Exit(m.Run())
}

type fakeRunner struct {
	gotOpts   types.SyncOptions
	run       *types.SyncRun
	calendars []types.CalendarConfig
}

func (f *fakeRunner) RunSync(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error) {
	f.gotOpts = opts
	return f.run, nil
}

func (f *fakeRunner) ListCalendars(ctx context.Context) ([]types.CalendarConfig, error) {
	return f.calendars, nil
}

func (f *fakeRunner) FeatureFlags() types.FeatureFlags { return types.FeatureFlags{EventSync: true} }

func (f *fakeRunner) Providers() []string {
	return []string{constants.PROVIDER_ICAL, constants.PROVIDER_LUMA}
}

func runCLI(t *testing.T, runner *fakeRunner, args ...string) (string, error) {
	t.Helper()
	app := newApp(func(ctx context.Context) interfaces.SyncRunnerInterface { return runner })
	var out bytes.Buffer
	app.Writer = &out
	err := app.Run(append([]string{"eventsync"}, args...))
	return out.String(), err
}

func TestSyncCommandFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want types.SyncOptions
	}{
		{"defaults to dry run", []string{"sync"}, types.SyncOptions{DryRun: true}},
		{"apply with filter", []string{"sync", "--apply", "--calendar", "cal-1", "--verbose"}, types.SyncOptions{CalendarFilter: "cal-1", Verbose: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{run: &types.SyncRun{ID: "run-1", Mode: tt.want.Mode(), Success: true}}
			out, err := runCLI(t, runner, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if runner.gotOpts != tt.want {
				t.Errorf("expected options %+v, got %+v", tt.want, runner.gotOpts)
			}
			var printed types.SyncRun
			if err := json.Unmarshal([]byte(out), &printed); err != nil {
				t.Fatalf("expected sync run JSON, got %q: %v", out, err)
			}
			if printed.ID != "run-1" {
				t.Errorf("expected run-1, got %s", printed.ID)
			}
		})
	}
}

func TestSyncCommandFailsWhenCalendarsFail(t *testing.T) {
	run := &types.SyncRun{ID: "run-2", Mode: types.SyncModeApply}
	run.Stats.Totals = types.SyncTotals{Calendars: 2, CalendarsFailed: 1}
	_, err := runCLI(t, &fakeRunner{run: run}, "sync", "--apply")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 calendars failed") {
		t.Errorf("expected failure summary, got %v", err)
	}
}

func TestCalendarsCommandMasksCredentials(t *testing.T) {
	runner := &fakeRunner{calendars: []types.CalendarConfig{
		{ID: "cal-luma", Provider: constants.PROVIDER_LUMA, Name: "Shows", APIKey: "secret-key-1234"},
		{ID: "cal-ics", Provider: constants.PROVIDER_ICAL, FeedURL: "https://example.com/private/feed.ics"},
	}}
	out, err := runCLI(t, runner, "calendars")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "secret-key") || strings.Contains(out, "private") {
		t.Errorf("credentials leaked: %s", out)
	}
	for _, want := range []string{"cal-luma", "cal-ics", "1234", "Shows", "example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output: %s", want, out)
		}
	}
}
