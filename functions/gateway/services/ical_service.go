package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

// IcalService reads public .ics feeds. Recurring events are expanded into one
// IcalEvent per occurrence inside the sync horizon.
type IcalService struct {
	client  *http.Client
	horizon time.Duration
	now     func() time.Time
}

func NewIcalService(client *http.Client, horizonDays int) *IcalService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if horizonDays <= 0 {
		horizonDays = constants.DEFAULT_SYNC_HORIZON_DAYS
	}
	return &IcalService{
		client:  client,
		horizon: time.Duration(horizonDays) * 24 * time.Hour,
		now:     time.Now,
	}
}

func (s *IcalService) Provider() string {
	return constants.PROVIDER_ICAL
}

// FetchEvents downloads and parses the feed. Attendee lines travel inside each
// IcalEvent; flags.AttendeeSync is applied by stripping them.
func (s *IcalService) FetchEvents(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error) {
	body, err := s.download(ctx, cal)
	if err != nil {
		return nil, err
	}

	now := s.now()
	events, err := ParseIcalFeed(body, now.Add(-24*time.Hour), now.Add(s.horizon))
	if err != nil {
		return nil, types.NewInvalidPayload(constants.PROVIDER_ICAL, cal.ID, err)
	}

	bundles := make([]types.RawEventBundle, 0, len(events))
	for i := range events {
		if !flags.AttendeeSync {
			events[i].Attendees = nil
		}
		bundles = append(bundles, types.RawEventBundle{
			Provider: constants.PROVIDER_ICAL,
			Ical:     &events[i],
		})
	}

	log.Printf("ical calendar %s (%s): fetched %d events", cal.ID, helpers.RedactURL(cal.FeedURL), len(bundles))
	return bundles, nil
}

func (s *IcalService) download(ctx context.Context, cal types.CalendarConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cal.FeedURL, nil)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("building request for %s: %w", helpers.RedactURL(cal.FeedURL), err))
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("GET %s failed", helpers.RedactURL(cal.FeedURL)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("reading %s: %w", helpers.RedactURL(cal.FeedURL), err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("GET %s returned %d", helpers.RedactURL(cal.FeedURL), resp.StatusCode))
	}
	return body, nil
}

// ParseIcalFeed parses a VCALENDAR body. Non-recurring events are returned as-is;
// recurring masters are expanded into occurrences starting inside [rangeStart, rangeEnd].
// A VEVENT that cannot be parsed is logged and skipped.
func ParseIcalFeed(body []byte, rangeStart, rangeEnd time.Time) ([]types.IcalEvent, error) {
	if !bytes.Contains(body, []byte(constants.ICAL_CALENDAR_MARKER)) {
		return nil, fmt.Errorf("body is not an iCalendar document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var masters []types.IcalEvent
	overrides := map[string][]types.IcalEvent{}
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			log.Printf("WARN: skipping VEVENT: %v", err)
			continue
		}
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		masters = append(masters, ev)
	}

	out := make([]types.IcalEvent, 0, len(masters))
	expanded := map[string]bool{}
	for _, master := range masters {
		if master.RRule == "" {
			out = append(out, master)
			continue
		}
		expanded[master.UID] = true
		out = append(out, expandRecurring(master, overrides[master.UID], rangeStart, rangeEnd)...)
	}

	// Overrides whose master is absent from the feed stand alone.
	for uid, orphans := range overrides {
		if expanded[uid] {
			continue
		}
		for _, ev := range orphans {
			ev.InstanceKey = instanceKey(*ev.RecurrenceID)
			out = append(out, ev)
		}
	}

	return out, nil
}

func expandRecurring(master types.IcalEvent, overrides []types.IcalEvent, rangeStart, rangeEnd time.Time) []types.IcalEvent {
	rule, err := rrule.StrToRRule(master.RRule)
	if err != nil {
		log.Printf("WARN: VEVENT %s has an unparseable RRULE %q: %v", master.UID, master.RRule, err)
		return nil
	}
	rule.DTStart(master.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range master.ExDates {
		set.ExDate(ex.In(master.Start.Location()))
	}

	starts := set.Between(rangeStart.In(master.Start.Location()), rangeEnd.In(master.Start.Location()), true)
	if len(starts) > constants.ICAL_MAX_OCCURRENCES_PER_EVENT {
		log.Printf("WARN: VEVENT %s truncated to %d occurrences", master.UID, constants.ICAL_MAX_OCCURRENCES_PER_EVENT)
		starts = starts[:constants.ICAL_MAX_OCCURRENCES_PER_EVENT]
	}

	duration := master.End.Sub(master.Start)
	out := make([]types.IcalEvent, 0, len(starts))
	for _, start := range starts {
		occ := master
		if override, ok := findOverride(overrides, start); ok {
			occ = override
		} else {
			occ.Start = start
			occ.End = start.Add(duration)
		}
		occ.RRule = ""
		occ.ExDates = nil
		occ.RecurrenceID = nil
		occ.InstanceKey = instanceKey(start)
		out = append(out, occ)
	}
	return out
}

func findOverride(overrides []types.IcalEvent, start time.Time) (types.IcalEvent, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return types.IcalEvent{}, false
}

func instanceKey(start time.Time) string {
	return start.UTC().Format(time.RFC3339)
}

func parseVEvent(ve *ical.VEvent) (types.IcalEvent, error) {
	var ev types.IcalEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return ev, fmt.Errorf("missing UID")
	}
	ev.UID = strings.TrimSpace(uid.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = strings.TrimSpace(p.Value)
	}
	ev.Description = textProperty(ve, ical.ComponentPropertyDescription)
	ev.Location = textProperty(ve, ical.ComponentPropertyLocation)
	ev.URL = textProperty(ve, ical.ComponentPropertyUrl)
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		ev.Organizer = helpers.NonEmptyPtr(calAddress(p.Value))
	}
	if p := ve.GetProperty(ical.ComponentPropertyGeo); p != nil {
		ev.Latitude, ev.Longitude = parseGeo(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("VEVENT %s missing DTSTART", ev.UID)
	}
	start, err := parseDateProperty(dtStart)
	if err != nil {
		return ev, fmt.Errorf("VEVENT %s DTSTART: %w", ev.UID, err)
	}
	ev.Start = start.t
	ev.AllDay = start.allDay
	ev.Floating = start.floating
	ev.TZID = start.tzid

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, err := parseDateProperty(ve.GetProperty(ical.ComponentPropertyDtEnd))
		if err != nil {
			return ev, fmt.Errorf("VEVENT %s DTEND: %w", ev.UID, err)
		}
		ev.End = end.t
	case ev.AllDay:
		ev.End = ev.Start.Add(24 * time.Hour)
	default:
		ev.End = ev.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		if lm, err := parseDateProperty(p); err == nil {
			t := lm.t.UTC()
			ev.LastModified = &t
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ex, err := parseDateValue(part, firstParam(p.ICalParameters, "TZID"), ev.Start.Location())
			if err == nil {
				ev.ExDates = append(ev.ExDates, ex.t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if rid, err := parseDateProperty(p); err == nil {
			ev.RecurrenceID = &rid.t
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		email := calAddress(p.Value)
		if email == "" {
			continue
		}
		ev.Attendees = append(ev.Attendees, types.IcalAttendee{
			Email:    email,
			Name:     firstParam(p.ICalParameters, "CN"),
			PartStat: firstParam(p.ICalParameters, "PARTSTAT"),
		})
	}
	sort.SliceStable(ev.Attendees, func(i, j int) bool {
		return ev.Attendees[i].Email < ev.Attendees[j].Email
	})

	return ev, nil
}

type icalTime struct {
	t        time.Time
	allDay   bool
	floating bool
	tzid     string
}

func parseDateProperty(p *ical.IANAProperty) (icalTime, error) {
	return parseDateValue(p.Value, firstParam(p.ICalParameters, "TZID"), nil)
}

// parseDateValue reads DATE and DATE-TIME forms. A DATE-TIME with neither a Z suffix
// nor a loadable TZID is floating and carries its wall clock in UTC. fallback, when
// set, is used for floating values instead.
func parseDateValue(raw, tzid string, fallback *time.Location) (icalTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return icalTime{}, fmt.Errorf("empty date value")
	}

	if strings.HasSuffix(raw, "Z") {
		t, err := time.Parse("20060102T150405Z", raw)
		return icalTime{t: t.UTC()}, err
	}

	loc := time.UTC
	floating := true
	if tzid != "" {
		if tzLoc, err := time.LoadLocation(tzid); err == nil {
			loc = tzLoc
			floating = false
		} else {
			log.Printf("WARN: unknown TZID %q, treating time as floating", tzid)
			tzid = ""
		}
	} else if fallback != nil {
		loc = fallback
	}

	if !strings.Contains(raw, "T") {
		t, err := time.ParseInLocation("20060102", raw, loc)
		return icalTime{t: t, allDay: true, floating: floating, tzid: tzid}, err
	}
	t, err := time.ParseInLocation("20060102T150405", raw, loc)
	return icalTime{t: t, floating: floating, tzid: tzid}, err
}

func firstParam(params map[string][]string, name string) string {
	if vals, ok := params[name]; ok && len(vals) > 0 {
		return strings.Trim(vals[0], `"`)
	}
	return ""
}

func textProperty(ve *ical.VEvent, prop ical.ComponentProperty) *string {
	p := ve.GetProperty(prop)
	if p == nil {
		return nil
	}
	val := strings.TrimSpace(p.Value)
	return &val
}

func calAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "mailto:") {
		raw = raw[7:]
	}
	return strings.ToLower(raw)
}

func parseGeo(raw string) (*float64, *float64) {
	parts := strings.Split(raw, ";")
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, nil
	}
	return &lat, &lng
}
