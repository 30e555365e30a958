package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VEVENT
UID:single-1@example.com
DTSTAMP:20250101T000000Z
SUMMARY:Poetry Slam
DESCRIPTION:Bring a poem\, any poem
LOCATION:The Cellar
GEO:30.27;-97.74
URL:https://example.com/slam
DTSTART;TZID=America/New_York:20250301T190000
DTEND;TZID=America/New_York:20250301T210000
LAST-MODIFIED:20250215T120000Z
ORGANIZER;CN=Host:mailto:Host@Example.com
ATTENDEE;CN=Ada Lovelace;PARTSTAT=ACCEPTED:mailto:Ada@Example.com
ATTENDEE;PARTSTAT=TENTATIVE:mailto:bob@example.com
STATUS:CONFIRMED
END:VEVENT
BEGIN:VEVENT
UID:weekly-1@example.com
DTSTAMP:20250101T000000Z
SUMMARY:Weekly Jam
DTSTART;TZID=America/New_York:20250106T190000
DTEND;TZID=America/New_York:20250106T200000
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE;TZID=America/New_York:20250113T190000
END:VEVENT
BEGIN:VEVENT
UID:weekly-1@example.com
DTSTAMP:20250101T000000Z
SUMMARY:Weekly Jam (moved)
RECURRENCE-ID;TZID=America/New_York:20250120T190000
DTSTART;TZID=America/New_York:20250120T200000
DTEND;TZID=America/New_York:20250120T210000
END:VEVENT
BEGIN:VEVENT
UID:floating-1@example.com
DTSTAMP:20250101T000000Z
SUMMARY:Floating Brunch
DTSTART:20250302T110000
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250101T000000Z
SUMMARY:No UID
DTSTART:20250302T110000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func findIcalEvent(events []types.IcalEvent, uid, instance string) *types.IcalEvent {
	for i := range events {
		if events[i].UID == uid && events[i].InstanceKey == instance {
			return &events[i]
		}
	}
	return nil
}

func TestParseIcalFeed(t *testing.T) {
	rangeStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	events, err := ParseIcalFeed([]byte(crlf(testFeed)), rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// single + 3 weekly occurrences (one excluded) + floating; the UID-less VEVENT is dropped
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d: %+v", len(events), events)
	}

	single := findIcalEvent(events, "single-1@example.com", "")
	if single == nil {
		t.Fatalf("single event missing")
	}
	if single.Summary != "Poetry Slam" {
		t.Errorf("unexpected summary %q", single.Summary)
	}
	if single.Description == nil || *single.Description != "Bring a poem, any poem" {
		t.Errorf("unexpected description %v", single.Description)
	}
	if single.TZID != "America/New_York" || single.Floating {
		t.Errorf("expected zoned start, got tzid=%q floating=%v", single.TZID, single.Floating)
	}
	if !single.Start.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", single.Start)
	}
	if single.Latitude == nil || *single.Latitude != 30.27 || single.Longitude == nil || *single.Longitude != -97.74 {
		t.Errorf("unexpected GEO %v %v", single.Latitude, single.Longitude)
	}
	if single.LastModified == nil || !single.LastModified.Equal(time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected LAST-MODIFIED %v", single.LastModified)
	}
	if single.Organizer == nil || *single.Organizer != "host@example.com" {
		t.Errorf("unexpected organizer %v", single.Organizer)
	}
	if len(single.Attendees) != 2 {
		t.Fatalf("expected 2 attendees, got %d", len(single.Attendees))
	}
	if single.Attendees[0].Email != "ada@example.com" || single.Attendees[0].Name != "Ada Lovelace" || single.Attendees[0].PartStat != "ACCEPTED" {
		t.Errorf("unexpected attendee %+v", single.Attendees[0])
	}

	first := findIcalEvent(events, "weekly-1@example.com", "2025-01-07T00:00:00Z")
	if first == nil || first.Summary != "Weekly Jam" {
		t.Errorf("expected first weekly occurrence, got %+v", first)
	}
	if first != nil && first.End.Sub(first.Start) != time.Hour {
		t.Errorf("expected occurrence to keep the master duration")
	}
	if findIcalEvent(events, "weekly-1@example.com", "2025-01-14T00:00:00Z") != nil {
		t.Errorf("EXDATE occurrence should not be emitted")
	}
	moved := findIcalEvent(events, "weekly-1@example.com", "2025-01-21T00:00:00Z")
	if moved == nil || moved.Summary != "Weekly Jam (moved)" {
		t.Fatalf("expected overridden occurrence, got %+v", moved)
	}
	if !moved.Start.Equal(time.Date(2025, 1, 21, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("override should carry its own start, got %v", moved.Start)
	}
	if findIcalEvent(events, "weekly-1@example.com", "2025-01-28T00:00:00Z") == nil {
		t.Errorf("expected last weekly occurrence")
	}

	floating := findIcalEvent(events, "floating-1@example.com", "")
	if floating == nil || !floating.Floating || floating.Status != "CANCELLED" {
		t.Errorf("unexpected floating event %+v", floating)
	}
}

func TestParseIcalFeedHorizon(t *testing.T) {
	rangeStart := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)

	events, err := ParseIcalFeed([]byte(crlf(testFeed)), rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, ev := range events {
		if ev.UID == "weekly-1@example.com" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one weekly occurrence inside the horizon, got %d", count)
	}
}

func TestParseIcalFeedRejectsNonCalendar(t *testing.T) {
	if _, err := ParseIcalFeed([]byte("<html>nope</html>"), time.Now(), time.Now()); err == nil {
		t.Errorf("expected error for non-calendar body")
	}
}

func TestIcalServiceFetchEvents(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		attendees bool
		wantErr   error
		wantCount int
	}{
		{name: "ok with attendees", status: http.StatusOK, body: crlf(testFeed), attendees: true, wantCount: 5},
		{name: "ok without attendees", status: http.StatusOK, body: crlf(testFeed), wantCount: 5},
		{name: "server error", status: http.StatusBadGateway, body: "", wantErr: types.ErrSourceUnavailable},
		{name: "not a calendar", status: http.StatusOK, body: "<html></html>", wantErr: types.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			svc := NewIcalService(server.Client(), 90)
			svc.now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }

			cal := types.CalendarConfig{ID: "feed", Provider: constants.PROVIDER_ICAL, FeedURL: server.URL + "/private-token.ics"}
			bundles, err := svc.FetchEvents(context.Background(), cal, types.FeatureFlags{AttendeeSync: tt.attendees})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if strings.Contains(err.Error(), "private-token") {
					t.Errorf("error leaks the feed url: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(bundles) != tt.wantCount {
				t.Fatalf("expected %d bundles, got %d", tt.wantCount, len(bundles))
			}
			for _, b := range bundles {
				if b.Provider != constants.PROVIDER_ICAL || b.Ical == nil {
					t.Fatalf("unexpected bundle %+v", b)
				}
				if b.Ical.UID == "single-1@example.com" && (len(b.Ical.Attendees) > 0) != tt.attendees {
					t.Errorf("attendees present=%v, want %v", len(b.Ical.Attendees) > 0, tt.attendees)
				}
			}
		})
	}
}

func TestIcalServiceUnreachable(t *testing.T) {
	svc := NewIcalService(nil, 0)
	cal := types.CalendarConfig{ID: "feed", Provider: constants.PROVIDER_ICAL, FeedURL: "http://127.0.0.1:1/secret.ics"}
	_, err := svc.FetchEvents(context.Background(), cal, types.FeatureFlags{})
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}
