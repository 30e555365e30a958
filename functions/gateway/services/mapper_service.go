package services

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-playground/validator/v10"
	"github.com/itlightning/dateparse"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

var validate *validator.Validate = validator.New()

// Luma guest approval_status -> canonical status. Anything not listed falls back to
// invited with a warning.
var lumaStatusTable = map[string]types.RsvpStatus{
	"approved":         types.RsvpStatusGoing,
	"going":            types.RsvpStatusGoing,
	"checked_in":       types.RsvpStatusGoing,
	"maybe":            types.RsvpStatusMaybe,
	"declined":         types.RsvpStatusDeclined,
	"not_going":        types.RsvpStatusDeclined,
	"cancelled":        types.RsvpStatusDeclined,
	"canceled":         types.RsvpStatusDeclined,
	"waitlist":         types.RsvpStatusWaitlisted,
	"pending_approval": types.RsvpStatusWaitlisted,
	"invited":          types.RsvpStatusInvited,
}

// iCal ATTENDEE;PARTSTAT -> canonical status.
var icalPartStatTable = map[string]types.RsvpStatus{
	"ACCEPTED":     types.RsvpStatusGoing,
	"TENTATIVE":    types.RsvpStatusMaybe,
	"DECLINED":     types.RsvpStatusDeclined,
	"NEEDS-ACTION": types.RsvpStatusInvited,
	"DELEGATED":    types.RsvpStatusInvited,
}

const fallbackRsvpStatus = types.RsvpStatusInvited

// TimezoneFinder resolves an IANA zone name from coordinates. *tzf.DefaultFinder
// satisfies it.
type TimezoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// CanonicalMapper converts provider shapes to canonical records. It performs no I/O.
type CanonicalMapper struct {
	tzFinder  TimezoneFinder
	converter *md.Converter
}

func NewCanonicalMapper(tzFinder TimezoneFinder) *CanonicalMapper {
	return &CanonicalMapper{
		tzFinder:  tzFinder,
		converter: md.NewConverter("", true, nil),
	}
}

func LumaStatusValues() []string {
	values := make([]string, 0, len(lumaStatusTable))
	for k := range lumaStatusTable {
		values = append(values, k)
	}
	return values
}

func IcalPartStatValues() []string {
	values := make([]string, 0, len(icalPartStatTable))
	for k := range icalPartStatTable {
		values = append(values, k)
	}
	return values
}

func TranslateLumaStatus(raw string) types.RsvpStatus {
	if status, ok := lumaStatusTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	log.Printf("WARN: unrecognized luma guest status %q, mapping to %s", raw, fallbackRsvpStatus)
	return fallbackRsvpStatus
}

func TranslateIcalPartStat(raw string) types.RsvpStatus {
	if raw == "" {
		// RFC 5545 default
		return types.RsvpStatusInvited
	}
	if status, ok := icalPartStatTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	log.Printf("WARN: unrecognized iCal PARTSTAT %q, mapping to %s", raw, fallbackRsvpStatus)
	return fallbackRsvpStatus
}

// MapBundle maps one adapter bundle to an event candidate and its attendee candidates.
func (m *CanonicalMapper) MapBundle(cal types.CalendarConfig, bundle types.RawEventBundle) (types.EventCandidate, []types.EventRsvp, error) {
	switch {
	case bundle.Luma != nil:
		candidate, err := m.MapLumaEvent(cal, *bundle.Luma, nil)
		if err != nil {
			return types.EventCandidate{}, nil, err
		}
		rsvps := make([]types.EventRsvp, 0, len(bundle.Guests))
		for _, guest := range bundle.Guests {
			rsvp, err := m.MapLumaGuest(candidate.Event.Source, candidate.Event.SourceID, guest)
			if err != nil {
				log.Printf("WARN: skipping luma guest on event %s: %v", candidate.Event.SourceID, err)
				continue
			}
			rsvps = append(rsvps, rsvp)
		}
		return candidate, rsvps, nil
	case bundle.Ical != nil:
		return m.MapIcalEvent(cal, *bundle.Ical)
	}
	return types.EventCandidate{}, nil, types.NewInvalidPayload(bundle.Provider, cal.ID, fmt.Errorf("empty event bundle"))
}

// MapLumaEvent maps a Luma event. cancelled overrides the event's own status field,
// which webhooks need for event.canceled.
func (m *CanonicalMapper) MapLumaEvent(cal types.CalendarConfig, ev types.LumaEvent, cancelled *bool) (types.EventCandidate, error) {
	if err := validate.Struct(ev); err != nil {
		return types.EventCandidate{}, types.NewInvalidPayload(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("luma event validation failed: %w", err))
	}

	startsAt, err := ParseSourceTime(ev.StartAt)
	if err != nil {
		return types.EventCandidate{}, types.NewInvalidPayload(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("event %s start_at: %w", ev.APIID, err))
	}
	endsAt := startsAt
	if ev.EndAt != "" {
		endsAt, err = ParseSourceTime(ev.EndAt)
		if err != nil {
			return types.EventCandidate{}, types.NewInvalidPayload(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("event %s end_at: %w", ev.APIID, err))
		}
	}

	location := types.EventLocation{
		Latitude:  parseCoordinate(ev.GeoLatitude),
		Longitude: parseCoordinate(ev.GeoLongitude),
	}
	if ev.GeoAddressJSON != nil {
		address := ev.GeoAddressJSON.FullAddress
		if address == "" {
			address = ev.GeoAddressJSON.Address
		}
		location.Address = helpers.NonEmptyPtr(address)
	}

	// An unresolved zone stays empty so the stored one is kept.
	timezone := ev.Timezone
	if timezone == "" {
		if loc, ok := m.resolveTimezone(location, cal.DefaultTimezone); ok {
			timezone = loc.String()
		}
	}

	event := types.CanonicalEvent{
		Source:           constants.PROVIDER_LUMA,
		SourceID:         ev.APIID,
		CalendarID:       cal.ID,
		Title:            strings.TrimSpace(ev.Name),
		Description:      m.lumaDescription(ev),
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		Timezone:         timezone,
		Location:         location,
		HostRef:          ev.UserAPIID,
		CoverImageURL:    ev.CoverURL,
		CultureTag:       helpers.NonEmptyPtr(cal.CultureTag),
		URL:              ev.URL,
		SourceModifiedAt: parseOptionalSourceTime(ev.UpdatedAt),
	}

	signal := cancelled
	if signal == nil {
		signal = lumaCancelledSignal(ev.Status)
	}
	if signal != nil {
		event.Cancelled = *signal
	}

	return types.EventCandidate{Event: event, CancelledSignal: signal}, nil
}

func (m *CanonicalMapper) MapLumaGuest(eventSource, eventSourceID string, guest types.LumaGuest) (types.EventRsvp, error) {
	if err := validate.Struct(guest); err != nil {
		return types.EventRsvp{}, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("luma guest validation failed: %w", err))
	}

	modifiedAt := parseOptionalSourceTime(guest.UpdatedAt)
	registeredAt := parseOptionalSourceTime(guest.RegisteredAt)
	if modifiedAt == nil {
		modifiedAt = registeredAt
	}

	status := TranslateLumaStatus(guest.ApprovalStatus)
	checkedInAt := parseOptionalSourceTime(guest.CheckedInAt)

	return types.EventRsvp{
		EventSource:      eventSource,
		EventSourceID:    eventSourceID,
		AttendeeID:       guest.APIID,
		AttendeeName:     guest.UserName,
		Status:           status,
		RegisteredAt:     registeredAt,
		CheckedInAt:      checkedInAt,
		SourceModifiedAt: modifiedAt,
	}, nil
}

// MapIcalEvent maps a parsed VEVENT (or expanded occurrence) and its ATTENDEE lines.
func (m *CanonicalMapper) MapIcalEvent(cal types.CalendarConfig, ev types.IcalEvent) (types.EventCandidate, []types.EventRsvp, error) {
	if ev.UID == "" {
		return types.EventCandidate{}, nil, types.NewInvalidPayload(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("VEVENT missing UID"))
	}
	if ev.Start.IsZero() {
		return types.EventCandidate{}, nil, types.NewInvalidPayload(constants.PROVIDER_ICAL, cal.ID, fmt.Errorf("VEVENT %s missing DTSTART", ev.UID))
	}

	source, sourceID := icalSourceKey(cal, ev)
	location := types.EventLocation{
		Address:   ev.Location,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
	}

	loc, resolved := m.resolveTimezone(location, cal.DefaultTimezone)
	if ev.TZID != "" {
		if tzLoc, err := time.LoadLocation(ev.TZID); err == nil {
			loc, resolved = tzLoc, true
		}
	}
	timezone := ""
	if resolved {
		timezone = loc.String()
	}

	startsAt, endsAt := ev.Start, ev.End
	if ev.Floating {
		startsAt = reinterpretWallClock(startsAt, loc)
		endsAt = reinterpretWallClock(endsAt, loc)
	}
	if endsAt.IsZero() {
		endsAt = startsAt
	}

	description := ev.Description
	if description != nil && looksLikeHTML(*description) {
		description = m.toMarkdown(*description)
	}

	cancelled := strings.EqualFold(ev.Status, "CANCELLED")
	event := types.CanonicalEvent{
		Source:           source,
		SourceID:         sourceID,
		CalendarID:       cal.ID,
		Title:            strings.TrimSpace(ev.Summary),
		Description:      description,
		StartsAt:         startsAt.UTC(),
		EndsAt:           endsAt.UTC(),
		Timezone:         timezone,
		Location:         location,
		HostRef:          ev.Organizer,
		CultureTag:       helpers.NonEmptyPtr(cal.CultureTag),
		URL:              ev.URL,
		Cancelled:        cancelled,
		SourceModifiedAt: ev.LastModified,
	}
	candidate := types.EventCandidate{Event: event, CancelledSignal: helpers.BoolPtr(cancelled)}

	rsvps := make([]types.EventRsvp, 0, len(ev.Attendees))
	for _, attendee := range ev.Attendees {
		email := strings.ToLower(strings.TrimSpace(attendee.Email))
		if email == "" {
			continue
		}
		rsvps = append(rsvps, types.EventRsvp{
			EventSource:      source,
			EventSourceID:    sourceID,
			AttendeeID:       email,
			AttendeeName:     helpers.NonEmptyPtr(attendee.Name),
			Status:           TranslateIcalPartStat(attendee.PartStat),
			SourceModifiedAt: ev.LastModified,
		})
	}

	return candidate, rsvps, nil
}

// ParseSourceTime normalizes a provider timestamp to a UTC instant. Timestamps without
// an offset are read as UTC.
func ParseSourceTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func parseOptionalSourceTime(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := ParseSourceTime(raw)
	if err != nil {
		log.Printf("WARN: ignoring timestamp: %v", err)
		return nil
	}
	return &t
}

func parseCoordinate(raw *string) *float64 {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil {
		return nil
	}
	return &val
}

func lumaCancelledSignal(status string) *bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return nil
	case "cancelled", "canceled":
		return helpers.BoolPtr(true)
	}
	return helpers.BoolPtr(false)
}

func (m *CanonicalMapper) lumaDescription(ev types.LumaEvent) *string {
	if ev.DescriptionMd != nil {
		return ev.DescriptionMd
	}
	if ev.Description == nil {
		return nil
	}
	if looksLikeHTML(*ev.Description) {
		return m.toMarkdown(*ev.Description)
	}
	return ev.Description
}

func (m *CanonicalMapper) toMarkdown(html string) *string {
	markdown, err := m.converter.ConvertString(html)
	if err != nil {
		log.Printf("WARN: html to markdown conversion failed, keeping raw description: %v", err)
		return &html
	}
	return &markdown
}

func looksLikeHTML(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ">")
}

// resolveTimezone picks coordinates first, then the calendar default. ok is false when
// neither resolved and the returned zone is the UTC fallback.
func (m *CanonicalMapper) resolveTimezone(location types.EventLocation, fallback string) (loc *time.Location, ok bool) {
	if m.tzFinder != nil && location.Latitude != nil && location.Longitude != nil {
		if name := m.tzFinder.GetTimezoneName(*location.Longitude, *location.Latitude); name != "" {
			if loc, err := time.LoadLocation(name); err == nil {
				return loc, true
			}
		}
	}
	if fallback != "" {
		if loc, err := time.LoadLocation(fallback); err == nil {
			return loc, true
		}
		log.Printf("WARN: calendar default timezone %q is not a valid IANA zone", fallback)
	}
	return time.UTC, false
}

func reinterpretWallClock(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func icalSourceKey(cal types.CalendarConfig, ev types.IcalEvent) (string, string) {
	source := constants.PROVIDER_ICAL
	sourceID := ev.UID
	if cal.SourceAlias == constants.PROVIDER_LUMA {
		if at := strings.Index(ev.UID, "@"); at > 0 {
			source = constants.PROVIDER_LUMA
			sourceID = ev.UID[:at]
		}
	}
	if ev.InstanceKey != "" {
		sourceID = sourceID + "/" + ev.InstanceKey
	}
	return source, sourceID
}
