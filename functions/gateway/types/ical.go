package types

import "time"

type IcalAttendee struct {
	Email    string
	Name     string
	PartStat string
}

// IcalEvent is one VEVENT, or one expanded occurrence of a recurring VEVENT when
// InstanceKey is set.
type IcalEvent struct {
	UID          string
	Summary      string
	Description  *string
	Location     *string
	URL          *string
	Organizer    *string
	Latitude     *float64
	Longitude    *float64
	Start        time.Time
	End          time.Time
	AllDay       bool
	Floating     bool
	TZID         string
	LastModified *time.Time
	Status       string
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
	InstanceKey  string
	Attendees    []IcalAttendee
}

// RawEventBundle is what a source adapter hands to the mapper: exactly one of Luma or
// Ical is set, together with that event's raw attendee objects.
type RawEventBundle struct {
	Provider string
	Luma     *LumaEvent
	Guests   []LumaGuest
	Ical     *IcalEvent
}
