package types

import "time"

type RsvpStatus string

const (
	RsvpStatusGoing      RsvpStatus = "going"
	RsvpStatusMaybe      RsvpStatus = "maybe"
	RsvpStatusDeclined   RsvpStatus = "declined"
	RsvpStatusWaitlisted RsvpStatus = "waitlisted"
	RsvpStatusInvited    RsvpStatus = "invited"
)

// RsvpStatuses lists every canonical attendance status.
var RsvpStatuses = []RsvpStatus{
	RsvpStatusGoing,
	RsvpStatusMaybe,
	RsvpStatusDeclined,
	RsvpStatusWaitlisted,
	RsvpStatusInvited,
}

func (s RsvpStatus) Valid() bool {
	for _, known := range RsvpStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// EventRsvp is one attendee's registration for a canonical event. (EventID, AttendeeID)
// is the natural key; EventSource/EventSourceID point at the parent's natural key so a
// candidate can be reconciled before the parent's surrogate id is known.
type EventRsvp struct {
	ID               string     `json:"id"`
	EventID          string     `json:"event_id"`
	EventSource      string     `json:"event_source" validate:"required"`
	EventSourceID    string     `json:"event_source_id" validate:"required"`
	AttendeeID       string     `json:"attendee_id" validate:"required"`
	AttendeeName     *string    `json:"attendee_name,omitempty"`
	Status           RsvpStatus `json:"status" validate:"required"`
	RegisteredAt     *time.Time `json:"registered_at,omitempty"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	SourceModifiedAt *time.Time `json:"source_modified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (r EventRsvp) NaturalKey() string {
	return RsvpNaturalKey(r.EventSource, r.EventSourceID, r.AttendeeID)
}

// RsvpNaturalKey keys an rsvp by its parent's natural key so that the lock is the same
// whether or not the parent's surrogate id has been resolved yet.
func RsvpNaturalKey(eventSource, eventSourceID, attendeeID string) string {
	return "rsvp:" + eventSource + ":" + eventSourceID + ":" + attendeeID
}
