package types

import "time"

// EventLocation is free text plus optional coordinates.
type EventLocation struct {
	Address   *string  `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Latitude  *float64 `json:"lat,omitempty" dynamodbav:"lat,omitempty"`
	Longitude *float64 `json:"long,omitempty" dynamodbav:"long,omitempty"`
}

// CanonicalEvent is the single internal representation of an event regardless of
// which provider it came from. (Source, SourceID) is the natural key.
type CanonicalEvent struct {
	ID               string        `json:"id"`
	Source           string        `json:"source" validate:"required"`
	SourceID         string        `json:"source_id" validate:"required"`
	CalendarID       string        `json:"calendar_id,omitempty"`
	Title            string        `json:"title" validate:"required"`
	Description      *string       `json:"description,omitempty"`
	StartsAt         time.Time     `json:"starts_at" validate:"required"`
	EndsAt           time.Time     `json:"ends_at"`
	Timezone         string        `json:"timezone,omitempty"`
	Location         EventLocation `json:"location"`
	HostRef          *string       `json:"host_ref,omitempty"`
	CoverImageURL    *string       `json:"cover_image_url,omitempty"`
	CultureTag       *string       `json:"culture_tag,omitempty"`
	URL              *string       `json:"url,omitempty"`
	Cancelled        bool          `json:"cancelled"`
	SourceModifiedAt *time.Time    `json:"source_modified_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// EventCandidate is a mapped, not yet reconciled event. CancelledSignal is nil when the
// source said nothing about cancellation for this record.
type EventCandidate struct {
	Event           CanonicalEvent `json:"event"`
	CancelledSignal *bool          `json:"cancelled_signal,omitempty"`
}

// NaturalKey returns the external identity used to detect repeated ingestion.
func (e CanonicalEvent) NaturalKey() string {
	return EventNaturalKey(e.Source, e.SourceID)
}

func EventNaturalKey(source, sourceID string) string {
	return "event:" + source + ":" + sourceID
}
