package types

import "encoding/json"

type LumaGeoAddress struct {
	Address     string `json:"address,omitempty"`
	FullAddress string `json:"full_address,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
}

// LumaEvent is the event object returned by the Luma public API and pushed in
// event.* webhooks.
type LumaEvent struct {
	APIID          string          `json:"api_id" validate:"required"`
	CalendarAPIID  string          `json:"calendar_api_id,omitempty"`
	Name           string          `json:"name" validate:"required"`
	Description    *string         `json:"description"`
	DescriptionMd  *string         `json:"description_md"`
	StartAt        string          `json:"start_at" validate:"required"`
	EndAt          string          `json:"end_at"`
	Timezone       string          `json:"timezone"`
	CoverURL       *string         `json:"cover_url"`
	URL            *string         `json:"url"`
	GeoAddressJSON *LumaGeoAddress `json:"geo_address_json"`
	GeoLatitude    *string         `json:"geo_latitude"`
	GeoLongitude   *string         `json:"geo_longitude"`
	UserAPIID      *string         `json:"user_api_id"`
	Status         string          `json:"status,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type LumaListEventsEntry struct {
	APIID string    `json:"api_id"`
	Event LumaEvent `json:"event"`
}

type LumaListEventsResponse struct {
	Entries    []LumaListEventsEntry `json:"entries"`
	HasMore    bool                  `json:"has_more"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type LumaGuest struct {
	APIID          string  `json:"api_id" validate:"required"`
	EventAPIID     string  `json:"event_api_id,omitempty"`
	Email          string  `json:"email,omitempty"`
	UserEmail      string  `json:"user_email,omitempty"`
	UserName       *string `json:"user_name"`
	ApprovalStatus string  `json:"approval_status"`
	RegisteredAt   string  `json:"registered_at,omitempty"`
	CheckedInAt    string  `json:"checked_in_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

type LumaGuestEntry struct {
	APIID string    `json:"api_id"`
	Guest LumaGuest `json:"guest"`
}

type LumaGuestsResponse struct {
	Entries    []LumaGuestEntry `json:"entries"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// LumaWebhookPayload is the envelope of every Luma webhook. Data is decoded as a
// LumaEvent or LumaGuest depending on Type.
type LumaWebhookPayload struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data" validate:"required"`
}
