package types

// CalendarConfig is one configured external calendar and the credential used to read it.
type CalendarConfig struct {
	ID              string `json:"id" yaml:"id" validate:"required"`
	Name            string `json:"name,omitempty" yaml:"name"`
	Provider        string `json:"provider" yaml:"provider" validate:"required,oneof=luma ical"`
	APIKey          string `json:"-" yaml:"api_key" validate:"required_if=Provider luma"`
	FeedURL         string `json:"-" yaml:"feed_url" validate:"required_if=Provider ical"`
	CultureTag      string `json:"culture_tag,omitempty" yaml:"culture_tag"`
	DefaultTimezone string `json:"default_timezone,omitempty" yaml:"default_timezone"`
	// SourceAlias files iCal events under another provider's namespace when the feed's
	// UIDs carry that provider's ids (e.g. a Luma calendar's public .ics feed).
	SourceAlias string `json:"source_alias,omitempty" yaml:"source_alias" validate:"omitempty,oneof=luma"`
}

// FeatureFlags is passed explicitly into the orchestrator and webhook receiver.
type FeatureFlags struct {
	EventSync    bool `json:"event_sync"`
	Webhooks     bool `json:"webhooks"`
	AttendeeSync bool `json:"attendee_sync"`
	IcalSync     bool `json:"ical_sync"`
}
