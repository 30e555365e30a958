package types

import "time"

// WebhookOutcome is what the receiver did with one push. It is logged, never returned
// to the provider.
type WebhookOutcome struct {
	Provider string           `json:"provider"`
	Type     string           `json:"type,omitempty"`
	Status   string           `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Result   *ReconcileResult `json:"result,omitempty"`
}

const (
	WebhookStatusProcessed = "processed"
	WebhookStatusIgnored   = "ignored"
	WebhookStatusRejected  = "rejected"
	WebhookStatusFailed    = "failed"
)

type WebhookAck struct {
	Ok bool `json:"ok"`
}

// CanonicalChange is published after an applied create or update.
type CanonicalChange struct {
	Kind           RecordKind      `json:"kind"`
	Classification Classification  `json:"classification"`
	RowID          string          `json:"row_id"`
	NaturalKey     string          `json:"natural_key"`
	ChangedFields  []string        `json:"changed_fields,omitempty"`
	Event          *CanonicalEvent `json:"event,omitempty"`
	Rsvp           *EventRsvp      `json:"rsvp,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
