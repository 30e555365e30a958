package interfaces

import (
	"context"
	"net/http"

	"github.com/zoworld/eventsync/functions/gateway/types"
)

// SourceAdapterInterface pulls the full current state of one external calendar.
// Every call starts from scratch; no cursor is kept between invocations.
type SourceAdapterInterface interface {
	Provider() string
	FetchEvents(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error)
}

// CalendarProviderInterface is the only way the core learns which calendars exist.
type CalendarProviderInterface interface {
	ListConfiguredCalendars(ctx context.Context) ([]types.CalendarConfig, error)
}

// CanonicalStoreInterface is the persistence boundary of the reconciliation engine.
// Lookups return (nil, nil) when the natural key is absent. Inserts return
// types.ErrDuplicateKey when the storage-level unique constraint rejects the row.
type CanonicalStoreInterface interface {
	GetEventByKey(ctx context.Context, source, sourceID string) (*types.CanonicalEvent, error)
	InsertEvent(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error)
	UpdateEvent(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error)
	GetRsvpByKey(ctx context.Context, eventID, attendeeID string) (*types.EventRsvp, error)
	InsertRsvp(ctx context.Context, rsvp types.EventRsvp) (*types.EventRsvp, error)
	UpdateRsvp(ctx context.Context, rsvp types.EventRsvp) (*types.EventRsvp, error)
}

type PostgresServiceInterface interface {
	CanonicalStoreInterface
	Ping(ctx context.Context) error
	Close() error
}

// ReconcilerInterface is the single writer of canonical state.
type ReconcilerInterface interface {
	ReconcileEvent(ctx context.Context, candidate types.EventCandidate, mode types.SyncMode) types.ReconcileResult
	ReconcileRsvp(ctx context.Context, candidate types.EventRsvp, mode types.SyncMode) types.ReconcileResult
}

// ChangePublisherInterface announces applied canonical writes to downstream consumers.
type ChangePublisherInterface interface {
	PublishChange(ctx context.Context, change types.CanonicalChange) error
}

type NatsServiceInterface interface {
	ChangePublisherInterface
	Close() error
}

// SyncRunRecorderInterface persists finished sync runs for the host's own bookkeeping.
type SyncRunRecorderInterface interface {
	RecordSyncRun(ctx context.Context, run types.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*types.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int, mode types.SyncMode) ([]types.SyncRun, error)
}

// SyncRunnerInterface is what the HTTP trigger and CLI need from the orchestrator.
type SyncRunnerInterface interface {
	RunSync(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error)
	ListCalendars(ctx context.Context) ([]types.CalendarConfig, error)
	FeatureFlags() types.FeatureFlags
	Providers() []string
}

type WebhookReceiverInterface interface {
	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) types.WebhookOutcome
}
