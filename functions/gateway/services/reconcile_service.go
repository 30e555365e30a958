package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

// ReconcileEngine decides create/update/skip for candidate records and is the only
// component that writes canonical state. One instance must be shared by every caller
// in the process so the per-key locks cover webhooks and scheduled runs alike.
type ReconcileEngine struct {
	store     interfaces.CanonicalStoreInterface
	publisher interfaces.ChangePublisherInterface
	locks     *keyedMutex
	now       func() time.Time
}

// NewReconcileEngine wires the engine. publisher may be nil.
func NewReconcileEngine(store interfaces.CanonicalStoreInterface, publisher interfaces.ChangePublisherInterface) *ReconcileEngine {
	return &ReconcileEngine{
		store:     store,
		publisher: publisher,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *ReconcileEngine) ReconcileEvent(ctx context.Context, candidate types.EventCandidate, mode types.SyncMode) types.ReconcileResult {
	ev := candidate.Event
	key := ev.NaturalKey()
	if err := validate.Struct(ev); err != nil {
		return errorResult(types.RecordKindEvent, key, fmt.Errorf("%w: %v", types.ErrInvalidPayload, err))
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	existing, err := e.store.GetEventByKey(ctx, ev.Source, ev.SourceID)
	if err != nil {
		return errorResult(types.RecordKindEvent, key, fmt.Errorf("looking up event: %w", err))
	}
	predictions := predictionsFrom(ctx, mode)
	if predicted, ok := predictions.event(key); ok {
		existing = &predicted
	}

	if existing == nil {
		now := e.now()
		ev.ID = ""
		ev.Cancelled = candidate.CancelledSignal != nil && *candidate.CancelledSignal
		ev.CreatedAt = now
		ev.UpdatedAt = now
		if ev.Timezone == "" {
			ev.Timezone = "UTC"
		}
		if mode == types.SyncModeDryRun {
			predictions.putEvent(key, ev)
			return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationCreated, NaturalKey: key}
		}

		inserted, err := e.store.InsertEvent(ctx, ev)
		if err == nil {
			e.publish(ctx, types.CanonicalChange{
				Kind:           types.RecordKindEvent,
				Classification: types.ClassificationCreated,
				RowID:          inserted.ID,
				NaturalKey:     key,
				Event:          inserted,
			})
			return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationCreated, RowID: inserted.ID, NaturalKey: key}
		}
		if !errors.Is(err, types.ErrDuplicateKey) {
			return errorResult(types.RecordKindEvent, key, fmt.Errorf("%w: %v", types.ErrReconciliationWrite, err))
		}

		// Another process inserted the key between our lookup and insert.
		log.Printf("WARN: %s inserted concurrently, retrying as update", key)
		existing, err = e.store.GetEventByKey(ctx, ev.Source, ev.SourceID)
		if err != nil || existing == nil {
			return errorResult(types.RecordKindEvent, key, fmt.Errorf("%w: re-reading after duplicate key: %v", types.ErrReconciliationWrite, err))
		}
	}

	if isStale(candidate.Event.SourceModifiedAt, existing.SourceModifiedAt) {
		return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationSkipped, Reason: types.SkipReasonStale, RowID: existing.ID, NaturalKey: key}
	}

	merged, changed := mergeEvent(*existing, candidate)
	if len(changed) == 0 {
		return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationSkipped, Reason: types.SkipReasonUnchanged, RowID: existing.ID, NaturalKey: key}
	}
	if mode == types.SyncModeDryRun {
		predictions.putEvent(key, merged)
		return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationUpdated, RowID: existing.ID, NaturalKey: key, ChangedFields: changed}
	}

	merged.UpdatedAt = e.now()
	updated, err := e.store.UpdateEvent(ctx, merged)
	if err != nil {
		return errorResult(types.RecordKindEvent, key, fmt.Errorf("%w: %v", types.ErrReconciliationWrite, err))
	}
	e.publish(ctx, types.CanonicalChange{
		Kind:           types.RecordKindEvent,
		Classification: types.ClassificationUpdated,
		RowID:          updated.ID,
		NaturalKey:     key,
		ChangedFields:  changed,
		Event:          updated,
	})
	return types.ReconcileResult{Kind: types.RecordKindEvent, Classification: types.ClassificationUpdated, RowID: updated.ID, NaturalKey: key, ChangedFields: changed}
}

// ReconcileRsvp resolves the parent event through the candidate's event natural key.
// A missing parent is predicted as a create in dry-run and is an error in apply.
func (e *ReconcileEngine) ReconcileRsvp(ctx context.Context, candidate types.EventRsvp, mode types.SyncMode) types.ReconcileResult {
	key := candidate.NaturalKey()
	if err := validate.Struct(candidate); err != nil {
		return errorResult(types.RecordKindAttendee, key, fmt.Errorf("%w: %v", types.ErrInvalidPayload, err))
	}
	if !candidate.Status.Valid() {
		return errorResult(types.RecordKindAttendee, key, fmt.Errorf("%w: status %q", types.ErrInvalidPayload, candidate.Status))
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	predictions := predictionsFrom(ctx, mode)
	parent, err := e.store.GetEventByKey(ctx, candidate.EventSource, candidate.EventSourceID)
	if err != nil {
		return errorResult(types.RecordKindAttendee, key, fmt.Errorf("looking up parent event: %w", err))
	}
	if parent == nil {
		if predicted, ok := predictions.event(types.EventNaturalKey(candidate.EventSource, candidate.EventSourceID)); ok {
			parent = &predicted
		}
	}
	if parent == nil {
		if mode == types.SyncModeDryRun {
			predictions.putRsvp(key, candidate)
			return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationCreated, NaturalKey: key}
		}
		return errorResult(types.RecordKindAttendee, key, fmt.Errorf("parent event %s not found", types.EventNaturalKey(candidate.EventSource, candidate.EventSourceID)))
	}
	candidate.EventID = parent.ID

	var existing *types.EventRsvp
	if parent.ID != "" {
		existing, err = e.store.GetRsvpByKey(ctx, parent.ID, candidate.AttendeeID)
		if err != nil {
			return errorResult(types.RecordKindAttendee, key, fmt.Errorf("looking up rsvp: %w", err))
		}
	}
	if predicted, ok := predictions.rsvp(key); ok {
		existing = &predicted
	}

	if existing == nil {
		now := e.now()
		candidate.ID = ""
		candidate.CreatedAt = now
		candidate.UpdatedAt = now
		if mode == types.SyncModeDryRun {
			predictions.putRsvp(key, candidate)
			return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationCreated, NaturalKey: key}
		}

		inserted, err := e.store.InsertRsvp(ctx, candidate)
		if err == nil {
			e.publish(ctx, types.CanonicalChange{
				Kind:           types.RecordKindAttendee,
				Classification: types.ClassificationCreated,
				RowID:          inserted.ID,
				NaturalKey:     key,
				Rsvp:           inserted,
			})
			return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationCreated, RowID: inserted.ID, NaturalKey: key}
		}
		if !errors.Is(err, types.ErrDuplicateKey) {
			return errorResult(types.RecordKindAttendee, key, fmt.Errorf("%w: %v", types.ErrReconciliationWrite, err))
		}

		log.Printf("WARN: %s inserted concurrently, retrying as update", key)
		existing, err = e.store.GetRsvpByKey(ctx, parent.ID, candidate.AttendeeID)
		if err != nil || existing == nil {
			return errorResult(types.RecordKindAttendee, key, fmt.Errorf("%w: re-reading after duplicate key: %v", types.ErrReconciliationWrite, err))
		}
	}

	if isStale(candidate.SourceModifiedAt, existing.SourceModifiedAt) {
		return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationSkipped, Reason: types.SkipReasonStale, RowID: existing.ID, NaturalKey: key}
	}

	merged, changed := mergeRsvp(*existing, candidate)
	if len(changed) == 0 {
		return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationSkipped, Reason: types.SkipReasonUnchanged, RowID: existing.ID, NaturalKey: key}
	}
	if mode == types.SyncModeDryRun {
		predictions.putRsvp(key, merged)
		return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationUpdated, RowID: existing.ID, NaturalKey: key, ChangedFields: changed}
	}

	merged.UpdatedAt = e.now()
	updated, err := e.store.UpdateRsvp(ctx, merged)
	if err != nil {
		return errorResult(types.RecordKindAttendee, key, fmt.Errorf("%w: %v", types.ErrReconciliationWrite, err))
	}
	e.publish(ctx, types.CanonicalChange{
		Kind:           types.RecordKindAttendee,
		Classification: types.ClassificationUpdated,
		RowID:          updated.ID,
		NaturalKey:     key,
		ChangedFields:  changed,
		Rsvp:           updated,
	})
	return types.ReconcileResult{Kind: types.RecordKindAttendee, Classification: types.ClassificationUpdated, RowID: updated.ID, NaturalKey: key, ChangedFields: changed}
}

func (e *ReconcileEngine) publish(ctx context.Context, change types.CanonicalChange) {
	if e.publisher == nil {
		return
	}
	change.OccurredAt = e.now()
	if err := e.publisher.PublishChange(ctx, change); err != nil {
		log.Printf("WARN: failed to publish %s change for %s: %v", change.Classification, change.NaturalKey, err)
	}
}

func errorResult(kind types.RecordKind, key string, err error) types.ReconcileResult {
	log.Printf("ERR: reconcile %s: %v", key, err)
	return types.ReconcileResult{
		Kind:           kind,
		Classification: types.ClassificationError,
		NaturalKey:     key,
		Error:          err.Error(),
	}
}

// isStale reports whether the candidate must lose to the stored row. Only a comparison
// between two known timestamps can make a candidate stale; ties go to the stored row.
func isStale(candidate, stored *time.Time) bool {
	if candidate == nil || stored == nil {
		return false
	}
	return !candidate.After(*stored)
}

// mergeEvent applies candidate onto stored. Nil optional fields keep the stored value.
// source_modified_at is carried but never counted as a change on its own.
func mergeEvent(stored types.CanonicalEvent, candidate types.EventCandidate) (types.CanonicalEvent, []string) {
	ev := candidate.Event
	merged := stored
	var changed []string

	mergeString("title", &merged.Title, ev.Title, &changed)
	if ev.CalendarID != "" {
		mergeString("calendar_id", &merged.CalendarID, ev.CalendarID, &changed)
	}
	mergePtr("description", &merged.Description, ev.Description, &changed)
	mergeTime("starts_at", &merged.StartsAt, ev.StartsAt, &changed)
	mergeTime("ends_at", &merged.EndsAt, ev.EndsAt, &changed)
	if ev.Timezone != "" {
		mergeString("timezone", &merged.Timezone, ev.Timezone, &changed)
	}
	mergePtr("location_address", &merged.Location.Address, ev.Location.Address, &changed)
	mergePtr("location_lat", &merged.Location.Latitude, ev.Location.Latitude, &changed)
	mergePtr("location_long", &merged.Location.Longitude, ev.Location.Longitude, &changed)
	mergePtr("host_ref", &merged.HostRef, ev.HostRef, &changed)
	mergePtr("cover_image_url", &merged.CoverImageURL, ev.CoverImageURL, &changed)
	mergePtr("culture_tag", &merged.CultureTag, ev.CultureTag, &changed)
	mergePtr("url", &merged.URL, ev.URL, &changed)
	if candidate.CancelledSignal != nil && merged.Cancelled != *candidate.CancelledSignal {
		merged.Cancelled = *candidate.CancelledSignal
		changed = append(changed, "cancelled")
	}

	if ev.SourceModifiedAt != nil {
		merged.SourceModifiedAt = ev.SourceModifiedAt
	}
	return merged, changed
}

func mergeRsvp(stored types.EventRsvp, candidate types.EventRsvp) (types.EventRsvp, []string) {
	merged := stored
	var changed []string

	mergePtr("attendee_name", &merged.AttendeeName, candidate.AttendeeName, &changed)
	if merged.Status != candidate.Status {
		merged.Status = candidate.Status
		changed = append(changed, "status")
	}
	mergeTimePtr("registered_at", &merged.RegisteredAt, candidate.RegisteredAt, &changed)
	mergeTimePtr("checked_in_at", &merged.CheckedInAt, candidate.CheckedInAt, &changed)

	if candidate.SourceModifiedAt != nil {
		merged.SourceModifiedAt = candidate.SourceModifiedAt
	}
	return merged, changed
}

func mergeString(field string, stored *string, candidate string, changed *[]string) {
	if *stored != candidate {
		*stored = candidate
		*changed = append(*changed, field)
	}
}

func mergeTime(field string, stored *time.Time, candidate time.Time, changed *[]string) {
	if candidate.IsZero() {
		return
	}
	if !stored.Equal(candidate) {
		*stored = candidate
		*changed = append(*changed, field)
	}
}

func mergePtr[T comparable](field string, stored **T, candidate *T, changed *[]string) {
	if candidate == nil {
		return
	}
	if *stored == nil || **stored != *candidate {
		v := *candidate
		*stored = &v
		*changed = append(*changed, field)
	}
}

func mergeTimePtr(field string, stored **time.Time, candidate *time.Time, changed *[]string) {
	if candidate == nil {
		return
	}
	if *stored == nil || !(*stored).Equal(*candidate) {
		v := *candidate
		*stored = &v
		*changed = append(*changed, field)
	}
}

// dryRunPredictions holds the rows a dry run would have written, keyed by natural key,
// so a key seen twice in one run is classified against the first sighting the way an
// apply run would be.
type dryRunPredictions struct {
	mu     sync.Mutex
	events map[string]types.CanonicalEvent
	rsvps  map[string]types.EventRsvp
}

type dryRunPredictionsKey struct{}

// WithDryRunPredictions scopes dry-run predictions to one sync run.
func WithDryRunPredictions(ctx context.Context) context.Context {
	return context.WithValue(ctx, dryRunPredictionsKey{}, &dryRunPredictions{
		events: map[string]types.CanonicalEvent{},
		rsvps:  map[string]types.EventRsvp{},
	})
}

// predictionsFrom returns nil outside a dry run; the nil receiver methods are no-ops.
func predictionsFrom(ctx context.Context, mode types.SyncMode) *dryRunPredictions {
	if mode != types.SyncModeDryRun {
		return nil
	}
	p, _ := ctx.Value(dryRunPredictionsKey{}).(*dryRunPredictions)
	return p
}

func (p *dryRunPredictions) event(key string) (types.CanonicalEvent, bool) {
	if p == nil {
		return types.CanonicalEvent{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.events[key]
	return ev, ok
}

func (p *dryRunPredictions) putEvent(key string, ev types.CanonicalEvent) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.events[key] = ev
	p.mu.Unlock()
}

func (p *dryRunPredictions) rsvp(key string) (types.EventRsvp, bool) {
	if p == nil {
		return types.EventRsvp{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rsvps[key]
	return r, ok
}

func (p *dryRunPredictions) putRsvp(key string, r types.EventRsvp) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.rsvps[key] = r
	p.mu.Unlock()
}

// keyedMutex hands out one mutex per natural key and drops it once nobody holds or
// waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
