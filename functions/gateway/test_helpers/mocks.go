package test_helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

type MockDynamoDBClient struct {
	ScanFunc    func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItemFunc func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItemFunc func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

func (m *MockDynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, params, optFns...)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.PutItemFunc != nil {
		return m.PutItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.GetItemFunc != nil {
		return m.GetItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

// MockCanonicalStore is an in-memory canonical store that enforces the same natural
// key uniqueness as the postgres schema. The XFunc fields, when set, replace the
// in-memory behavior for that call.
type MockCanonicalStore struct {
	mu     sync.Mutex
	events map[string]types.CanonicalEvent
	rsvps  map[string]types.EventRsvp

	InsertCalls int
	UpdateCalls int

	GetEventByKeyFunc func(ctx context.Context, source, sourceID string) (*types.CanonicalEvent, error)
	InsertEventFunc   func(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error)
	UpdateEventFunc   func(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error)
	InsertRsvpFunc    func(ctx context.Context, rsvp types.EventRsvp) (*types.EventRsvp, error)
}

func NewMockCanonicalStore() *MockCanonicalStore {
	return &MockCanonicalStore{
		events: map[string]types.CanonicalEvent{},
		rsvps:  map[string]types.EventRsvp{},
	}
}

func rsvpStoreKey(eventID, attendeeID string) string {
	return eventID + "|" + attendeeID
}

func (m *MockCanonicalStore) GetEventByKey(ctx context.Context, source, sourceID string) (*types.CanonicalEvent, error) {
	if m.GetEventByKeyFunc != nil {
		return m.GetEventByKeyFunc(ctx, source, sourceID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[types.EventNaturalKey(source, sourceID)]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (m *MockCanonicalStore) InsertEvent(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error) {
	if m.InsertEventFunc != nil {
		return m.InsertEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.NaturalKey()
	if _, ok := m.events[key]; ok {
		return nil, types.ErrDuplicateKey
	}
	event.ID = uuid.NewString()
	m.events[key] = event
	m.InsertCalls++
	return &event, nil
}

func (m *MockCanonicalStore) UpdateEvent(ctx context.Context, event types.CanonicalEvent) (*types.CanonicalEvent, error) {
	if m.UpdateEventFunc != nil {
		return m.UpdateEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.NaturalKey()
	stored, ok := m.events[key]
	if !ok || stored.ID != event.ID {
		return nil, fmt.Errorf("event %s not found", key)
	}
	m.events[key] = event
	m.UpdateCalls++
	return &event, nil
}

func (m *MockCanonicalStore) GetRsvpByKey(ctx context.Context, eventID, attendeeID string) (*types.EventRsvp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rsvp, ok := m.rsvps[rsvpStoreKey(eventID, attendeeID)]
	if !ok {
		return nil, nil
	}
	return &rsvp, nil
}

func (m *MockCanonicalStore) InsertRsvp(ctx context.Context, rsvp types.EventRsvp) (*types.EventRsvp, error) {
	if m.InsertRsvpFunc != nil {
		return m.InsertRsvpFunc(ctx, rsvp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rsvpStoreKey(rsvp.EventID, rsvp.AttendeeID)
	if _, ok := m.rsvps[key]; ok {
		return nil, types.ErrDuplicateKey
	}
	rsvp.ID = uuid.NewString()
	m.rsvps[key] = rsvp
	m.InsertCalls++
	return &rsvp, nil
}

func (m *MockCanonicalStore) UpdateRsvp(ctx context.Context, rsvp types.EventRsvp) (*types.EventRsvp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rsvpStoreKey(rsvp.EventID, rsvp.AttendeeID)
	if _, ok := m.rsvps[key]; !ok {
		return nil, fmt.Errorf("rsvp %s not found", key)
	}
	m.rsvps[key] = rsvp
	m.UpdateCalls++
	return &rsvp, nil
}

func (m *MockCanonicalStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockCanonicalStore) Close() error {
	return nil
}

// SeedEvent stores an event directly, bypassing the write counters.
func (m *MockCanonicalStore) SeedEvent(event types.CanonicalEvent) types.CanonicalEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	m.events[event.NaturalKey()] = event
	return event
}

func (m *MockCanonicalStore) Events() []types.CanonicalEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CanonicalEvent, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	return out
}

func (m *MockCanonicalStore) Rsvps() []types.EventRsvp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.EventRsvp, 0, len(m.rsvps))
	for _, r := range m.rsvps {
		out = append(out, r)
	}
	return out
}

func (m *MockCanonicalStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InsertCalls + m.UpdateCalls
}

type MockNatsService struct {
	mu            sync.Mutex
	PublishedMsgs [][]byte
	Changes       []types.CanonicalChange

	PublishChangeFunc func(ctx context.Context, change types.CanonicalChange) error
}

func NewMockNatsService() *MockNatsService {
	return &MockNatsService{
		PublishedMsgs: make([][]byte, 0),
	}
}

func (m *MockNatsService) PublishChange(ctx context.Context, change types.CanonicalChange) error {
	if m.PublishChangeFunc != nil {
		return m.PublishChangeFunc(ctx, change)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	m.PublishedMsgs = append(m.PublishedMsgs, data)
	m.Changes = append(m.Changes, change)
	return nil
}

func (m *MockNatsService) Close() error {
	return nil
}

func (m *MockNatsService) Published() []types.CanonicalChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.CanonicalChange(nil), m.Changes...)
}

type MockSourceAdapter struct {
	ProviderName    string
	FetchEventsFunc func(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error)
}

func (m *MockSourceAdapter) Provider() string {
	return m.ProviderName
}

func (m *MockSourceAdapter) FetchEvents(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error) {
	if m.FetchEventsFunc != nil {
		return m.FetchEventsFunc(ctx, cal, flags)
	}
	return []types.RawEventBundle{}, nil
}

type MockCalendarProvider struct {
	Calendars                   []types.CalendarConfig
	ListConfiguredCalendarsFunc func(ctx context.Context) ([]types.CalendarConfig, error)
}

func (m *MockCalendarProvider) ListConfiguredCalendars(ctx context.Context) ([]types.CalendarConfig, error) {
	if m.ListConfiguredCalendarsFunc != nil {
		return m.ListConfiguredCalendarsFunc(ctx)
	}
	return m.Calendars, nil
}

type MockSyncRunRecorder struct {
	mu   sync.Mutex
	Runs []types.SyncRun

	RecordSyncRunFunc func(ctx context.Context, run types.SyncRun) error
	ListSyncRunsFunc  func(ctx context.Context, limit int, mode types.SyncMode) ([]types.SyncRun, error)
}

func (m *MockSyncRunRecorder) GetSyncRun(ctx context.Context, id string) (*types.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Runs {
		if m.Runs[i].ID == id {
			run := m.Runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

func (m *MockSyncRunRecorder) RecordSyncRun(ctx context.Context, run types.SyncRun) error {
	if m.RecordSyncRunFunc != nil {
		return m.RecordSyncRunFunc(ctx, run)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, run)
	return nil
}

func (m *MockSyncRunRecorder) ListSyncRuns(ctx context.Context, limit int, mode types.SyncMode) ([]types.SyncRun, error) {
	if m.ListSyncRunsFunc != nil {
		return m.ListSyncRunsFunc(ctx, limit, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.SyncRun(nil), m.Runs...), nil
}
