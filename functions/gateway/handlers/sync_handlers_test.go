package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/services"
	"github.com/zoworld/eventsync/functions/gateway/test_helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

var allFlags = types.FeatureFlags{EventSync: true, Webhooks: true, AttendeeSync: true, IcalSync: true}

type mockSyncRunner struct {
	RunSyncFunc func(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error)
	Flags       types.FeatureFlags
	LastOpts    types.SyncOptions
}

func (m *mockSyncRunner) RunSync(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error) {
	m.LastOpts = opts
	return m.RunSyncFunc(ctx, opts)
}

func (m *mockSyncRunner) ListCalendars(ctx context.Context) ([]types.CalendarConfig, error) {
	return nil, nil
}

func (m *mockSyncRunner) FeatureFlags() types.FeatureFlags { return m.Flags }
func (m *mockSyncRunner) Providers() []string              { return []string{"ical", "luma"} }

// newIsolationSyncService has three luma calendars; the second one's source is down.
func newIsolationSyncService(store *test_helpers.MockCanonicalStore) *services.SyncService {
	adapter := &test_helpers.MockSourceAdapter{
		ProviderName: constants.PROVIDER_LUMA,
		FetchEventsFunc: func(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error) {
			if cal.ID == "cal-2" {
				return nil, types.NewSourceUnavailable(constants.PROVIDER_LUMA, cal.ID, errors.New("connection refused"))
			}
			return []types.RawEventBundle{{
				Provider: constants.PROVIDER_LUMA,
				Luma: &types.LumaEvent{
					APIID:     cal.ID + "-evt",
					Name:      "Show at " + cal.ID,
					StartAt:   "2025-03-01T19:00:00Z",
					UpdatedAt: "2025-02-01T00:00:00Z",
				},
			}}, nil
		},
	}
	return services.NewSyncService(services.SyncServiceConfig{
		Calendars: &test_helpers.MockCalendarProvider{Calendars: []types.CalendarConfig{
			{ID: "cal-1", Provider: constants.PROVIDER_LUMA, APIKey: "k"},
			{ID: "cal-2", Provider: constants.PROVIDER_LUMA, APIKey: "k"},
			{ID: "cal-3", Provider: constants.PROVIDER_LUMA, APIKey: "k"},
		}},
		Sources:    services.NewSourceRegistry(adapter),
		Reconciler: services.NewReconcileEngine(store, nil),
		Flags:      allFlags,
	})
}

func decodeSyncResponse(t *testing.T, rr *httptest.ResponseRecorder) SyncResponse {
	t.Helper()
	var res SyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return res
}

func TestTriggerSyncIsolatesFailingCalendar(t *testing.T) {
	store := test_helpers.NewMockCanonicalStore()
	handler := NewSyncHandler(newIsolationSyncService(store), nil)

	req := httptest.NewRequest(http.MethodPost, "/sync?apply=true", nil)
	rr := httptest.NewRecorder()
	handler.TriggerSync(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 despite a failed calendar, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decodeSyncResponse(t, rr)
	if !res.Success || res.Config.DryRun || res.Config.Mode != types.SyncModeApply {
		t.Errorf("unexpected envelope %+v", res)
	}
	per := res.Stats.PerCalendar
	if len(per) != 3 {
		t.Fatalf("expected 3 calendar slots, got %d", len(per))
	}
	if per[0].Events.Created != 1 || per[2].Events.Created != 1 {
		t.Errorf("expected calendars 1 and 3 to create their events, got %+v / %+v", per[0].Events, per[2].Events)
	}
	if per[1].Error == "" || per[1].ErrorKind != "source_unavailable" {
		t.Errorf("expected an error entry for calendar 2, got %+v", per[1])
	}
	if res.Stats.Totals.CalendarsFailed != 1 || res.Stats.Totals.Events.Created != 2 {
		t.Errorf("unexpected totals %+v", res.Stats.Totals)
	}
	if len(store.Events()) != 2 {
		t.Errorf("expected 2 stored events, got %d", len(store.Events()))
	}
}

func TestTriggerSyncDefaultsToDryRun(t *testing.T) {
	store := test_helpers.NewMockCanonicalStore()
	handler := NewSyncHandler(newIsolationSyncService(store), nil)

	rr := httptest.NewRecorder()
	handler.TriggerSync(rr, httptest.NewRequest(http.MethodPost, "/sync?verbose=1", nil))

	res := decodeSyncResponse(t, rr)
	if !res.Config.DryRun || res.Config.Mode != types.SyncModeDryRun {
		t.Errorf("expected dry-run by default, got %+v", res.Config)
	}
	if res.Stats.Totals.Events.Created != 2 {
		t.Errorf("dry-run should predict 2 creates, got %+v", res.Stats.Totals.Events)
	}
	if len(res.Stats.PerCalendar[0].Records) != 1 {
		t.Errorf("expected verbose records")
	}
	if store.Writes() != 0 {
		t.Errorf("dry-run wrote %d rows", store.Writes())
	}
}

func TestTriggerSyncErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
	}{
		{"feature disabled", "", types.ErrFeatureDisabled, http.StatusServiceUnavailable},
		{"unknown calendar filter", "?calendar=nope", fmt.Errorf("calendar nope: %w", types.ErrNoCalendarsConfigured), http.StatusNotFound},
		{"nothing configured", "", types.ErrNoCalendarsConfigured, http.StatusInternalServerError},
		{"calendar listing failed", "", errors.New("yaml: bad indent"), http.StatusInternalServerError},
		{"bad bool", "?apply=maybe", nil, http.StatusBadRequest},
		{"bad verbose", "?verbose=loud", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockSyncRunner{RunSyncFunc: func(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error) {
				return nil, tt.err
			}}
			rr := httptest.NewRecorder()
			NewSyncHandler(runner, nil).TriggerSync(rr, httptest.NewRequest(http.MethodPost, "/sync"+tt.query, nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["success"] != false || body["error"] == "" {
				t.Errorf("expected {success:false,error}, got %v", body)
			}
		})
	}
}

func TestGetSyncStatus(t *testing.T) {
	runner := &mockSyncRunner{Flags: types.FeatureFlags{EventSync: true}}
	rr := httptest.NewRecorder()
	NewSyncHandler(runner, nil).GetSyncStatus(rr, httptest.NewRequest(http.MethodGet, "/sync", nil))

	var res SyncStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if res.Status != "ready" || !res.FeatureFlags.EventSync || res.FeatureFlags.Webhooks {
		t.Errorf("unexpected status %+v", res)
	}
	if _, ok := res.Usage[constants.SYNC_APPLY_PARAM]; !ok {
		t.Errorf("expected usage for the apply param")
	}
	if runner.LastOpts != (types.SyncOptions{}) {
		t.Errorf("GET /sync must not run a sync")
	}
}

func TestListSyncRuns(t *testing.T) {
	recorder := &test_helpers.MockSyncRunRecorder{Runs: []types.SyncRun{
		{ID: "run-1", Mode: types.SyncModeApply, StartedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}}

	tests := []struct {
		name       string
		handler    *SyncHandler
		query      string
		wantStatus int
		wantRuns   int
	}{
		{"lists recorded runs", NewSyncHandler(&mockSyncRunner{}, recorder), "?limit=5&mode=apply", http.StatusOK, 1},
		{"no run log configured", NewSyncHandler(&mockSyncRunner{}, nil), "", http.StatusOK, 0},
		{"bad limit", NewSyncHandler(&mockSyncRunner{}, recorder), "?limit=-1", http.StatusBadRequest, 0},
		{"bad mode", NewSyncHandler(&mockSyncRunner{}, recorder), "?mode=sometimes", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.handler.ListSyncRuns(rr, httptest.NewRequest(http.MethodGet, "/sync/runs"+tt.query, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Runs []types.SyncRun `json:"runs"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Runs == nil || len(body.Runs) != tt.wantRuns {
				t.Errorf("expected %d runs, got %v", tt.wantRuns, body.Runs)
			}
		})
	}
}

func TestGetSyncRun(t *testing.T) {
	recorder := &test_helpers.MockSyncRunRecorder{Runs: []types.SyncRun{{ID: "run-1", Mode: types.SyncModeDryRun}}}
	handler := NewSyncHandler(&mockSyncRunner{}, recorder)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/sync/runs/run-1", nil), map[string]string{"id": "run-1"})
	rr := httptest.NewRecorder()
	handler.GetSyncRun(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/sync/runs/nope", nil), map[string]string{"id": "nope"})
	rr = httptest.NewRecorder()
	handler.GetSyncRun(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}
