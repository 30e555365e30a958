package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/transport"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

type SyncHandler struct {
	SyncService interfaces.SyncRunnerInterface
	// RunLog is optional; without it GET /sync/runs returns an empty list.
	RunLog interfaces.SyncRunRecorderInterface
}

func NewSyncHandler(syncService interfaces.SyncRunnerInterface, runLog interfaces.SyncRunRecorderInterface) *SyncHandler {
	return &SyncHandler{SyncService: syncService, RunLog: runLog}
}

type SyncResponseConfig struct {
	Mode           types.SyncMode     `json:"mode"`
	DryRun         bool               `json:"dry_run"`
	CalendarFilter string             `json:"calendar_filter,omitempty"`
	Verbose        bool               `json:"verbose"`
	FeatureFlags   types.FeatureFlags `json:"feature_flags"`
	Providers      []string           `json:"providers"`
}

type SyncResponse struct {
	Success    bool               `json:"success"`
	RunID      string             `json:"run_id"`
	Stats      types.SyncStats    `json:"stats"`
	DurationMs int64              `json:"duration_ms"`
	Config     SyncResponseConfig `json:"config"`
}

type SyncStatusResponse struct {
	Status       string             `json:"status"`
	FeatureFlags types.FeatureFlags `json:"feature_flags"`
	Providers    []string           `json:"providers"`
	Usage        map[string]string  `json:"usage"`
}

var syncUsage = map[string]string{
	"POST /sync":                  "run a sync; dry-run unless apply=true",
	constants.SYNC_APPLY_PARAM:    "bool, default false; write changes instead of predicting them",
	constants.SYNC_CALENDAR_PARAM: "optional calendar id; only that calendar is synced",
	constants.SYNC_VERBOSE_PARAM:  "bool, default false; include per-record results",
	"GET /sync/runs":              "recent persisted runs; limit and mode (dry-run|apply) filters",
	"POST /webhooks/{provider}":   "provider push endpoint",
}

func boolParam(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	val, ok := helpers.ParseBool(raw)
	if !ok {
		return false, fmt.Errorf("query param %s=%q is not a boolean", key, raw)
	}
	return val, nil
}

func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	apply, err := boolParam(r, constants.SYNC_APPLY_PARAM)
	if err != nil {
		transport.SendJSONError(w, err.Error(), http.StatusBadRequest, err)
		return
	}
	verbose, err := boolParam(r, constants.SYNC_VERBOSE_PARAM)
	if err != nil {
		transport.SendJSONError(w, err.Error(), http.StatusBadRequest, err)
		return
	}
	opts := types.SyncOptions{
		DryRun:         !apply,
		CalendarFilter: r.URL.Query().Get(constants.SYNC_CALENDAR_PARAM),
		Verbose:        verbose,
	}

	run, err := h.SyncService.RunSync(r.Context(), opts)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrFeatureDisabled):
			transport.SendJSONError(w, "event sync is disabled", http.StatusServiceUnavailable, err)
		case errors.Is(err, types.ErrNoCalendarsConfigured) && opts.CalendarFilter != "":
			transport.SendJSONError(w, "calendar "+opts.CalendarFilter+" is not configured", http.StatusNotFound, err)
		default:
			transport.SendJSONError(w, "sync failed: "+err.Error(), http.StatusInternalServerError, err)
		}
		return
	}

	log.Printf("sync %s (%s) finished in %dms: %d calendars, %d failed", run.ID, run.Mode, run.DurationMs, run.Stats.Totals.Calendars, run.Stats.Totals.CalendarsFailed)
	transport.SendJSON(w, SyncResponse{
		Success:    run.Success,
		RunID:      run.ID,
		Stats:      run.Stats,
		DurationMs: run.DurationMs,
		Config: SyncResponseConfig{
			Mode:           run.Mode,
			DryRun:         opts.DryRun,
			CalendarFilter: opts.CalendarFilter,
			Verbose:        opts.Verbose,
			FeatureFlags:   h.SyncService.FeatureFlags(),
			Providers:      h.SyncService.Providers(),
		},
	}, http.StatusOK)
}

func (h *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	transport.SendJSON(w, SyncStatusResponse{
		Status:       "ready",
		FeatureFlags: h.SyncService.FeatureFlags(),
		Providers:    h.SyncService.Providers(),
		Usage:        syncUsage,
	}, http.StatusOK)
}

func (h *SyncHandler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := constants.DEFAULT_SYNC_RUNS_LIST_LIMIT
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			transport.SendJSONError(w, "limit must be a positive integer", http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}
	mode := types.SyncMode(r.URL.Query().Get("mode"))
	if mode != "" && mode != types.SyncModeApply && mode != types.SyncModeDryRun {
		transport.SendJSONError(w, "mode must be dry-run or apply", http.StatusBadRequest, nil)
		return
	}

	runs := []types.SyncRun{}
	if h.RunLog != nil {
		listed, err := h.RunLog.ListSyncRuns(r.Context(), limit, mode)
		if err != nil {
			transport.SendJSONError(w, "failed to list sync runs", http.StatusInternalServerError, err)
			return
		}
		if listed != nil {
			runs = listed
		}
	}
	transport.SendJSON(w, map[string]any{"runs": runs}, http.StatusOK)
}

func (h *SyncHandler) GetSyncRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		transport.SendJSONError(w, "missing sync run id", http.StatusBadRequest, nil)
		return
	}
	if h.RunLog == nil {
		transport.SendJSONError(w, "sync run not found", http.StatusNotFound, nil)
		return
	}
	run, err := h.RunLog.GetSyncRun(r.Context(), id)
	if err != nil {
		transport.SendJSONError(w, "failed to get sync run", http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		transport.SendJSONError(w, "sync run not found", http.StatusNotFound, nil)
		return
	}
	transport.SendJSON(w, run, http.StatusOK)
}
