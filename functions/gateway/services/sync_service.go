package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

// SourceRegistry maps a provider name to its adapter.
type SourceRegistry struct {
	adapters map[string]interfaces.SourceAdapterInterface
}

func NewSourceRegistry(adapters ...interfaces.SourceAdapterInterface) *SourceRegistry {
	r := &SourceRegistry{adapters: map[string]interfaces.SourceAdapterInterface{}}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *SourceRegistry) Get(provider string) (interfaces.SourceAdapterInterface, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

func (r *SourceRegistry) Providers() []string {
	providers := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

type SyncServiceConfig struct {
	Calendars  interfaces.CalendarProviderInterface
	Sources    *SourceRegistry
	Mapper     *CanonicalMapper
	Reconciler interfaces.ReconcilerInterface
	// Recorder is optional.
	Recorder       interfaces.SyncRunRecorderInterface
	Flags          types.FeatureFlags
	MaxConcurrency int
}

// SyncService runs fetch -> map -> reconcile for every configured calendar.
type SyncService struct {
	calendars      interfaces.CalendarProviderInterface
	sources        *SourceRegistry
	mapper         *CanonicalMapper
	reconciler     interfaces.ReconcilerInterface
	recorder       interfaces.SyncRunRecorderInterface
	flags          types.FeatureFlags
	maxConcurrency int
	now            func() time.Time
}

func NewSyncService(cfg SyncServiceConfig) *SyncService {
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = NewCanonicalMapper(nil)
	}
	return &SyncService{
		calendars:      cfg.Calendars,
		sources:        cfg.Sources,
		mapper:         mapper,
		reconciler:     cfg.Reconciler,
		recorder:       cfg.Recorder,
		flags:          cfg.Flags,
		maxConcurrency: cfg.MaxConcurrency,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *SyncService) FeatureFlags() types.FeatureFlags {
	return s.flags
}

func (s *SyncService) Providers() []string {
	return s.sources.Providers()
}

// RunSync processes every configured calendar, or only opts.CalendarFilter. A failing
// calendar is reported in its own result slot; only failures that prevent the run from
// starting are returned as errors.
func (s *SyncService) RunSync(ctx context.Context, opts types.SyncOptions) (*types.SyncRun, error) {
	if !s.flags.EventSync {
		return nil, types.ErrFeatureDisabled
	}

	calendars, err := s.calendars.ListConfiguredCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	if len(calendars) == 0 {
		return nil, types.ErrNoCalendarsConfigured
	}
	if opts.CalendarFilter != "" {
		calendars = filterCalendars(calendars, opts.CalendarFilter)
		if len(calendars) == 0 {
			return nil, fmt.Errorf("%w: no calendar with id %q", types.ErrNoCalendarsConfigured, opts.CalendarFilter)
		}
	}

	run := &types.SyncRun{
		ID:        uuid.NewString(),
		Mode:      opts.Mode(),
		Options:   opts,
		StartedAt: s.now(),
	}
	log.Printf("sync run %s started: mode=%s calendars=%d", run.ID, run.Mode, len(calendars))

	run.Stats.PerCalendar = s.runCalendars(ctx, calendars, opts)
	run.Summarize()
	run.FinishedAt = s.now()
	run.DurationMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	run.Success = true

	totals := run.Stats.Totals
	log.Printf("sync run %s finished in %dms: events created=%d updated=%d skipped=%d errors=%d, calendars failed=%d/%d",
		run.ID, run.DurationMs, totals.Events.Created, totals.Events.Updated, totals.Events.Skipped, totals.Events.Errors,
		totals.CalendarsFailed, totals.Calendars)

	if s.recorder != nil {
		if err := s.recorder.RecordSyncRun(context.WithoutCancel(ctx), *run); err != nil {
			log.Printf("WARN: failed to record sync run %s: %v", run.ID, err)
		}
	}
	return run, nil
}

// ListCalendars returns the configured calendars, for status surfaces.
func (s *SyncService) ListCalendars(ctx context.Context) ([]types.CalendarConfig, error) {
	return s.calendars.ListConfiguredCalendars(ctx)
}

func filterCalendars(calendars []types.CalendarConfig, id string) []types.CalendarConfig {
	for _, cal := range calendars {
		if cal.ID == id {
			return []types.CalendarConfig{cal}
		}
	}
	return nil
}

// runCalendars fans calendars out over a bounded worker pool. Results keep the
// configured calendar order. A calendar that has started always finishes its batch:
// cancelling ctx only stops calendars that have not started yet.
func (s *SyncService) runCalendars(ctx context.Context, calendars []types.CalendarConfig, opts types.SyncOptions) []types.CalendarResult {
	batchCtx := context.WithoutCancel(ctx)
	if opts.DryRun {
		batchCtx = WithDryRunPredictions(batchCtx)
	}

	workers := len(calendars)
	if s.maxConcurrency > 0 && s.maxConcurrency < workers {
		workers = s.maxConcurrency
	}

	results := make([]types.CalendarResult, len(calendars))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = cancelledResult(calendars[i], err)
					continue
				}
				started := time.Now()
				res := s.syncCalendar(batchCtx, calendars[i], opts)
				res.DurationMs = time.Since(started).Milliseconds()
				results[i] = res
			}
		}()
	}
	for i := range calendars {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func cancelledResult(cal types.CalendarConfig, err error) types.CalendarResult {
	log.Printf("WARN: calendar %s not started: %v", cal.ID, err)
	return types.CalendarResult{
		CalendarID:   cal.ID,
		CalendarName: cal.Name,
		Provider:     cal.Provider,
		Error:        fmt.Sprintf("run cancelled before calendar started: %v", err),
		ErrorKind:    helpers.ErrorKind(err),
	}
}

func (s *SyncService) syncCalendar(ctx context.Context, cal types.CalendarConfig, opts types.SyncOptions) types.CalendarResult {
	res := types.CalendarResult{
		CalendarID:   cal.ID,
		CalendarName: cal.Name,
		Provider:     cal.Provider,
	}

	fail := func(err error) types.CalendarResult {
		log.Printf("ERR: calendar %s (%s) failed: %v", cal.ID, cal.Provider, err)
		res.Error = err.Error()
		res.ErrorKind = helpers.ErrorKind(err)
		return res
	}

	if cal.Provider == constants.PROVIDER_ICAL && !s.flags.IcalSync {
		return fail(fmt.Errorf("%w: ical sync", types.ErrFeatureDisabled))
	}
	adapter, ok := s.sources.Get(cal.Provider)
	if !ok {
		return fail(fmt.Errorf("%w: %q", types.ErrUnknownProvider, cal.Provider))
	}

	bundles, err := adapter.FetchEvents(ctx, cal, s.flags)
	if err != nil {
		return fail(err)
	}
	res.Fetched = len(bundles)

	mode := opts.Mode()
	for _, bundle := range bundles {
		candidate, rsvps, err := s.mapper.MapBundle(cal, bundle)
		if err != nil {
			res.Record(errorResult(types.RecordKindEvent, bundleKey(bundle), err), opts.Verbose)
			continue
		}

		evRes := s.reconciler.ReconcileEvent(ctx, candidate, mode)
		res.Record(evRes, opts.Verbose)

		if !s.flags.AttendeeSync || len(rsvps) == 0 {
			continue
		}
		if evRes.Classification == types.ClassificationError {
			res.NoteError(fmt.Sprintf("%s: %d attendees not attempted", evRes.NaturalKey, len(rsvps)))
			continue
		}
		for _, rsvp := range rsvps {
			res.Record(s.reconciler.ReconcileRsvp(ctx, rsvp, mode), opts.Verbose)
		}
	}

	return res
}

func bundleKey(bundle types.RawEventBundle) string {
	switch {
	case bundle.Luma != nil:
		return types.EventNaturalKey(constants.PROVIDER_LUMA, bundle.Luma.APIID)
	case bundle.Ical != nil:
		return types.EventNaturalKey(constants.PROVIDER_ICAL, bundle.Ical.UID)
	}
	return types.EventNaturalKey(bundle.Provider, "")
}
