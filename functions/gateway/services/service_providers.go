package services

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/ringsaturn/tzf"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/services/dynamodb_service"
	"github.com/zoworld/eventsync/functions/gateway/test_helpers"
	"github.com/zoworld/eventsync/functions/gateway/transport"
)

var (
	calendarProvider     interfaces.CalendarProviderInterface
	calendarProviderOnce sync.Once

	canonicalMapper     *CanonicalMapper
	canonicalMapperOnce sync.Once

	reconcileEngine     *ReconcileEngine
	reconcileEngineOnce sync.Once

	syncService     *SyncService
	syncServiceOnce sync.Once

	webhookService     *WebhookService
	webhookServiceOnce sync.Once
)

func isTestEnv() bool {
	return os.Getenv("GO_ENV") == constants.GO_TEST_ENV
}

func GetCalendarProvider() interfaces.CalendarProviderInterface {
	calendarProviderOnce.Do(func() {
		if isTestEnv() {
			calendarProvider = &test_helpers.MockCalendarProvider{}
		} else {
			calendarProvider = NewCalendarConfigService(os.Getenv("SYNC_CALENDARS_FILE"))
		}
	})
	return calendarProvider
}

// GetCanonicalMapper loads the timezone finder once; without it the mapper falls back
// to calendar defaults and UTC.
func GetCanonicalMapper() *CanonicalMapper {
	canonicalMapperOnce.Do(func() {
		if isTestEnv() {
			canonicalMapper = NewCanonicalMapper(nil)
			return
		}
		finder, err := tzf.NewDefaultFinder()
		if err != nil {
			log.Printf("WARN: timezone finder unavailable, coordinates will not resolve timezones: %v", err)
			canonicalMapper = NewCanonicalMapper(nil)
			return
		}
		canonicalMapper = NewCanonicalMapper(finder)
	})
	return canonicalMapper
}

// GetReconcileEngine is shared by bulk sync and webhooks so both serialize on the same
// per-key locks.
func GetReconcileEngine(ctx context.Context) *ReconcileEngine {
	reconcileEngineOnce.Do(func() {
		svc, err := GetNatsService(ctx)
		if err != nil {
			log.Printf("WARN: change feed disabled: %v", err)
		}
		reconcileEngine = NewReconcileEngine(GetPostgresService(ctx), changePublisher(svc, err))
	})
	return reconcileEngine
}

// GetSyncRunLog returns the DynamoDB sync run log, or nil when SYNC_RUNS_ENABLED is off.
func GetSyncRunLog() interfaces.SyncRunRecorderInterface {
	if !helpers.GetEnvBool("SYNC_RUNS_ENABLED", true) {
		return nil
	}
	return dynamodb_service.NewSyncRunService(transport.GetDB())
}

func GetSyncService(ctx context.Context) *SyncService {
	syncServiceOnce.Do(func() {
		sources := NewSourceRegistry(
			NewLumaService(nil, os.Getenv("LUMA_API_BASE_URL")),
			NewIcalService(nil, helpers.GetEnvInt("SYNC_HORIZON_DAYS", constants.DEFAULT_SYNC_HORIZON_DAYS)),
		)
		syncService = NewSyncService(SyncServiceConfig{
			Calendars:      GetCalendarProvider(),
			Sources:        sources,
			Mapper:         GetCanonicalMapper(),
			Reconciler:     GetReconcileEngine(ctx),
			Recorder:       GetSyncRunLog(),
			Flags:          helpers.LoadFeatureFlags(),
			MaxConcurrency: helpers.GetEnvInt("SYNC_MAX_CONCURRENCY", 0),
		})
	})
	return syncService
}

func GetWebhookService(ctx context.Context) *WebhookService {
	webhookServiceOnce.Do(func() {
		webhookService = NewWebhookService(WebhookServiceConfig{
			Mapper:     GetCanonicalMapper(),
			Reconciler: GetReconcileEngine(ctx),
			Calendars:  GetCalendarProvider(),
			Flags:      helpers.LoadFeatureFlags(),
			Secrets: map[string]string{
				constants.PROVIDER_LUMA: os.Getenv("LUMA_WEBHOOK_SECRET"),
			},
		})
	})
	return webhookService
}

// ResetServices drops every cached singleton.
func ResetServices() {
	calendarProvider, calendarProviderOnce = nil, sync.Once{}
	canonicalMapper, canonicalMapperOnce = nil, sync.Once{}
	reconcileEngine, reconcileEngineOnce = nil, sync.Once{}
	syncService, syncServiceOnce = nil, sync.Once{}
	webhookService, webhookServiceOnce = nil, sync.Once{}
	natsService, natsServiceOnce, natsServiceErr = nil, sync.Once{}, nil
	ResetPostgresService()
}
