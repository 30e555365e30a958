package services

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

type WebhookServiceConfig struct {
	Mapper     *CanonicalMapper
	Reconciler interfaces.ReconcilerInterface
	// Calendars, when set, supplies per-calendar context (culture tag, default
	// timezone) for pushed events whose calendar_api_id matches a configured id.
	Calendars interfaces.CalendarProviderInterface
	Flags     types.FeatureFlags
	// Secrets maps provider name to its shared webhook secret.
	Secrets map[string]string
}

// WebhookService applies one pushed payload through the same mapper and reconciler as
// bulk sync. It never returns an error; the outcome is for logging only.
type WebhookService struct {
	mapper     *CanonicalMapper
	reconciler interfaces.ReconcilerInterface
	calendars  interfaces.CalendarProviderInterface
	flags      types.FeatureFlags
	secrets    map[string]string
}

func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = NewCanonicalMapper(nil)
	}
	return &WebhookService{
		mapper:     mapper,
		reconciler: cfg.Reconciler,
		calendars:  cfg.Calendars,
		flags:      cfg.Flags,
		secrets:    cfg.Secrets,
	}
}

func (s *WebhookService) HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) types.WebhookOutcome {
	outcome := s.handle(ctx, provider, header, body)
	if outcome.Result != nil {
		log.Printf("webhook %s %s: %s (%s %s)", provider, outcome.Type, outcome.Status, outcome.Result.Classification, outcome.Result.NaturalKey)
	} else {
		log.Printf("webhook %s %s: %s %s", provider, outcome.Type, outcome.Status, outcome.Reason)
	}
	return outcome
}

func (s *WebhookService) handle(ctx context.Context, provider string, header http.Header, body []byte) types.WebhookOutcome {
	outcome := types.WebhookOutcome{Provider: provider}

	if !s.flags.Webhooks {
		outcome.Status = types.WebhookStatusIgnored
		outcome.Reason = "webhooks disabled"
		return outcome
	}
	if provider != constants.PROVIDER_LUMA {
		outcome.Status = types.WebhookStatusIgnored
		outcome.Reason = "unsupported provider"
		return outcome
	}
	if !s.authenticate(provider, header.Get(constants.LUMA_WEBHOOK_SECRET_HEADER)) {
		log.Printf("WARN: %v on %s webhook", types.ErrAuthenticationFailure, provider)
		outcome.Status = types.WebhookStatusRejected
		outcome.Reason = "authentication"
		return outcome
	}

	payload, err := ParseLumaWebhook(body)
	if err != nil {
		log.Printf("WARN: %v", err)
		outcome.Status = types.WebhookStatusRejected
		outcome.Reason = "invalid payload"
		return outcome
	}
	outcome.Type = payload.Type

	var result types.ReconcileResult
	switch payload.Type {
	case constants.LUMA_WEBHOOK_EVENT_CREATED, constants.LUMA_WEBHOOK_EVENT_UPDATED, constants.LUMA_WEBHOOK_EVENT_CANCELED:
		ev, err := DecodeLumaWebhookEvent(payload)
		if err != nil {
			return failed(outcome, err)
		}
		var cancelled *bool
		if payload.Type == constants.LUMA_WEBHOOK_EVENT_CANCELED {
			cancelled = helpers.BoolPtr(true)
		}
		candidate, err := s.mapper.MapLumaEvent(s.calendarFor(ctx, ev.CalendarAPIID), *ev, cancelled)
		if err != nil {
			return failed(outcome, err)
		}
		result = s.reconciler.ReconcileEvent(ctx, candidate, types.SyncModeApply)
	case constants.LUMA_WEBHOOK_GUEST_REGISTERED, constants.LUMA_WEBHOOK_GUEST_UPDATED:
		if !s.flags.AttendeeSync {
			outcome.Status = types.WebhookStatusIgnored
			outcome.Reason = "attendee sync disabled"
			return outcome
		}
		guest, err := DecodeLumaWebhookGuest(payload)
		if err != nil {
			return failed(outcome, err)
		}
		rsvp, err := s.mapper.MapLumaGuest(constants.PROVIDER_LUMA, guest.EventAPIID, *guest)
		if err != nil {
			return failed(outcome, err)
		}
		result = s.reconciler.ReconcileRsvp(ctx, rsvp, types.SyncModeApply)
	default:
		outcome.Status = types.WebhookStatusIgnored
		outcome.Reason = "unhandled type"
		return outcome
	}

	outcome.Result = &result
	if result.Classification == types.ClassificationError {
		outcome.Status = types.WebhookStatusFailed
		outcome.Reason = result.Error
		return outcome
	}
	outcome.Status = types.WebhookStatusProcessed
	return outcome
}

// authenticate compares in constant time. A provider without a configured secret
// accepts nothing.
func (s *WebhookService) authenticate(provider, presented string) bool {
	expected := s.secrets[provider]
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

func (s *WebhookService) calendarFor(ctx context.Context, calendarAPIID string) types.CalendarConfig {
	cal := types.CalendarConfig{Provider: constants.PROVIDER_LUMA}
	if s.calendars == nil || calendarAPIID == "" {
		return cal
	}
	calendars, err := s.calendars.ListConfiguredCalendars(ctx)
	if err != nil {
		log.Printf("WARN: webhook could not list calendars: %v", err)
		return cal
	}
	for _, c := range calendars {
		if c.Provider == constants.PROVIDER_LUMA && c.ID == calendarAPIID {
			return c
		}
	}
	return cal
}

func failed(outcome types.WebhookOutcome, err error) types.WebhookOutcome {
	log.Printf("ERR: webhook %s %s: %v", outcome.Provider, outcome.Type, err)
	outcome.Status = types.WebhookStatusFailed
	outcome.Reason = helpers.ErrorKind(err)
	return outcome
}
