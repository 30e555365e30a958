package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/services"
	"github.com/zoworld/eventsync/functions/gateway/test_helpers"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

type mockReceiver struct {
	calls    int
	provider string
	body     string
}

func (m *mockReceiver) HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) types.WebhookOutcome {
	m.calls++
	m.provider = provider
	m.body = string(body)
	return types.WebhookOutcome{Provider: provider, Status: types.WebhookStatusFailed}
}

func webhookRequest(provider, secret, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	if secret != "" {
		req.Header.Set(constants.LUMA_WEBHOOK_SECRET_HEADER, secret)
	}
	return mux.SetURLVars(req, map[string]string{constants.PROVIDER_PATH_KEY: provider})
}

func TestWebhookHandlerAlwaysAcks(t *testing.T) {
	receiver := &mockReceiver{}
	handler := NewWebhookHandler(receiver)

	rr := httptest.NewRecorder()
	handler.HandleProviderWebhook(rr, webhookRequest("luma", "s", `{"type":"event.updated"}`))

	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"ok":true}` {
		t.Errorf("expected 200 {\"ok\":true}, got %d %s", rr.Code, rr.Body.String())
	}
	if receiver.calls != 1 || receiver.provider != "luma" || receiver.body != `{"type":"event.updated"}` {
		t.Errorf("unexpected receiver call %+v", receiver)
	}
}

func TestWebhookHandlerEndToEnd(t *testing.T) {
	store := test_helpers.NewMockCanonicalStore()
	receiver := services.NewWebhookService(services.WebhookServiceConfig{
		Reconciler: services.NewReconcileEngine(store, nil),
		Flags:      allFlags,
		Secrets:    map[string]string{constants.PROVIDER_LUMA: "whsec"},
	})
	handler := NewWebhookHandler(receiver)
	body := `{"type":"event.created","data":{"api_id":"evt-1","name":"Show","start_at":"2025-03-01T19:00:00Z"}}`

	tests := []struct {
		name      string
		provider  string
		secret    string
		body      string
		wantStore int
	}{
		{"bad secret is acked silently", "luma", "wrong", body, 0},
		{"garbage is acked", "luma", "whsec", "not json", 0},
		{"unknown provider is acked", "eventbrite", "whsec", body, 0},
		{"valid push is applied", "luma", "whsec", body, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.HandleProviderWebhook(rr, webhookRequest(tt.provider, tt.secret, tt.body))
			if rr.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rr.Code)
			}
			if got := len(store.Events()); got != tt.wantStore {
				t.Errorf("expected %d stored events, got %d", tt.wantStore, got)
			}
		})
	}
}

func TestWebhookHandlerOversizedBody(t *testing.T) {
	receiver := &mockReceiver{}
	rr := httptest.NewRecorder()
	NewWebhookHandler(receiver).HandleProviderWebhook(rr, webhookRequest("luma", "s", strings.Repeat("x", int(maxWebhookBodyBytes)+1)))

	if rr.Code != http.StatusOK {
		t.Errorf("expected ack even for an oversized body, got %d", rr.Code)
	}
	if receiver.calls != 0 {
		t.Errorf("oversized body must not reach the receiver")
	}
}

func TestHealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Errorf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}
