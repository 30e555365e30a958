package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/transport"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

const maxWebhookBodyBytes = int64(1 << 20)

type WebhookHandler struct {
	Receiver interfaces.WebhookReceiverInterface
}

func NewWebhookHandler(receiver interfaces.WebhookReceiverInterface) *WebhookHandler {
	return &WebhookHandler{Receiver: receiver}
}

// HandleProviderWebhook always answers 200 {"ok":true}. What happened to the payload
// is logged by the receiver, never returned to the provider.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)[constants.PROVIDER_PATH_KEY]

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("ERR: reading %s webhook body: %v", provider, err)
	} else {
		h.Receiver.HandleWebhook(r.Context(), provider, r.Header, body)
	}

	transport.SendJSON(w, types.WebhookAck{Ok: true}, http.StatusOK)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	transport.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
