package payments

import (
	"io"
	"net/http"

	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// WebhookHandler is the provider-agnostic webhook endpoint: verify,
// parse, reconcile. One instance per mounted provider.
type WebhookHandler struct {
	provider   Provider
	reconciler *Reconciler
	logger     *logging.Logger
}

// NewWebhookHandler creates a webhook endpoint for one provider.
func NewWebhookHandler(provider Provider, reconciler *Reconciler, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{provider: provider, reconciler: reconciler, logger: logger}
}

// Handle processes one webhook delivery. Status codes are the retry
// contract with the provider: 2xx acknowledges, 4xx drops, 5xx retries.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.provider.VerifySignature(r.Context(), payload, r.Header); err != nil {
		h.logger.Warn("webhook signature rejected",
			"provider", h.provider.Name(), "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	evt, err := h.provider.ParseEvent(r.Context(), payload)
	if err != nil {
		h.logger.Error("webhook parse failed",
			"provider", h.provider.Name(), "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.Process(r.Context(), evt); err != nil {
		h.logger.Error("reconciliation failed",
			"provider", h.provider.Name(), "event_id", evt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
