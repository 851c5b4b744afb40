package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/goaltrack-api/internal/domain"
)

// Stripe caps event payloads well below this.
const maxWebhookBytes = 64 << 10

type eventParser interface {
	ParseEvent(payload []byte, signature string) (*domain.ProcessorEvent, error)
}

type eventHandler interface {
	HandleEvent(ctx context.Context, ev *domain.ProcessorEvent) error
}

// StripeWebhookHandler serves POST /stripe-webhook.
type StripeWebhookHandler struct {
	parser  eventParser
	handler eventHandler
}

func NewStripeWebhookHandler(parser eventParser, handler eventHandler) *StripeWebhookHandler {
	return &StripeWebhookHandler{parser: parser, handler: handler}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	ev, err := h.parser.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		slog.Warn("rejected stripe webhook", "err", err)
		httpError(w, r, err)
		return
	}
	if err := h.handler.HandleEvent(r.Context(), ev); err != nil {
		slog.Error("stripe webhook failed", "event_id", ev.ID, "type", ev.Type, "err", err)
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
