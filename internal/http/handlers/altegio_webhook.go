package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/velora-spa/booking-platform/internal/altegio"
	observemetrics "github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

type eventApplier interface {
	Apply(ctx context.Context, ev reconcile.Event) (reconcile.Outcome, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// AltegioWebhookHandler receives booking change notifications from the
// scheduling platform.
type AltegioWebhookHandler struct {
	reconciler eventApplier
	processed  processedTracker
	location   *time.Location
	logger     *logging.Logger
	metrics    *observemetrics.SyncMetrics
}

type AltegioWebhookConfig struct {
	Reconciler eventApplier
	Processed  processedTracker // optional
	Location   *time.Location
	Logger     *logging.Logger
	Metrics    *observemetrics.SyncMetrics
}

func NewAltegioWebhookHandler(cfg AltegioWebhookConfig) *AltegioWebhookHandler {
	if cfg.Reconciler == nil {
		panic("handlers: reconciler required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AltegioWebhookHandler{
		reconciler: cfg.Reconciler,
		processed:  cfg.Processed,
		location:   cfg.Location,
		logger:     cfg.Logger.Component("webhook"),
		metrics:    cfg.Metrics,
	}
}

type altegioWebhookPayload struct {
	Event string         `json:"event"`
	Data  altegio.Record `json:"data"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handle processes one webhook delivery. The platform retries anything but
// a 200 and disables endpoints that keep failing, so every outcome, bad
// payloads included, is answered with 200 and a status in the body.
func (h *AltegioWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := h.process(r)
	if resp.Status != "ok" {
		h.metrics.ObserveWebhook("record", "error")
	} else {
		h.metrics.ObserveWebhook("record", "ok")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *AltegioWebhookHandler) process(r *http.Request) webhookResponse {
	var payload altegioWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("undecodable webhook payload", "error", err)
		return webhookResponse{Status: "error", Message: "invalid payload"}
	}

	ev, err := reconcile.EventFromRecord(&payload.Data, h.location)
	if err != nil {
		h.logger.Warn("webhook record rejected", "event", payload.Event, "error", err)
		return webhookResponse{Status: "error", Message: "invalid record"}
	}

	eventKey := fmt.Sprintf("%d:%s:%d", ev.RecordID, ev.Status, ev.StartsAt.Unix())
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(r.Context(), "altegio", eventKey)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err)
		} else if seen {
			return webhookResponse{Status: "ok", Message: "duplicate delivery"}
		}
	}

	outcome, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		h.logger.Error("webhook reconciliation failed", "record_id", ev.RecordID, "error", err)
		return webhookResponse{Status: "error", Message: "reconciliation failed"}
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(r.Context(), "altegio", eventKey); err != nil {
			h.logger.Error("mark processed failed", "error", err)
		}
	}
	h.metrics.ObserveReconcile(string(outcome))
	return webhookResponse{Status: "ok", Message: string(outcome)}
}
