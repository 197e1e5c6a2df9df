package handlers

import (
	"context"
	"net/http"

	"github.com/velora-spa/booking-platform/internal/altegio"
	observemetrics "github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	"github.com/velora-spa/booking-platform/internal/schedule"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

type syncRunner interface {
	SyncOnce(ctx context.Context) (reconcile.BatchResult, error)
}

type scheduleDiscoverer interface {
	StaffSchedules(ctx context.Context) (map[int64]*altegio.DiscoveredSchedule, error)
}

type discoveredApplier interface {
	ApplyDiscovered(ctx context.Context, externalID int64, name string, days []schedule.WeeklySchedule) (bool, error)
}

// AdminHandler exposes operational endpoints behind the admin token:
// forcing a sync pass and importing staff schedules from the platform.
type AdminHandler struct {
	syncer    syncRunner
	discovery scheduleDiscoverer
	staff     discoveredApplier
	logger    *logging.Logger
	metrics   *observemetrics.SyncMetrics
}

type AdminConfig struct {
	Syncer    syncRunner
	Discovery scheduleDiscoverer
	Staff     discoveredApplier
	Logger    *logging.Logger
	Metrics   *observemetrics.SyncMetrics
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminHandler{
		syncer:    cfg.Syncer,
		discovery: cfg.Discovery,
		staff:     cfg.Staff,
		logger:    cfg.Logger.Component("admin"),
		metrics:   cfg.Metrics,
	}
}

// Sync handles POST /admin/sync and runs one reconciliation pass inline.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync worker not configured")
		return
	}
	result, err := h.syncer.SyncOnce(r.Context())
	if err != nil {
		h.logger.Error("manual sync failed", "error", err)
		writeError(w, http.StatusBadGateway, "sync failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
}

type discoveredScheduleSummary struct {
	StaffID   int64  `json:"staff_id"`
	StaffName string `json:"staff_name"`
	Source    string `json:"source"`
	Days      int    `json:"days"`
	Applied   bool   `json:"applied"`
}

// DiscoverSchedules handles POST /admin/discover-schedules. It runs the
// discovery cascade and persists every populated result for staff rows
// that do not already carry a schedule.
func (h *AdminHandler) DiscoverSchedules(w http.ResponseWriter, r *http.Request) {
	if h.discovery == nil || h.staff == nil {
		writeError(w, http.StatusServiceUnavailable, "schedule discovery not configured")
		return
	}
	discovered, err := h.discovery.StaffSchedules(r.Context())
	if err != nil {
		h.logger.Error("schedule discovery failed", "error", err)
		writeError(w, http.StatusBadGateway, "discovery failed: "+err.Error())
		return
	}

	perSource := map[string]int{}
	summaries := make([]discoveredScheduleSummary, 0, len(discovered))
	for externalID, sched := range discovered {
		applied := false
		if sched.Populated() {
			applied, err = h.staff.ApplyDiscovered(r.Context(), externalID, sched.StaffName, sched.Days)
			if err != nil {
				h.logger.Error("schedule apply failed", "external_staff_id", externalID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to persist schedules")
				return
			}
		}
		perSource[sched.Source]++
		summaries = append(summaries, discoveredScheduleSummary{
			StaffID:   externalID,
			StaffName: sched.StaffName,
			Source:    sched.Source,
			Days:      len(sched.Days),
			Applied:   applied,
		})
	}
	for source, count := range perSource {
		h.metrics.ObserveDiscovery(source, count)
	}

	h.logger.Info("schedule discovery complete", "staff", len(summaries))
	writeJSON(w, http.StatusOK, map[string]any{
		"staff":     summaries,
		"by_source": perSource,
	})
}
