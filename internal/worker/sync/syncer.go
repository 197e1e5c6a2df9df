// Package sync polls the external scheduling platform and reconciles every
// booking record inside a forward window into the local database.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/velora-spa/booking-platform/internal/altegio"
	"github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

type recordLister interface {
	Records(ctx context.Context, from, to time.Time) ([]altegio.Record, error)
}

type applier interface {
	ApplyBatch(ctx context.Context, events []reconcile.Event) reconcile.BatchResult
}

// Syncer periodically pulls booking records and applies them.
type Syncer struct {
	client     recordLister
	reconciler applier
	windowDays int
	location   *time.Location
	metrics    *metrics.SyncMetrics
	logger     *logging.Logger
	now        func() time.Time

	tick <-chan time.Time
	stop func()
}

// Config configures a Syncer. Tick/Stop let tests drive the loop manually;
// when Tick is nil a real ticker at Interval is used.
type Config struct {
	Client     recordLister
	Reconciler applier

	Interval   time.Duration
	WindowDays int
	Location   *time.Location
	Metrics    *metrics.SyncMetrics
	Logger     *logging.Logger

	Tick <-chan time.Time
	Stop func()
}

// New builds a Syncer.
func New(cfg Config) (*Syncer, error) {
	if cfg.Client == nil {
		return nil, errors.New("sync: client required")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("sync: reconciler required")
	}

	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	if windowDays > 90 {
		windowDays = 90
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 30 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Syncer{
		client:     cfg.Client,
		reconciler: cfg.Reconciler,
		windowDays: windowDays,
		location:   loc,
		metrics:    cfg.Metrics,
		logger:     logger.Component("sync"),
		now:        time.Now,
		tick:       tick,
		stop:       stop,
	}, nil
}

// WithNow overrides the clock, for tests.
func (s *Syncer) WithNow(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Start runs the poll loop until the context is cancelled. A pass runs
// immediately on start, then on every tick.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	_, _ = s.SyncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			_, _ = s.SyncOnce(ctx)
		}
	}
}

// SyncOnce runs a single reconciliation pass over the forward window.
// A record that cannot be normalized is skipped; it never fails the pass.
func (s *Syncer) SyncOnce(ctx context.Context) (reconcile.BatchResult, error) {
	started := s.now()
	from := started.In(s.location)
	to := from.AddDate(0, 0, s.windowDays)

	records, err := s.client.Records(ctx, from, to)
	if err != nil {
		s.logger.Error("record listing failed", "error", err)
		return reconcile.BatchResult{}, err
	}

	events := make([]reconcile.Event, 0, len(records))
	for i := range records {
		ev, err := reconcile.EventFromRecord(&records[i], s.location)
		if err != nil {
			s.logger.Warn("skipping malformed record", "error", err)
			continue
		}
		events = append(events, ev)
	}

	res := s.reconciler.ApplyBatch(ctx, events)
	s.metrics.ObserveSyncDuration(time.Since(started).Seconds())
	s.observeOutcomes(res)

	s.logger.Info("sync pass finished",
		"records", len(records),
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *Syncer) observeOutcomes(res reconcile.BatchResult) {
	for i := 0; i < res.Created; i++ {
		s.metrics.ObserveReconcile(string(reconcile.OutcomeCreated))
	}
	for i := 0; i < res.Updated; i++ {
		s.metrics.ObserveReconcile(string(reconcile.OutcomeUpdated))
	}
	for i := 0; i < res.Skipped; i++ {
		s.metrics.ObserveReconcile(string(reconcile.OutcomeSkipped))
	}
	for i := 0; i < res.Failed; i++ {
		s.metrics.ObserveReconcile("failed")
	}
}
