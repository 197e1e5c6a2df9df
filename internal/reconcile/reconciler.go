// Package reconcile folds booking changes from the external platform into
// the local database. Every event is applied in its own transaction and the
// whole flow is idempotent: replaying an event, in any order, converges on
// the same rows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/velora-spa/booking-platform/internal/bookings"
	"github.com/velora-spa/booking-platform/internal/customers"
	"github.com/velora-spa/booking-platform/internal/loyalty"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

// Outcome describes what one event did to the local data.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config configures a Reconciler.
type Config struct {
	DB             txBeginner
	LoyaltyEnabled bool
	Logger         *logging.Logger
}

// Reconciler applies normalized booking events.
type Reconciler struct {
	db             txBeginner
	loyaltyEnabled bool
	now            func() time.Time
	logger         *logging.Logger
}

// New builds a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.DB == nil {
		panic("reconcile: db required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		db:             cfg.DB,
		loyaltyEnabled: cfg.LoyaltyEnabled,
		now:            time.Now,
		logger:         logger.Component("reconcile"),
	}
}

// WithNow overrides the clock, for tests.
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// BatchResult summarizes one reconciliation pass.
type BatchResult struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// ApplyBatch applies events sequentially. A failing event is logged and
// counted; it never stops the rest of the batch.
func (r *Reconciler) ApplyBatch(ctx context.Context, events []Event) BatchResult {
	var res BatchResult
	for _, ev := range events {
		outcome, err := r.Apply(ctx, ev)
		if err != nil {
			res.Failed++
			r.logger.Error("event reconciliation failed", "record_id", ev.RecordID, "error", err)
			continue
		}
		switch outcome {
		case OutcomeCreated:
			res.Created++
		case OutcomeUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	return res
}

// Apply folds one event into the database inside a single transaction.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if ev.RecordID == 0 {
		return OutcomeSkipped, fmt.Errorf("reconcile: event without record id")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("reconcile: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outcome, err := r.apply(ctx, tx, ev)
	if err != nil {
		return OutcomeSkipped, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeSkipped, fmt.Errorf("reconcile: commit: %w", err)
	}
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, tx pgx.Tx, ev Event) (Outcome, error) {
	custRepo := customers.NewRepositoryWithQuerier(tx)
	bookRepo := bookings.NewRepositoryWithQuerier(tx)

	customer, err := r.resolveCustomer(ctx, custRepo, ev)
	if err != nil {
		return OutcomeSkipped, err
	}
	if customer == nil {
		// Unknown visitor: the platform record stands on its own and there
		// is nothing local to reconcile against.
		r.logger.Info("no local customer for record, skipping",
			"record_id", ev.RecordID, "email", ev.ClientEmail)
		return OutcomeSkipped, nil
	}

	status := bookings.StatusFromExternal(ev.Status)

	booking, err := r.matchBooking(ctx, bookRepo, customer, ev)
	if err != nil {
		return OutcomeSkipped, err
	}

	if booking == nil {
		booking = &bookings.Booking{
			CustomerID:   customer.ID,
			ServiceName:  ev.ServiceName,
			DurationMins: ev.DurationMins,
			PriceCents:   ev.PriceCents,
			StartsAt:     ev.StartsAt,
			Status:       status,
			Phone:        ev.ClientPhone,
			Notes:        bookings.ComposeNotes(ev.RecordID, customer.MatchingCode, ev.Comment),
		}
		if status == bookings.StatusCancelled {
			now := r.now().UTC()
			booking.CancelledAt = &now
		}
		if _, err := bookRepo.Create(ctx, booking); err != nil {
			return OutcomeSkipped, err
		}
		r.logger.Info("booking mirrored from platform",
			"record_id", ev.RecordID, "booking_id", booking.ID, "status", status)
		outcome := OutcomeCreated
		if err := r.accrue(ctx, tx, bookRepo, custRepo, customer, booking); err != nil {
			return OutcomeSkipped, err
		}
		return outcome, nil
	}

	// Records without service lines keep the stored service fields.
	if ev.ServiceName != "" {
		booking.ServiceName = ev.ServiceName
	}
	if ev.DurationMins != 0 {
		booking.DurationMins = ev.DurationMins
	}
	if ev.PriceCents != 0 {
		booking.PriceCents = ev.PriceCents
	}
	booking.StartsAt = ev.StartsAt
	booking.Status = status
	if ev.ClientPhone != "" {
		booking.Phone = ev.ClientPhone
	}
	booking.Notes = bookings.ComposeNotes(ev.RecordID, customer.MatchingCode, ev.Comment)
	if status == bookings.StatusCancelled && booking.CancelledAt == nil {
		now := r.now().UTC()
		booking.CancelledAt = &now
	}

	if err := bookRepo.Update(ctx, booking); err != nil {
		return OutcomeSkipped, err
	}
	if err := r.accrue(ctx, tx, bookRepo, custRepo, customer, booking); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeUpdated, nil
}

// resolveCustomer finds the local customer for an event: comment code
// marker first, then email, then phone suffix. nil means no match.
func (r *Reconciler) resolveCustomer(ctx context.Context, repo *customers.Repository, ev Event) (*customers.Customer, error) {
	if code, ok := bookings.ParseMatchingCode(ev.Comment); ok {
		customer, err := repo.FindByMatchingCode(ctx, code)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, err
		}
	}

	if ev.ClientEmail != "" {
		customer, err := repo.FindByEmail(ctx, ev.ClientEmail)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, err
		}
	}

	if ev.ClientPhone != "" {
		customer, err := repo.FindByPhoneSuffix(ctx, ev.ClientPhone)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// matchBooking finds the local booking for an event: the record-id marker
// first, then (customer, appointment time, code marker). nil means create.
func (r *Reconciler) matchBooking(ctx context.Context, repo *bookings.Repository, customer *customers.Customer, ev Event) (*bookings.Booking, error) {
	booking, err := repo.FindByExternalID(ctx, ev.RecordID)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, bookings.ErrBookingNotFound) {
		return nil, err
	}

	booking, err = repo.FindByCustomerTimeCode(ctx, customer.ID, ev.StartsAt, customer.MatchingCode)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, bookings.ErrBookingNotFound) {
		return nil, err
	}
	return nil, nil
}

// accrue credits loyalty points for a completed booking, at most once. The
// awarded flag flips inside the same transaction as the status change, so a
// crash between the two can never double-credit.
func (r *Reconciler) accrue(ctx context.Context, tx pgx.Tx, bookRepo *bookings.Repository, custRepo *customers.Repository, customer *customers.Customer, booking *bookings.Booking) error {
	if !r.loyaltyEnabled {
		return nil
	}
	if booking.Status != bookings.StatusCompleted || booking.LoyaltyAwarded {
		return nil
	}

	tier, err := loyalty.NewRepositoryWithQuerier(tx).TierForBalance(ctx, customer.LoyaltyPoints)
	if err != nil {
		return err
	}
	var points int64
	if tier != nil {
		points = loyalty.PointsFor(booking.PriceCents, tier.Percent)
	}

	awarded, err := bookRepo.MarkLoyaltyAwarded(ctx, booking.ID, points)
	if err != nil {
		return err
	}
	if !awarded || points == 0 {
		return nil
	}

	balance, err := custRepo.AddLoyaltyPoints(ctx, customer.ID, points)
	if err != nil {
		return err
	}
	r.logger.Info("loyalty points credited",
		"booking_id", booking.ID, "customer_id", customer.ID, "points", points, "balance", balance)
	return nil
}
