package bookings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBookingNotFound is returned when no booking matches the lookup.
var ErrBookingNotFound = errors.New("booking not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores bookings in the relational database.
type Repository struct {
	db querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a transaction or a mock.
func NewRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("bookings: querier required")
	}
	return &Repository{db: db}
}

const bookingColumns = `id, customer_id, service_name, duration_mins, price_cents, starts_at,
	status, phone, notes, cancelled_at, cancel_reason, loyalty_awarded, loyalty_points,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.CustomerID,
		&b.ServiceName,
		&b.DurationMins,
		&b.PriceCents,
		&b.StartsAt,
		&b.Status,
		&b.Phone,
		&b.Notes,
		&b.CancelledAt,
		&b.CancelReason,
		&b.LoyaltyAwarded,
		&b.LoyaltyPoints,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: scan: %w", err)
	}
	return &b, nil
}

// GetByID fetches one booking.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRow(ctx, query, id))
}

// FindByExternalID matches on the record-id marker inside the notes. The
// trailing boundary keeps id 12 from matching the marker for id 123.
func (r *Repository) FindByExternalID(ctx context.Context, recordID int64) (*Booking, error) {
	pattern := fmt.Sprintf(`Altegio ID:\s*%d(\D|$)`, recordID)
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE notes ~ $1 ORDER BY created_at LIMIT 1`
	return scanBooking(r.db.QueryRow(ctx, query, pattern))
}

// FindByCustomerTimeCode is the secondary booking match: same customer,
// same appointment time, and the notes carry the customer's code marker.
func (r *Repository) FindByCustomerTimeCode(ctx context.Context, customerID uuid.UUID, startsAt time.Time, code string) (*Booking, error) {
	pattern := fmt.Sprintf(`Code:\s*%s(\W|$)`, regexp.QuoteMeta(code))
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE customer_id = $1 AND starts_at = $2 AND notes ~ $3
		ORDER BY created_at
		LIMIT 1
	`
	return scanBooking(r.db.QueryRow(ctx, query, customerID, startsAt, pattern))
}

// Create inserts a booking row.
func (r *Repository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	query := `
		INSERT INTO bookings (id, customer_id, service_name, duration_mins, price_cents,
			starts_at, status, phone, notes, cancelled_at, cancel_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.ID,
		b.CustomerID,
		b.ServiceName,
		b.DurationMins,
		b.PriceCents,
		b.StartsAt,
		b.Status,
		b.Phone,
		b.Notes,
		b.CancelledAt,
		b.CancelReason,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}
	return b, nil
}

// Update rewrites the mutable fields of a booking.
func (r *Repository) Update(ctx context.Context, b *Booking) error {
	query := `
		UPDATE bookings
		SET service_name = $2, duration_mins = $3, price_cents = $4, starts_at = $5,
			status = $6, phone = $7, notes = $8, cancelled_at = $9, cancel_reason = $10,
			updated_at = now()
		WHERE id = $1
	`
	ct, err := r.db.Exec(ctx, query,
		b.ID,
		b.ServiceName,
		b.DurationMins,
		b.PriceCents,
		b.StartsAt,
		b.Status,
		b.Phone,
		b.Notes,
		b.CancelledAt,
		b.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("bookings: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// MarkCancelled stamps the cancellation. The timestamp is only written the
// first time; repeating a cancellation never moves it.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE bookings
		SET status = $2,
			cancelled_at = COALESCE(cancelled_at, now()),
			cancel_reason = CASE WHEN cancel_reason = '' THEN $3 ELSE cancel_reason END,
			updated_at = now()
		WHERE id = $1
	`
	ct, err := r.db.Exec(ctx, query, id, StatusCancelled, reason)
	if err != nil {
		return fmt.Errorf("bookings: mark cancelled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// MarkLoyaltyAwarded flips the awarded flag and records the point amount.
// Returns false when the flag was already set, so a second completion event
// never credits twice.
func (r *Repository) MarkLoyaltyAwarded(ctx context.Context, id uuid.UUID, points int64) (bool, error) {
	query := `
		UPDATE bookings
		SET loyalty_awarded = TRUE, loyalty_points = $2, updated_at = now()
		WHERE id = $1 AND NOT loyalty_awarded
	`
	ct, err := r.db.Exec(ctx, query, id, points)
	if err != nil {
		return false, fmt.Errorf("bookings: mark loyalty awarded: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
