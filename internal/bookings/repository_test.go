package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingRow(b *Booking) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "customer_id", "service_name", "duration_mins", "price_cents", "starts_at",
		"status", "phone", "notes", "cancelled_at", "cancel_reason", "loyalty_awarded",
		"loyalty_points", "created_at", "updated_at",
	}).AddRow(
		b.ID, b.CustomerID, b.ServiceName, b.DurationMins, b.PriceCents, b.StartsAt,
		b.Status, b.Phone, b.Notes, b.CancelledAt, b.CancelReason, b.LoyaltyAwarded,
		b.LoyaltyPoints, b.CreatedAt, b.UpdatedAt,
	)
}

func sampleBooking() *Booking {
	now := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	return &Booking{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		ServiceName:  "Deep Tissue Massage",
		DurationMins: 60,
		PriceCents:   450000,
		StartsAt:     now,
		Status:       StatusConfirmed,
		Notes:        "Altegio ID: 900123 | Code: VEL-8842ABCD",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestFindByExternalIDAnchorsPattern(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := sampleBooking()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WithArgs(`Altegio ID:\s*900123(\D|$)`).
		WillReturnRows(bookingRow(want))

	got, err := NewRepositoryWithQuerier(mock).FindByExternalID(context.Background(), 900123)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByCustomerTimeCodeMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	startsAt := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs(customerID, startsAt, `Code:\s*VEL-8842ABCD(\W|$)`).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewRepositoryWithQuerier(mock).FindByCustomerTimeCode(context.Background(), customerID, startsAt, "VEL-8842ABCD")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDefaultsStatusPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := sampleBooking()
	b.ID = uuid.Nil
	b.Status = ""
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), b.CustomerID, b.ServiceName, b.DurationMins, b.PriceCents,
			b.StartsAt, StatusPending, b.Phone, b.Notes, b.CancelledAt, b.CancelReason).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	created, err := NewRepositoryWithQuerier(mock).Create(context.Background(), b)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCancelledKeepsFirstTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, StatusCancelled, "client request").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepositoryWithQuerier(mock)
	require.NoError(t, repo.MarkCancelled(context.Background(), id, "client request"))

	mock.ExpectExec("UPDATE bookings").
		WithArgs(uuid.Nil, StatusCancelled, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkCancelled(context.Background(), uuid.Nil, ""), ErrBookingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkLoyaltyAwardedOnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	repo := NewRepositoryWithQuerier(mock)

	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, int64(135)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	awarded, err := repo.MarkLoyaltyAwarded(context.Background(), id, 135)
	require.NoError(t, err)
	assert.True(t, awarded)

	// Second completion event hits the guard clause and affects no rows.
	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, int64(135)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	awarded, err = repo.MarkLoyaltyAwarded(context.Background(), id, 135)
	require.NoError(t, err)
	assert.False(t, awarded)
	require.NoError(t, mock.ExpectationsWereMet())
}
