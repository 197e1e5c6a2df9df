package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora-spa/booking-platform/internal/bookings"
)

var (
	testCustomerID = uuid.MustParse("3f6b2a10-9d4c-4a8e-b1c2-0f5d6e7a8b9c")
	testBookingID  = uuid.MustParse("7a1e5c20-1b3d-4f6a-8c9e-2d4f6a8b0c1e")
	testStartsAt   = time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	testNow        = time.Date(2026, 9, 7, 16, 30, 0, 0, time.UTC)
)

func newTestReconciler(t *testing.T, loyaltyEnabled bool) (*Reconciler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	r := New(Config{DB: mock, LoyaltyEnabled: loyaltyEnabled})
	return r.WithNow(func() time.Time { return testNow }), mock
}

func customerRows(points int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "email", "phone", "matching_code", "loyalty_points", "created_at"}).
		AddRow(testCustomerID, "Dana Ives", "dana@example.com", "+15550001234", "VEL-8842ABCD", points, testStartsAt)
}

func bookingRows(status bookings.Status, cancelledAt *time.Time, awarded bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "customer_id", "service_name", "duration_mins", "price_cents", "starts_at",
		"status", "phone", "notes", "cancelled_at", "cancel_reason", "loyalty_awarded",
		"loyalty_points", "created_at", "updated_at",
	}).AddRow(
		testBookingID, testCustomerID, "Deep Tissue Massage", 60, int64(450000), testStartsAt,
		status, "+15550001234", "Altegio ID: 900123 | Code: VEL-8842ABCD", cancelledAt, "", awarded,
		int64(0), testStartsAt, testStartsAt,
	)
}

func confirmedEvent() Event {
	return Event{
		RecordID:     900123,
		Status:       "confirmed",
		StartsAt:     testStartsAt,
		Comment:      "Code: VEL-8842ABCD",
		ClientName:   "Dana Ives",
		ClientEmail:  "other@example.com",
		ClientPhone:  "+15550001234",
		ServiceName:  "Deep Tissue Massage",
		DurationMins: 60,
		PriceCents:   450000,
	}
}

func TestApplyCommentCodeBeatsEmail(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	// The email on the event belongs to nobody; the code marker must win
	// without the email ever being consulted.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WithArgs("VEL-8842ABCD").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs(testCustomerID, testStartsAt, `Code:\s*VEL-8842ABCD(\W|$)`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUnknownCustomerIsAcceptedAndSkipped(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	ev := confirmedEvent()
	ev.Comment = "walk-in"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE lower").
		WithArgs("other@example.com").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM customers").
		WithArgs("5550001234").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUpdateStampsCancellationOnce(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	ev := confirmedEvent()
	ev.Status = "cancelled"

	// First cancellation: no timestamp yet, the clock value gets written.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusConfirmed, nil, false))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(testBookingID, ev.ServiceName, 60, int64(450000), testStartsAt,
			bookings.StatusCancelled, ev.ClientPhone, pgxmock.AnyArg(), &testNow, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	// Replay: the stored timestamp is older than the clock and must survive.
	earlier := testStartsAt.Add(30 * time.Minute)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusCancelled, &earlier, false))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(testBookingID, ev.ServiceName, 60, int64(450000), testStartsAt,
			bookings.StatusCancelled, ev.ClientPhone, pgxmock.AnyArg(), &earlier, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err = r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUpdatePreservesServiceFieldsWhenEventLacksThem(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	// Cancellation records often arrive without service lines; the stored
	// name, duration, and price must survive the update.
	ev := confirmedEvent()
	ev.Status = "cancelled"
	ev.ServiceName = ""
	ev.DurationMins = 0
	ev.PriceCents = 0

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusConfirmed, nil, false))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(testBookingID, "Deep Tissue Massage", 60, int64(450000), testStartsAt,
			bookings.StatusCancelled, ev.ClientPhone, pgxmock.AnyArg(), &testNow, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPhoneSuffixMatchCreatesConfirmedBooking(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	ev := confirmedEvent()
	ev.Status = "confirmed_online"
	ev.Comment = "walk-in"
	ev.ClientEmail = "nobody@example.com"
	ev.ClientPhone = "+1 (555) 000-1234"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE lower").
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM customers").
		WithArgs("5550001234").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs(testCustomerID, testStartsAt, `Code:\s*VEL-8842ABCD(\W|$)`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), testCustomerID, "Deep Tissue Massage", 60, int64(450000),
			testStartsAt, bookings.StatusConfirmed, ev.ClientPhone, pgxmock.AnyArg(),
			pgxmock.AnyArg(), "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCompletedAccruesOnce(t *testing.T) {
	r, mock := newTestReconciler(t, true)

	ev := confirmedEvent()
	ev.Status = "done"

	// First completion event credits 3% of 4500.00.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(100))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusConfirmed, nil, false))
	mock.ExpectExec("UPDATE bookings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT (.+) FROM loyalty_tiers").
		WithArgs(int64(100)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "min_points", "percent"}).
			AddRow(int64(1), "Silver", int64(0), 3.0))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(testBookingID, int64(135)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("UPDATE customers").
		WithArgs(testCustomerID, int64(135)).
		WillReturnRows(pgxmock.NewRows([]string{"loyalty_points"}).AddRow(int64(235)))
	mock.ExpectCommit()

	outcome, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	// Replay: the awarded flag on the row short-circuits before any loyalty
	// query is issued.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(235))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusCompleted, nil, true))
	mock.ExpectExec("UPDATE bookings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err = r.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBatchContinuesPastFailures(t *testing.T) {
	r, mock := newTestReconciler(t, false)

	good := confirmedEvent()
	bad := confirmedEvent()
	bad.RecordID = 900999

	// The bad event dies at Begin; the good one still lands.
	mock.ExpectBegin().WillReturnError(assert.AnError)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WillReturnRows(customerRows(0))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE notes").
		WillReturnRows(bookingRows(bookings.StatusConfirmed, nil, false))
	mock.ExpectExec("UPDATE bookings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res := r.ApplyBatch(context.Background(), []Event{bad, good})
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRejectsEventWithoutRecordID(t *testing.T) {
	r, _ := newTestReconciler(t, false)

	_, err := r.Apply(context.Background(), Event{})
	require.Error(t, err)
}
