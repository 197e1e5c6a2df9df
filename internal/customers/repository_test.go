package customers

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

func customerRow(c *Customer) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "email", "phone", "matching_code", "loyalty_points", "created_at"}).
		AddRow(c.ID, c.Name, c.Email, c.Phone, c.MatchingCode, c.LoyaltyPoints, c.CreatedAt)
}

func TestFindByMatchingCodeNormalizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := &Customer{ID: uuid.New(), Name: "Dana Ives", MatchingCode: "VEL-8842ABCD", CreatedAt: time.Now().UTC()}
	mock.ExpectQuery("SELECT (.+) FROM customers WHERE matching_code").
		WithArgs("VEL-8842ABCD").
		WillReturnRows(customerRow(want))

	got, err := NewRepositoryWithQuerier(mock).FindByMatchingCode(context.Background(), "  vel-8842abcd ")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailMissRowIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM customers WHERE lower").
		WithArgs("dana@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewRepositoryWithQuerier(mock).FindByEmail(context.Background(), "Dana@Example.com")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailBlankShortCircuits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRepositoryWithQuerier(mock).FindByEmail(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPhoneSuffixUsesLastTenDigits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := &Customer{ID: uuid.New(), Name: "Dana Ives", Phone: "+1 (555) 000-1234", CreatedAt: time.Now().UTC()}
	mock.ExpectQuery("SELECT (.+) FROM customers").
		WithArgs("5550001234").
		WillReturnRows(customerRow(want))

	got, err := NewRepositoryWithQuerier(mock).FindByPhoneSuffix(context.Background(), "+1 (555) 000-1234")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPhoneSuffixTooShort(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRepositoryWithQuerier(mock).FindByPhoneSuffix(context.Background(), "12345")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGeneratesIDAndCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "Dana Ives", "dana@example.com", "+15550001234", pgxmock.AnyArg(), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

	c, err := NewRepositoryWithQuerier(mock).Create(context.Background(), &Customer{
		Name:  "Dana Ives",
		Email: "dana@example.com",
		Phone: "+15550001234",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Regexp(t, `^VEL-[0-9A-F]{8}$`, c.MatchingCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPhoneSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 000-1234", "5550001234"},
		{"79991234567", "9991234567"},
		{"555-0102", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PhoneSuffix(tt.in), tt.in)
	}
}
