package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCustomerNotFound is returned when no customer matches the lookup.
var ErrCustomerNotFound = errors.New("customer not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores customers in the relational database.
type Repository struct {
	db querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("customers: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a transaction or a mock.
func NewRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("customers: querier required")
	}
	return &Repository{db: db}
}

const customerColumns = `id, name, email, phone, matching_code, loyalty_points, created_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.MatchingCode, &c.LoyaltyPoints, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customers: scan: %w", err)
	}
	return &c, nil
}

// FindByMatchingCode looks a customer up by the uppercase matching code.
func (r *Repository) FindByMatchingCode(ctx context.Context, code string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE matching_code = $1`
	return scanCustomer(r.db.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))))
}

// FindByEmail looks a customer up by exact email, case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrCustomerNotFound
	}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = $1 ORDER BY created_at LIMIT 1`
	return scanCustomer(r.db.QueryRow(ctx, query, email))
}

// FindByPhoneSuffix matches on the last ten digits of the stored phone.
// Oldest matching row wins when several customers share a suffix.
func (r *Repository) FindByPhoneSuffix(ctx context.Context, phone string) (*Customer, error) {
	suffix := PhoneSuffix(phone)
	if suffix == "" {
		return nil, ErrCustomerNotFound
	}
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE RIGHT(regexp_replace(phone, '\D', '', 'g'), 10) = $1
		ORDER BY created_at
		LIMIT 1
	`
	return scanCustomer(r.db.QueryRow(ctx, query, suffix))
}

// Create inserts a new customer. A blank matching code gets a fresh one.
func (r *Repository) Create(ctx context.Context, c *Customer) (*Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if strings.TrimSpace(c.MatchingCode) == "" {
		c.MatchingCode = NewMatchingCode()
	}
	c.MatchingCode = strings.ToUpper(c.MatchingCode)

	query := `
		INSERT INTO customers (id, name, email, phone, matching_code, loyalty_points)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID,
		c.Name,
		c.Email,
		c.Phone,
		c.MatchingCode,
		c.LoyaltyPoints,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("customers: insert: %w", err)
	}
	return c, nil
}

// AddLoyaltyPoints credits points and returns the new balance.
func (r *Repository) AddLoyaltyPoints(ctx context.Context, id uuid.UUID, points int64) (int64, error) {
	query := `
		UPDATE customers
		SET loyalty_points = loyalty_points + $2
		WHERE id = $1
		RETURNING loyalty_points
	`
	var balance int64
	if err := r.db.QueryRow(ctx, query, id, points).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCustomerNotFound
		}
		return 0, fmt.Errorf("customers: add points: %w", err)
	}
	return balance, nil
}
