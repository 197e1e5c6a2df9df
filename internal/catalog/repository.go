// Package catalog stores the locally offered services and their links to
// the external scheduling platform.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrServiceNotFound is returned when no service matches the lookup.
var ErrServiceNotFound = errors.New("service not found")

// Service is one bookable offering. The two external ids are nil when the
// service has no counterpart on the platform; both must be present before
// availability questions can be routed externally.
type Service struct {
	ID                int64
	Name              string
	DurationMins      int
	PriceCents        int64
	ExternalServiceID *int64
	ExternalStaffID   *int64
	Active            bool
}

// ExternallyRoutable reports whether both platform ids are linked.
func (s *Service) ExternallyRoutable() bool {
	return s != nil && s.ExternalServiceID != nil && s.ExternalStaffID != nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores services in the relational database.
type Repository struct {
	db querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a transaction or a mock.
func NewRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("catalog: querier required")
	}
	return &Repository{db: db}
}

const serviceColumns = `id, name, duration_mins, price_cents, external_service_id, external_staff_id, active`

// GetByID fetches one service.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	var s Service
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.DurationMins, &s.PriceCents, &s.ExternalServiceID, &s.ExternalStaffID, &s.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog: get service: %w", err)
	}
	return &s, nil
}

// ListActive returns all active services.
func (r *Repository) ListActive(ctx context.Context) ([]Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE active ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMins, &s.PriceCents, &s.ExternalServiceID, &s.ExternalStaffID, &s.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	return services, nil
}
