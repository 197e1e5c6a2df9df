// Package loyalty credits bonus points for completed visits. A booking is
// credited at most once; the awarded flag on the booking row is the guard.
package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tier is one loyalty bracket. Customers qualify for the highest tier whose
// MinPoints does not exceed their balance.
type Tier struct {
	ID        int64
	Name      string
	MinPoints int64
	Percent   float64
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the loyalty tier table.
type Repository struct {
	db querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("loyalty: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a transaction or a mock.
func NewRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("loyalty: querier required")
	}
	return &Repository{db: db}
}

// TierForBalance returns the best active tier the balance qualifies for,
// or nil when no tier applies.
func (r *Repository) TierForBalance(ctx context.Context, balance int64) (*Tier, error) {
	query := `
		SELECT id, name, min_points, percent
		FROM loyalty_tiers
		WHERE active AND min_points <= $1
		ORDER BY min_points DESC
		LIMIT 1
	`
	var t Tier
	err := r.db.QueryRow(ctx, query, balance).Scan(&t.ID, &t.Name, &t.MinPoints, &t.Percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loyalty: tier lookup: %w", err)
	}
	return &t, nil
}

// PointsFor computes the bonus for a spend at a tier percentage, rounding
// down to whole points. Spend is in cents; points track whole currency
// units.
func PointsFor(priceCents int64, percent float64) int64 {
	if priceCents <= 0 || percent <= 0 {
		return 0
	}
	return int64(float64(priceCents) / 100.0 * percent / 100.0)
}
