// Package staff stores practitioners and their weekly working hours.
package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-spa/booking-platform/internal/schedule"
)

// ErrStaffNotFound is returned when no staff row matches the lookup.
var ErrStaffNotFound = errors.New("staff not found")

// Member is one practitioner. ExternalID links to the scheduling platform
// and is nil for staff that only exist locally.
type Member struct {
	ID         int64
	Name       string
	ExternalID *int64
	Active     bool
	SortOrder  int
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores staff and schedules in the relational database.
type Repository struct {
	db querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("staff: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a transaction or a mock.
func NewRepositoryWithQuerier(db querier) *Repository {
	if db == nil {
		panic("staff: querier required")
	}
	return &Repository{db: db}
}

// ListActive returns active staff in display order.
func (r *Repository) ListActive(ctx context.Context) ([]Member, error) {
	query := `
		SELECT id, name, external_staff_id, active, sort_order
		FROM staff
		WHERE active
		ORDER BY sort_order, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("staff: list active: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.ExternalID, &m.Active, &m.SortOrder); err != nil {
			return nil, fmt.Errorf("staff: scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: list active: %w", err)
	}
	return members, nil
}

// GetByID fetches one staff member.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Member, error) {
	query := `SELECT id, name, external_staff_id, active, sort_order FROM staff WHERE id = $1`
	var m Member
	err := r.db.QueryRow(ctx, query, id).Scan(&m.ID, &m.Name, &m.ExternalID, &m.Active, &m.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("staff: get: %w", err)
	}
	return &m, nil
}

// FindByExternalID fetches the staff member linked to a platform staff id.
func (r *Repository) FindByExternalID(ctx context.Context, externalID int64) (*Member, error) {
	query := `SELECT id, name, external_staff_id, active, sort_order FROM staff WHERE external_staff_id = $1`
	var m Member
	err := r.db.QueryRow(ctx, query, externalID).Scan(&m.ID, &m.Name, &m.ExternalID, &m.Active, &m.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("staff: find by external id: %w", err)
	}
	return &m, nil
}

// ScheduleFor returns the active weekly row for one weekday, or nil when
// the staff member does not work that day.
func (r *Repository) ScheduleFor(ctx context.Context, staffID int64, dayOfWeek int) (*schedule.WeeklySchedule, error) {
	query := `
		SELECT staff_id, day_of_week, start_mins, end_mins, break_start_mins, break_end_mins
		FROM staff_schedules
		WHERE staff_id = $1 AND day_of_week = $2 AND active
	`
	var ws schedule.WeeklySchedule
	var breakStart, breakEnd *int
	err := r.db.QueryRow(ctx, query, staffID, dayOfWeek).Scan(
		&ws.StaffID, &ws.DayOfWeek, &ws.Start, &ws.End, &breakStart, &breakEnd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("staff: schedule lookup: %w", err)
	}
	ws.Active = true
	if breakStart != nil && breakEnd != nil {
		bs := schedule.TimeOfDay(*breakStart)
		be := schedule.TimeOfDay(*breakEnd)
		ws.BreakStart, ws.BreakEnd = &bs, &be
	}
	return &ws, nil
}

// HasSchedule reports whether any active schedule rows exist for the staff
// member.
func (r *Repository) HasSchedule(ctx context.Context, staffID int64) (bool, error) {
	query := `SELECT 1 FROM staff_schedules WHERE staff_id = $1 AND active LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, query, staffID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("staff: schedule check: %w", err)
	}
	return true, nil
}

// EnsureByExternalID returns the staff member linked to the platform id,
// creating an active row when none exists yet.
func (r *Repository) EnsureByExternalID(ctx context.Context, externalID int64, name string) (*Member, error) {
	member, err := r.FindByExternalID(ctx, externalID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, ErrStaffNotFound) {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("Staff %d", externalID)
	}
	query := `
		INSERT INTO staff (name, external_staff_id, active)
		VALUES ($1, $2, TRUE)
		RETURNING id, name, external_staff_id, active, sort_order
	`
	var m Member
	err = r.db.QueryRow(ctx, query, name, externalID).Scan(&m.ID, &m.Name, &m.ExternalID, &m.Active, &m.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("staff: insert: %w", err)
	}
	return &m, nil
}

// ApplyDiscovered persists a discovered weekly pattern for the platform
// staff id. A staff member that already has active schedule rows keeps
// them untouched; discovery only ever fills gaps. Returns true when rows
// were written.
func (r *Repository) ApplyDiscovered(ctx context.Context, externalID int64, name string, days []schedule.WeeklySchedule) (bool, error) {
	if len(days) == 0 {
		return false, nil
	}

	member, err := r.EnsureByExternalID(ctx, externalID, name)
	if err != nil {
		return false, err
	}

	populated, err := r.HasSchedule(ctx, member.ID)
	if err != nil {
		return false, err
	}
	if populated {
		return false, nil
	}

	insert := `
		INSERT INTO staff_schedules (staff_id, day_of_week, start_mins, end_mins, break_start_mins, break_end_mins, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (staff_id, day_of_week) WHERE active DO NOTHING
	`
	for _, day := range days {
		var breakStart, breakEnd *int
		if day.HasBreak() {
			bs := int(*day.BreakStart)
			be := int(*day.BreakEnd)
			breakStart, breakEnd = &bs, &be
		}
		_, err := r.db.Exec(ctx, insert, member.ID, day.DayOfWeek, int(day.Start), int(day.End), breakStart, breakEnd)
		if err != nil {
			return false, fmt.Errorf("staff: insert schedule: %w", err)
		}
	}
	return true, nil
}
