// Package availability answers "when can this service be booked" by routing
// each question either to the external scheduling platform or to the local
// slot generator. Routing is per service: a service carrying both external
// ids is asked upstream, everything else is computed locally. When the
// upstream call fails the local answer fully replaces it; the two sources
// are never mixed inside one response.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/velora-spa/booking-platform/internal/altegio"
	"github.com/velora-spa/booking-platform/internal/catalog"
	"github.com/velora-spa/booking-platform/internal/schedule"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

// Source labels where an answer came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceLocal    Source = "local"
)

// ErrStaffRequired is returned when a locally routed question arrives
// without a staff member to compute hours for.
var ErrStaffRequired = errors.New("availability: staff id required for local schedules")

type serviceStore interface {
	GetByID(ctx context.Context, id int64) (*catalog.Service, error)
}

type scheduleStore interface {
	ScheduleFor(ctx context.Context, staffID int64, dayOfWeek int) (*schedule.WeeklySchedule, error)
}

type externalSource interface {
	AvailableDates(ctx context.Context, q altegio.BookDatesQuery) ([]altegio.DateSlots, error)
}

// Config configures a Router.
type Config struct {
	Services        serviceStore
	Schedules       scheduleStore
	External        externalSource // nil disables external routing entirely
	ExternalEnabled bool
	Generator       *schedule.SlotGenerator
	Cache           *Cache // optional
	Logger          *logging.Logger
}

// Router is the availability decision point.
type Router struct {
	services  serviceStore
	schedules scheduleStore
	external  externalSource
	enabled   bool
	generator *schedule.SlotGenerator
	cache     *Cache
	now       func() time.Time
	logger    *logging.Logger
}

// NewRouter builds a Router.
func NewRouter(cfg Config) *Router {
	if cfg.Services == nil || cfg.Schedules == nil {
		panic("availability: services and schedules stores required")
	}
	gen := cfg.Generator
	if gen == nil {
		gen = schedule.NewSlotGenerator(0, cfg.Logger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		services:  cfg.Services,
		schedules: cfg.Schedules,
		external:  cfg.External,
		enabled:   cfg.ExternalEnabled && cfg.External != nil,
		generator: gen,
		cache:     cfg.Cache,
		now:       time.Now,
		logger:    logger.Component("availability"),
	}
}

// WithNow overrides the clock, for tests.
func (r *Router) WithNow(now func() time.Time) *Router {
	r.now = now
	return r
}

// TimeSlots returns the bookable "HH:MM" start times for a service on one
// date, and where they came from.
func (r *Router) TimeSlots(ctx context.Context, serviceID, staffID int64, date time.Time) ([]string, Source, error) {
	svc, err := r.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, SourceLocal, err
	}

	day := date.Format("2006-01-02")
	if slots, source, ok := r.cache.GetSlots(ctx, serviceID, staffID, day); ok {
		return slots, source, nil
	}

	if r.routesExternally(svc) {
		slots, err := r.externalSlots(ctx, svc, date)
		if err == nil {
			r.cache.SetSlots(ctx, serviceID, staffID, day, slots, SourceExternal)
			return slots, SourceExternal, nil
		}
		r.logger.Warn("external availability failed, serving local schedule",
			"service_id", serviceID, "error", err)
	}

	slots, err := r.localSlots(ctx, svc, staffID, date)
	if err != nil {
		return nil, SourceLocal, err
	}
	r.cache.SetSlots(ctx, serviceID, staffID, day, slots, SourceLocal)
	return slots, SourceLocal, nil
}

// AvailableDays returns the dates with at least one bookable slot inside
// the forward window.
func (r *Router) AvailableDays(ctx context.Context, serviceID, staffID int64, daysAhead int) ([]string, Source, error) {
	if daysAhead <= 0 {
		daysAhead = 14
	}
	svc, err := r.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, SourceLocal, err
	}

	if r.routesExternally(svc) {
		days, err := r.externalDays(ctx, svc, daysAhead)
		if err == nil {
			return days, SourceExternal, nil
		}
		r.logger.Warn("external availability failed, serving local schedule",
			"service_id", serviceID, "error", err)
	}

	days, err := r.localDays(ctx, svc, staffID, daysAhead)
	if err != nil {
		return nil, SourceLocal, err
	}
	return days, SourceLocal, nil
}

func (r *Router) routesExternally(svc *catalog.Service) bool {
	return r.enabled && svc.ExternallyRoutable()
}

func (r *Router) externalSlots(ctx context.Context, svc *catalog.Service, date time.Time) ([]string, error) {
	dates, err := r.external.AvailableDates(ctx, altegio.BookDatesQuery{
		ServiceID: *svc.ExternalServiceID,
		StaffID:   *svc.ExternalStaffID,
		From:      date,
		To:        date,
	})
	if err != nil {
		return nil, err
	}
	day := date.Format("2006-01-02")
	for _, ds := range dates {
		if ds.Date == day {
			if ds.Times == nil {
				return []string{}, nil
			}
			return ds.Times, nil
		}
	}
	return []string{}, nil
}

func (r *Router) externalDays(ctx context.Context, svc *catalog.Service, daysAhead int) ([]string, error) {
	from := r.now()
	dates, err := r.external.AvailableDates(ctx, altegio.BookDatesQuery{
		ServiceID: *svc.ExternalServiceID,
		StaffID:   *svc.ExternalStaffID,
		From:      from,
		To:        from.AddDate(0, 0, daysAhead),
	})
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(dates))
	for _, ds := range dates {
		days = append(days, ds.Date)
	}
	return days, nil
}

func (r *Router) localSlots(ctx context.Context, svc *catalog.Service, staffID int64, date time.Time) ([]string, error) {
	if staffID == 0 {
		return nil, ErrStaffRequired
	}
	ws, err := r.schedules.ScheduleFor(ctx, staffID, weekdayIndex(date))
	if err != nil {
		return nil, fmt.Errorf("availability: schedule lookup: %w", err)
	}

	times := r.generator.Slots(ws, date, svc.DurationMins)
	slots := make([]string, 0, len(times))
	for _, t := range times {
		slots = append(slots, t.Format("15:04"))
	}
	return slots, nil
}

func (r *Router) localDays(ctx context.Context, svc *catalog.Service, staffID int64, daysAhead int) ([]string, error) {
	if staffID == 0 {
		return nil, ErrStaffRequired
	}
	var days []string
	start := r.now()
	for i := 0; i < daysAhead; i++ {
		date := start.AddDate(0, 0, i)
		slots, err := r.localSlots(ctx, svc, staffID, date)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			days = append(days, date.Format("2006-01-02"))
		}
	}
	return days, nil
}

func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
