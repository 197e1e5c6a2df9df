package schedule

import (
	"time"

	"github.com/velora-spa/booking-platform/pkg/logging"
)

const (
	defaultDurationMins    = 60
	defaultGranularityMins = 30
)

// SlotGenerator produces candidate appointment start times from a weekly
// schedule. It is a pure computation: no storage, no network, no retries.
type SlotGenerator struct {
	granularityMins int
	now             func() time.Time
	logger          *logging.Logger
}

// NewSlotGenerator creates a generator with the given slot granularity in
// minutes. Granularity <= 0 falls back to 30 minutes.
func NewSlotGenerator(granularityMins int, logger *logging.Logger) *SlotGenerator {
	if granularityMins <= 0 {
		granularityMins = defaultGranularityMins
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotGenerator{
		granularityMins: granularityMins,
		now:             time.Now,
		logger:          logger.Component("slotgen"),
	}
}

// WithNow overrides the clock, for tests.
func (g *SlotGenerator) WithNow(now func() time.Time) *SlotGenerator {
	g.now = now
	return g
}

// Slots returns the ordered start times available on targetDate for a
// service of durationMins minutes, given the day's schedule (possibly nil).
//
// A candidate start is valid iff the whole service fits before the schedule
// end, it does not intersect the break window, and, when targetDate is
// today, it lies strictly in the future. A missing schedule yields an empty
// result; so does a corrupt one (start >= end), which is logged but never
// an error.
func (g *SlotGenerator) Slots(sched *WeeklySchedule, targetDate time.Time, durationMins int) []time.Time {
	if sched == nil || !sched.Active {
		return nil
	}
	if durationMins <= 0 {
		durationMins = defaultDurationMins
	}

	if sched.Start >= sched.End {
		g.logger.Warn("ignoring corrupt schedule: start not before end",
			"staff_id", sched.StaffID,
			"day_of_week", sched.DayOfWeek,
			"start", sched.Start.String(),
			"end", sched.End.String(),
		)
		return nil
	}

	year, month, day := targetDate.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, targetDate.Location())

	now := g.now()
	sameDay := func() bool {
		ny, nm, nd := now.In(targetDate.Location()).Date()
		return ny == year && nm == month && nd == day
	}()

	duration := time.Duration(durationMins) * time.Minute
	step := time.Duration(g.granularityMins) * time.Minute
	dayEnd := midnight.Add(time.Duration(sched.End) * time.Minute)

	var breakStart, breakEnd time.Time
	hasBreak := sched.HasBreak()
	if hasBreak {
		breakStart = midnight.Add(time.Duration(*sched.BreakStart) * time.Minute)
		breakEnd = midnight.Add(time.Duration(*sched.BreakEnd) * time.Minute)
	}

	var slots []time.Time
	for start := midnight.Add(time.Duration(sched.Start) * time.Minute); !start.Add(duration).After(dayEnd); start = start.Add(step) {
		if hasBreak {
			serviceEnd := start.Add(duration)
			overlapsBreak := serviceEnd.After(breakStart) && start.Before(breakEnd)
			if overlapsBreak {
				continue
			}
		}
		if sameDay && !start.After(now) {
			continue
		}
		slots = append(slots, start)
	}
	return slots
}
