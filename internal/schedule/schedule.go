// Package schedule holds weekly working-hours types and local slot generation.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (and tolerates "HH:MM:SS") into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("schedule: invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("schedule: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("schedule: invalid minute in %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("schedule: time of day %q out of range", s)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// String formats the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// WeeklySchedule is one staff member's working hours for a single weekday.
// DayOfWeek follows the 0=Monday..6=Sunday convention used across the data
// model and the external platform.
type WeeklySchedule struct {
	StaffID    int64
	DayOfWeek  int
	Start      TimeOfDay
	End        TimeOfDay
	BreakStart *TimeOfDay
	BreakEnd   *TimeOfDay
	Active     bool
}

// HasBreak reports whether a complete break window is set.
func (s *WeeklySchedule) HasBreak() bool {
	return s != nil && s.BreakStart != nil && s.BreakEnd != nil
}
