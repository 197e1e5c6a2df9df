package altegio

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/velora-spa/booking-platform/internal/schedule"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

// Schedule discovery sources, in order of trust.
const (
	SourceTimetable    = "timetable"
	SourceAvailability = "availability"
	SourceCatalog      = "catalog"
)

// DiscoveredSchedule is the working pattern inferred for one staff member.
// Days may be empty when the platform acknowledged the staff member but no
// strategy could extract usable hours.
type DiscoveredSchedule struct {
	StaffID   int64
	StaffName string
	Source    string
	Days      []schedule.WeeklySchedule
}

// Populated reports whether any working day was extracted.
func (s *DiscoveredSchedule) Populated() bool {
	return s != nil && len(s.Days) > 0
}

// DiscoveryConfig tunes the schedule discovery cascade.
type DiscoveryConfig struct {
	// WindowDays is how far forward the probes look. Two full weeks is the
	// minimum that sees every weekday at least twice.
	WindowDays int
	// ServiceLimit caps how many catalog services the availability probes
	// query before giving up.
	ServiceLimit int
	Logger       *logging.Logger
}

// Discovery infers weekly staff schedules from whatever the platform is
// willing to expose. Token permission levels vary wildly between accounts:
// some expose the official timetable endpoint, some only the public
// availability search, some only the service catalog. The cascade tries each
// in turn, and for every staff member keeps the first populated answer.
type Discovery struct {
	client       *Client
	windowDays   int
	serviceLimit int
	now          func() time.Time
	logger       *logging.Logger
}

// NewDiscovery builds a Discovery over an existing client.
func NewDiscovery(client *Client, cfg DiscoveryConfig) *Discovery {
	windowDays := cfg.WindowDays
	if windowDays < 14 {
		windowDays = 14
	}
	serviceLimit := cfg.ServiceLimit
	if serviceLimit <= 0 {
		serviceLimit = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Discovery{
		client:       client,
		windowDays:   windowDays,
		serviceLimit: serviceLimit,
		now:          time.Now,
		logger:       logger.Component("altegio.discovery"),
	}
}

// WithNow overrides the clock, for tests.
func (d *Discovery) WithNow(now func() time.Time) *Discovery {
	d.now = now
	return d
}

// StaffSchedules runs the cascade and returns the inferred schedule per
// staff id. An error is returned only when every strategy failed outright
// and nothing at all was discovered.
func (d *Discovery) StaffSchedules(ctx context.Context) (map[int64]*DiscoveredSchedule, error) {
	from := d.now()
	to := from.AddDate(0, 0, d.windowDays)

	result := make(map[int64]*DiscoveredSchedule)
	var failures []string

	if err := d.fromTimetable(ctx, result, from, to); err != nil {
		failures = append(failures, err.Error())
		d.logger.Warn("timetable discovery unavailable", "error", err)
	}
	if allPopulated(result) {
		return result, nil
	}

	services, err := d.client.Services(ctx)
	if err != nil {
		failures = append(failures, err.Error())
		d.logger.Warn("service catalog unavailable, availability probes skipped", "error", err)
		services = nil
	}

	if len(services) > 0 {
		d.fromAvailability(ctx, result, services, from, to)
		if allPopulated(result) {
			return result, nil
		}
		d.fromCatalog(ctx, result, services, from, to)
	}

	if len(result) == 0 {
		if len(failures) > 0 {
			return nil, fmt.Errorf("altegio: schedule discovery: no strategy produced data: %s", strings.Join(failures, "; "))
		}
		return nil, fmt.Errorf("altegio: schedule discovery: no staff found")
	}
	return result, nil
}

// fromTimetable is the first strategy: the staff list plus the official
// per-staff schedule endpoint. Exact hours and breaks when it works.
func (d *Discovery) fromTimetable(ctx context.Context, result map[int64]*DiscoveredSchedule, from, to time.Time) error {
	staff, err := d.client.StaffList(ctx)
	if err != nil {
		return err
	}

	for _, member := range staff {
		entries, err := d.client.StaffTimetable(ctx, member.ID, from, to)
		if err != nil {
			d.logger.Debug("staff timetable not readable", "staff_id", member.ID, "error", err)
			continue
		}
		days := parseTimetable(member.ID, entries)
		merge(result, &DiscoveredSchedule{
			StaffID:   member.ID,
			StaffName: member.Name,
			Source:    SourceTimetable,
			Days:      days,
		})
	}
	return nil
}

// fromAvailability is the second strategy: probe the public available-dates
// search per service. Some accounts answer with slot lists grouped per staff
// id; from those the working window is the extremes of the observed slots,
// with the closing hour padded by one service length since the last slot is
// a start time, not an end time.
func (d *Discovery) fromAvailability(ctx context.Context, result map[int64]*DiscoveredSchedule, services []Service, from, to time.Time) {
	probed := 0
	for _, svc := range services {
		if probed >= d.serviceLimit {
			break
		}
		probed++

		raw, err := d.client.BookDatesRaw(ctx, BookDatesQuery{ServiceID: svc.ID, From: from, To: to})
		if err != nil {
			d.logger.Debug("availability probe failed", "service_id", svc.ID, "error", err)
			continue
		}
		perStaff := splitPerStaffSlots(raw)
		for staffID, slots := range perStaff {
			merge(result, &DiscoveredSchedule{
				StaffID: staffID,
				Source:  SourceAvailability,
				Days:    scheduleFromSlots(staffID, slots, 60),
			})
		}
	}
}

// fromCatalog is the last resort: collect staff ids from the service catalog
// itself and probe availability per staff member. The padding is wider here
// because a single-staff probe sees fewer slots. A staff member that the
// catalog names but whose probe yields nothing usable is still recorded,
// with no days, so callers know the id exists.
func (d *Discovery) fromCatalog(ctx context.Context, result map[int64]*DiscoveredSchedule, services []Service, from, to time.Time) {
	staffServices := make(map[int64]int64)
	for _, svc := range services {
		if svc.StaffID > 0 {
			if _, seen := staffServices[svc.StaffID]; !seen {
				staffServices[svc.StaffID] = svc.ID
			}
		}
		for _, ref := range svc.Staff {
			if ref.ID > 0 {
				if _, seen := staffServices[ref.ID]; !seen {
					staffServices[ref.ID] = svc.ID
				}
			}
		}
	}

	for staffID, serviceID := range staffServices {
		if existing, ok := result[staffID]; ok && existing.Populated() {
			continue
		}

		entry := &DiscoveredSchedule{StaffID: staffID, Source: SourceCatalog}
		raw, err := d.client.BookDatesRaw(ctx, BookDatesQuery{ServiceID: serviceID, StaffID: staffID, From: from, To: to})
		if err != nil {
			d.logger.Debug("catalog probe failed", "staff_id", staffID, "error", err)
			merge(result, entry)
			continue
		}
		entry.Days = scheduleFromSlots(staffID, flattenDateSlots(raw), 90)
		merge(result, entry)
	}
}

// merge applies the first-populated-wins rule: a populated entry is never
// replaced, an empty placeholder yields to anything populated.
func merge(result map[int64]*DiscoveredSchedule, entry *DiscoveredSchedule) {
	existing, ok := result[entry.StaffID]
	if !ok {
		result[entry.StaffID] = entry
		return
	}
	if !existing.Populated() && entry.Populated() {
		if entry.StaffName == "" {
			entry.StaffName = existing.StaffName
		}
		result[entry.StaffID] = entry
	}
}

func allPopulated(result map[int64]*DiscoveredSchedule) bool {
	if len(result) == 0 {
		return false
	}
	for _, entry := range result {
		if !entry.Populated() {
			return false
		}
	}
	return true
}

// parseTimetable folds concrete working days into a weekly pattern. Per
// weekday it keeps the earliest opening, the latest closing, and the first
// break window seen.
func parseTimetable(staffID int64, entries []TimetableEntry) []schedule.WeeklySchedule {
	byDay := make(map[int]*schedule.WeeklySchedule)
	for _, entry := range entries {
		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			continue
		}
		start, err := schedule.ParseTimeOfDay(entry.Start)
		if err != nil {
			continue
		}
		end, err := schedule.ParseTimeOfDay(entry.End)
		if err != nil {
			continue
		}

		day := weekdayIndex(date)
		existing, ok := byDay[day]
		if !ok {
			existing = &schedule.WeeklySchedule{
				StaffID:   staffID,
				DayOfWeek: day,
				Start:     start,
				End:       end,
				Active:    true,
			}
			byDay[day] = existing
		} else {
			if start < existing.Start {
				existing.Start = start
			}
			if end > existing.End {
				existing.End = end
			}
		}

		if !existing.HasBreak() && len(entry.Breaks) > 0 {
			bs, errS := schedule.ParseTimeOfDay(entry.Breaks[0].Start)
			be, errE := schedule.ParseTimeOfDay(entry.Breaks[0].End)
			if errS == nil && errE == nil && bs < be {
				existing.BreakStart = &bs
				existing.BreakEnd = &be
			}
		}
	}
	return sortedDays(byDay)
}

// scheduleFromSlots approximates a weekly pattern from observed slot start
// times. The closing hour is the latest slot plus padMins, since slots mark
// where a visit may begin.
func scheduleFromSlots(staffID int64, slots []DateSlots, padMins int) []schedule.WeeklySchedule {
	byDay := make(map[int]*schedule.WeeklySchedule)
	for _, ds := range slots {
		date, err := time.Parse("2006-01-02", ds.Date)
		if err != nil {
			continue
		}
		day := weekdayIndex(date)
		for _, raw := range ds.Times {
			t, err := schedule.ParseTimeOfDay(raw)
			if err != nil {
				continue
			}
			existing, ok := byDay[day]
			if !ok {
				byDay[day] = &schedule.WeeklySchedule{
					StaffID:   staffID,
					DayOfWeek: day,
					Start:     t,
					End:       t,
					Active:    true,
				}
				continue
			}
			if t < existing.Start {
				existing.Start = t
			}
			if t > existing.End {
				existing.End = t
			}
		}
	}
	for _, ws := range byDay {
		end := int(ws.End) + padMins
		if end > 24*60 {
			end = 24 * 60
		}
		ws.End = schedule.TimeOfDay(end)
	}
	return sortedDays(byDay)
}

func sortedDays(byDay map[int]*schedule.WeeklySchedule) []schedule.WeeklySchedule {
	if len(byDay) == 0 {
		return nil
	}
	days := make([]schedule.WeeklySchedule, 0, len(byDay))
	for _, ws := range byDay {
		days = append(days, *ws)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].DayOfWeek < days[j].DayOfWeek })
	return days
}

// weekdayIndex maps a date to the 0=Monday .. 6=Sunday convention the
// schedule tables use.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// splitPerStaffSlots extracts per-staff slot lists from an available-dates
// payload shaped as {"2026-09-07": {"1001": ["10:00", ...], ...}, ...}.
// Payloads without the per-staff grouping yield nothing: slots that cannot
// be attributed to a staff member are useless for schedule inference.
func splitPerStaffSlots(raw json.RawMessage) map[int64][]DateSlots {
	var byDate map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byDate); err != nil {
		return nil
	}

	perStaff := make(map[int64][]DateSlots)
	for date, inner := range byDate {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		var byStaff map[string]json.RawMessage
		if err := json.Unmarshal(inner, &byStaff); err != nil {
			continue
		}
		for key, slotsRaw := range byStaff {
			staffID, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			times := extractTimes(slotsRaw)
			if len(times) == 0 {
				continue
			}
			perStaff[staffID] = append(perStaff[staffID], DateSlots{Date: date, Times: times})
		}
	}
	if len(perStaff) == 0 {
		return nil
	}
	for _, slots := range perStaff {
		sort.Slice(slots, func(i, j int) bool { return slots[i].Date < slots[j].Date })
	}
	return perStaff
}

// flattenDateSlots normalizes the available-dates payload variants into one
// list: a date-to-times map, a bare list of dates, a list of {date, times}
// objects, or a date-to-per-staff map (times unioned across staff).
func flattenDateSlots(raw json.RawMessage) []DateSlots {
	var byDate map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byDate); err == nil {
		out := make([]DateSlots, 0, len(byDate))
		for date, inner := range byDate {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				continue
			}
			out = append(out, DateSlots{Date: date, Times: unionTimes(inner)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		if len(out) > 0 {
			return out
		}
		return nil
	}

	var dates []string
	if err := json.Unmarshal(raw, &dates); err == nil {
		out := make([]DateSlots, 0, len(dates))
		for _, date := range dates {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				continue
			}
			out = append(out, DateSlots{Date: date})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		if len(out) > 0 {
			return out
		}
		return nil
	}

	var objects []struct {
		Date  string          `json:"date"`
		Times json.RawMessage `json:"times"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		out := make([]DateSlots, 0, len(objects))
		for _, obj := range objects {
			if _, err := time.Parse("2006-01-02", obj.Date); err != nil {
				continue
			}
			out = append(out, DateSlots{Date: obj.Date, Times: extractTimes(obj.Times)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// unionTimes handles the inner value of a date key: either a plain slot
// list or a per-staff map whose slot lists get unioned.
func unionTimes(raw json.RawMessage) []string {
	if times := extractTimes(raw); len(times) > 0 {
		return times
	}

	var byStaff map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byStaff); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, inner := range byStaff {
		for _, t := range extractTimes(inner) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// extractTimes pulls "HH:MM" strings out of a slot list. Entries arrive as
// plain strings, as {"time": "HH:MM"} objects, or as full datetimes; only
// values that parse as a time of day survive.
func extractTimes(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if t, ok := timeOfDayFromString(s); ok {
				out = append(out, t)
			}
			continue
		}
		var obj struct {
			Time     string `json:"time"`
			Datetime string `json:"datetime"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if t, ok := timeOfDayFromString(obj.Time); ok {
				out = append(out, t)
			} else if t, ok := timeOfDayFromString(obj.Datetime); ok {
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

// timeOfDayFromString accepts "HH:MM", "HH:MM:SS", and ISO datetimes,
// normalizing to "HH:MM".
func timeOfDayFromString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if idx := strings.IndexAny(s, "T "); idx >= 0 {
		s = s[idx+1:]
	}
	t, err := schedule.ParseTimeOfDay(s)
	if err != nil {
		return "", false
	}
	return t.String(), true
}
