package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/velora-spa/booking-platform/internal/altegio"
)

// Event is one normalized booking change, whether it arrived as a webhook
// or as a row from the periodic poll.
type Event struct {
	RecordID     int64
	Status       string
	StartsAt     time.Time
	Comment      string
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	ServiceName  string
	DurationMins int
	PriceCents   int64
}

// EventFromRecord normalizes a platform record. The record's date and time
// fields vary by endpoint: sometimes a split date plus time, sometimes a
// full datetime in the date field.
func EventFromRecord(rec *altegio.Record, loc *time.Location) (Event, error) {
	if rec == nil {
		return Event{}, fmt.Errorf("reconcile: nil record")
	}
	if rec.ID == 0 {
		return Event{}, fmt.Errorf("reconcile: record without id")
	}
	if loc == nil {
		loc = time.UTC
	}

	startsAt, err := parseRecordTime(rec.Date, rec.Time, loc)
	if err != nil {
		return Event{}, fmt.Errorf("reconcile: record %d: %w", rec.ID, err)
	}

	ev := Event{
		RecordID: rec.ID,
		Status:   rec.Status,
		StartsAt: startsAt,
		Comment:  rec.Comment,
	}
	if rec.Client != nil {
		ev.ClientName = strings.TrimSpace(rec.Client.Name)
		ev.ClientEmail = strings.TrimSpace(rec.Client.Email)
		ev.ClientPhone = strings.TrimSpace(rec.Client.Phone)
	}
	if svc := rec.PrimaryService(); svc != nil {
		ev.ServiceName = svc.Title
		if ev.ServiceName == "" {
			ev.ServiceName = svc.Name
		}
		ev.DurationMins = svc.Length
		ev.PriceCents = int64(math.Round(svc.PriceMin * 100))
	}
	return ev, nil
}

func parseRecordTime(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	layouts := []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, date, loc); err == nil {
			return t, nil
		}
	}
	if clock != "" {
		combined := date + " " + clock
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
			if t, err := time.ParseInLocation(layout, combined, loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unparsable appointment time %q %q", date, clock)
}
