// Package bookings is the local source of truth for appointments mirrored
// from the external scheduling platform.
package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the local booking lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// StatusFromExternal maps the platform's record status vocabulary onto the
// local lifecycle. Anything unrecognized lands in PENDING rather than being
// rejected, so a new upstream status never stalls a sync.
func StatusFromExternal(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed", "confirmed_online":
		return StatusConfirmed
	case "completed", "done":
		return StatusCompleted
	case "cancelled", "deleted":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Booking is one appointment row.
type Booking struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	ServiceName    string
	DurationMins   int
	PriceCents     int64
	StartsAt       time.Time
	Status         Status
	Phone          string
	Notes          string
	CancelledAt    *time.Time
	CancelReason   string
	LoyaltyAwarded bool
	LoyaltyPoints  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
