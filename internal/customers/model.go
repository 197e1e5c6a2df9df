package customers

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Customer is one client of the spa, local source of truth for loyalty.
type Customer struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Phone         string
	MatchingCode  string
	LoyaltyPoints int64
	CreatedAt     time.Time
}

// NewMatchingCode mints a short uppercase code used to tie external booking
// records back to a customer via the notes marker.
func NewMatchingCode() string {
	id := uuid.New().String()
	return "VEL-" + strings.ToUpper(id[:8])
}

// PhoneSuffix reduces a phone number to its last ten digits, the form used
// for fuzzy customer matching. Returns "" when fewer than ten digits remain.
func PhoneSuffix(phone string) string {
	var digits []byte
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) < 10 {
		return ""
	}
	return string(digits[len(digits)-10:])
}
