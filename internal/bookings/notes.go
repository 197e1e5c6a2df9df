package bookings

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Booking notes carry two machine-readable markers that tie a local row to
// its external record and its customer: "Altegio ID: <record id>" and
// "Code: <matching code>". The markers survive round trips through the
// platform's comment field, which is the only writable free-text slot the
// platform exposes.

var (
	externalIDPattern   = regexp.MustCompile(`Altegio ID:\s*(\d+)`)
	matchingCodePattern = regexp.MustCompile(`Code:\s*([A-Za-z0-9-]+)`)
)

// ExternalIDMarker renders the record-id marker.
func ExternalIDMarker(recordID int64) string {
	return fmt.Sprintf("Altegio ID: %d", recordID)
}

// MatchingCodeMarker renders the customer-code marker.
func MatchingCodeMarker(code string) string {
	return "Code: " + strings.ToUpper(strings.TrimSpace(code))
}

// ParseExternalID extracts the record id from free text. ok is false when
// no marker is present.
func ParseExternalID(text string) (int64, bool) {
	m := externalIDPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseMatchingCode extracts the customer code from free text.
func ParseMatchingCode(text string) (string, bool) {
	m := matchingCodePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// ComposeNotes rewrites the notes to carry both markers followed by the
// free-text remainder, with any stale copies of the markers stripped first.
func ComposeNotes(recordID int64, code string, freeText string) string {
	remainder := externalIDPattern.ReplaceAllString(freeText, "")
	remainder = matchingCodePattern.ReplaceAllString(remainder, "")
	remainder = strings.TrimSpace(strings.Trim(remainder, " ;|"))

	parts := []string{ExternalIDMarker(recordID), MatchingCodeMarker(code)}
	if remainder != "" {
		parts = append(parts, remainder)
	}
	return strings.Join(parts, " | ")
}
