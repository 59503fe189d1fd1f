// Package phone holds the single canonical phone normalization used
// everywhere a phone number acts as a customer key.
package phone

import (
	"strings"

	"github.com/marifah/voucher-engine/internal/domain"
)

// DefaultCountryPrefix is applied to national-format numbers (single
// leading zero). The deployment serves a Swiss venue.
const DefaultCountryPrefix = "41"

const minDigits = 6

// Normalize converts raw user input to the canonical E.164-style form
// used as the customers.phone key: "+" followed by digits only.
//
//	"079 111 22 33"   -> "+41791112233"
//	"0041791112233"   -> "+41791112233"
//	"+41 79 111 2233" -> "+41791112233"
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minDigits {
		return "", domain.ErrInvalidPhone
	}

	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = DefaultCountryPrefix + digits[1:]
	}
	if len(digits) < minDigits {
		return "", domain.ErrInvalidPhone
	}
	return "+" + digits, nil
}
