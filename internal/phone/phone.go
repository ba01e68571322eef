// Package phone turns free-text phone input into the canonical contact form
// "8 XXX XXX XX XX".
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when the input does not carry 10 or 11 digits.
var ErrInvalid = errors.New("phone number must contain 10 or 11 digits")

// Digits strips every non-digit character from raw.
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize validates raw and returns it in canonical form. An 11-digit
// number must start with a 7 or 8 trunk marker, which is dropped before the
// single canonical 8 is prefixed.
func Normalize(raw string) (string, error) {
	digits := Digits(raw)
	switch len(digits) {
	case 10:
	case 11:
		if digits[0] != '7' && digits[0] != '8' {
			return "", fmt.Errorf("%w: unexpected country code %q", ErrInvalid, digits[:1])
		}
		digits = digits[1:]
	default:
		return "", fmt.Errorf("%w: got %d", ErrInvalid, len(digits))
	}
	return fmt.Sprintf("8 %s %s %s %s", digits[0:3], digits[3:6], digits[6:8], digits[8:10]), nil
}
