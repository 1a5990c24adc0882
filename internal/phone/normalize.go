package phone

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

const minDigits = 8

// Normalizer turns user-entered numbers into the digits-only form the
// gateway expects. CountryCode is optional; without it only the
// non-digit stripping and international prefix handling apply.
type Normalizer struct {
	CountryCode string
}

func (n Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")

	if cc := n.CountryCode; cc != "" {
		// "5555119..." -> "55119..."; only when what's left is still a full number
		for strings.HasPrefix(digits, cc+cc) && len(digits)-len(cc) >= len(cc)+10 {
			digits = digits[len(cc):]
		}
		if !strings.HasPrefix(digits, cc) && (len(digits) == 10 || len(digits) == 11) {
			digits = cc + digits
		}
	}

	if len(digits) < minDigits {
		return "", ErrInvalid
	}
	return digits, nil
}
