package detect

import (
	"fmt"
	"strings"
	"time"
)

// ValidatorFunc reports whether a matched value is structurally valid.
// Validators reject checksum failures so surface-pattern noise (random digit
// runs, malformed account numbers) never becomes a candidate.
type ValidatorFunc func(value string) bool

// lookupValidator resolves a validator by its manifest name. The empty
// string and "none" disable validation for the rule.
func lookupValidator(name string) (ValidatorFunc, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "luhn":
		return ValidLuhn, nil
	case "iban":
		return ValidIBAN, nil
	case "rrn":
		return ValidBelgianNRN, nil
	case "date":
		return ValidDate, nil
	default:
		return nil, fmt.Errorf("unknown validator %q", name)
	}
}

// ValidLuhn reports whether the digits of value (separators stripped) form a
// 13-19 digit sequence with a Luhn checksum of zero.
func ValidLuhn(value string) bool {
	digits := digitsOf(value)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidIBAN reports whether value passes the ISO 7064 mod-97 check: the
// first four characters are rotated to the end, letters map to A=10...Z=35,
// and the resulting number must leave remainder 1 modulo 97.
func ValidIBAN(value string) bool {
	s := strings.ToUpper(strings.ReplaceAll(value, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	for i := 2; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	rotated := s[4:] + s[:4]
	rem := 0
	for i := 0; i < len(rotated); i++ {
		c := rotated[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			n := int(c-'A') + 10
			rem = (rem*100 + n) % 97
		default:
			return false
		}
	}
	return rem == 1
}

// ValidBelgianNRN reports whether the digits of value form an 11-digit
// Belgian national register number. The check digit is 97 minus the first
// nine digits modulo 97; people born from 2000 on are checked with a 2
// prefixed to those nine digits.
func ValidBelgianNRN(value string) bool {
	digits := digitsOf(value)
	if len(digits) != 11 {
		return false
	}

	var base, check int64
	for i := 0; i < 9; i++ {
		base = base*10 + int64(digits[i]-'0')
	}
	for i := 9; i < 11; i++ {
		check = check*10 + int64(digits[i]-'0')
	}

	if 97-(base%97) == check {
		return true
	}
	return 97-((2000000000+base)%97) == check
}

// dateLayouts are the accepted date formats after "/" is normalized to "-".
var dateLayouts = []string{"2006-01-02", "02-01-2006"}

// ValidDate reports whether value parses as a real calendar date in one of
// the accepted layouts. Pattern-shaped but impossible dates are rejected.
func ValidDate(value string) bool {
	s := strings.ReplaceAll(value, "/", "-")
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// digitsOf strips everything but ASCII digits.
func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
