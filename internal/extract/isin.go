package extract

import (
	"regexp"
	"strings"
)

var isinShape = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// ValidISIN reports whether s has the 12-character ISIN shape.
func ValidISIN(s string) bool {
	return isinShape.MatchString(s)
}

// ValidChecksum reports whether the last digit of an ISIN is the Luhn check
// digit of the first eleven characters, letters expanded to 10..35.
func ValidChecksum(isin string) bool {
	if !ValidISIN(isin) {
		return false
	}
	var digits strings.Builder
	for _, r := range isin {
		if r >= 'A' && r <= 'Z' {
			n := int(r-'A') + 10
			digits.WriteByte(byte('0' + n/10))
			digits.WriteByte(byte('0' + n%10))
			continue
		}
		digits.WriteRune(r)
	}

	s := digits.String()
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		n := int(s[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}
