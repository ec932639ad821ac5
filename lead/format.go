package lead

import (
	"fmt"
	"strings"
	"unicode"
)

// FormatDuration renders whole seconds as "42s" or "3m 5s".
func FormatDuration(seconds int) string {
	if seconds < 1 {
		return "0s"
	}
	mins, secs := seconds/60, seconds%60
	if mins == 0 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// FormatPhoneNumber renders North American numbers as (XXX) XXX-XXXX,
// with a +1 prefix when the country code is present. Other numbers are
// returned unchanged.
func FormatPhoneNumber(number string) string {
	if number == "" {
		return UnknownName
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, number)

	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
	default:
		return number
	}
}

// FormatTimestamp renders an offset as mm:ss.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
