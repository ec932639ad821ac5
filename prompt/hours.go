package prompt

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/room4-2/receptionist/profile"
)

var hoursRange = regexp.MustCompile(`(?i)(\d+):(\d+)\s*(AM|PM)\s*-\s*(\d+):(\d+)\s*(AM|PM)`)

// IsBusinessOpen reports whether now falls inside today's [open, close)
// range in the tenant's zone. Without any configured hours the business is
// treated as open. A missing or "Closed" day is closed. A range that does
// not parse fails open.
func IsBusinessOpen(cfg *profile.Config, now time.Time) bool {
	if len(cfg.Hours) == 0 {
		return true
	}

	now = now.In(cfg.Location())
	today, ok := cfg.Hours[weekday(now)]
	if !ok || isClosedDay(today) {
		return false
	}

	start, end, ok := ParseHoursRange(today)
	if !ok {
		return true
	}

	minutes := now.Hour()*60 + now.Minute()
	return minutes >= start && minutes < end
}

// ParseHoursRange converts "8:00 AM - 6:00 PM" into minutes since midnight.
func ParseHoursRange(s string) (start, end int, ok bool) {
	m := hoursRange.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	start = to24Hour(atoi(m[1]), m[3])*60 + atoi(m[2])
	end = to24Hour(atoi(m[4]), m[6])*60 + atoi(m[5])
	return start, end, true
}

func to24Hour(hour int, period string) int {
	pm := strings.EqualFold(period, "PM")
	switch {
	case pm && hour != 12:
		return hour + 12
	case !pm && hour == 12:
		return 0
	default:
		return hour
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func weekday(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

func isClosedDay(entry string) bool {
	entry = strings.TrimSpace(entry)
	return entry == "" || strings.EqualFold(entry, "closed")
}
