// Package util contains misc internal utilities.
package util

import (
	"strings"
	"time"
)

// AllElementsNumbers returns true if every rune in s is a digit or a decimal point
func AllElementsNumbers(s string) bool {
	if s == "" {
		return false
	}
	return strings.Trim(s, "0123456789.") == ""
}

// ParseDuration is time.ParseDuration, with unit appended to bare numbers.
// ParseDuration("25", "ms") is 25 milliseconds.
func ParseDuration(s, unit string) (time.Duration, error) {
	if AllElementsNumbers(s) {
		s += unit
	}
	return time.ParseDuration(s)
}

// MsToDuration converts a floating point number of milliseconds to a duration
func MsToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
