package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// DefaultDuration is the session lifetime used when none is configured.
const DefaultDuration = "1d"

const hoursPerYear = 365 * 24

var unitWords = strings.NewReplacer(
	"weeks", "w", "week", "w",
	"days", "d", "day", "d",
	"hours", "h", "hour", "h", "hrs", "h", "hr", "h",
	"minutes", "m", "minute", "m", "mins", "m", "min", "m",
	"seconds", "s", "second", "s", "secs", "s", "sec", "s",
)

// years are not a unit of str2duration, so they are rewritten as hours first.
var yearTerm = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:years|year|yrs|yr|y)\b`)

// ParseDuration converts a human duration string such as "1d", "1 day",
// "12 hrs", "1 year" or "1h30m" into a time.Duration. A bare number is read
// as a whole number of milliseconds. The result must be at least one second because the backing
// store expires keys with second granularity.
func ParseDuration(s string) (time.Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		normalized = DefaultDuration
	}

	var d time.Duration
	if ms, err := strconv.ParseInt(normalized, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else {
		normalized = yearTerm.ReplaceAllStringFunc(normalized, yearsToHours)
		normalized = unitWords.Replace(normalized)
		normalized = strings.Join(strings.Fields(normalized), "")

		d, err = str2duration.ParseDuration(normalized)
		if err != nil {
			return 0, fmt.Errorf("invalid session duration %q: %w", s, err)
		}
	}

	if d < time.Second {
		return 0, fmt.Errorf("session duration %q must be at least one second", s)
	}

	return d, nil
}

func yearsToHours(term string) string {
	n, err := strconv.ParseFloat(yearTerm.FindStringSubmatch(term)[1], 64)
	if err != nil {
		return term
	}
	return strconv.FormatFloat(n*hoursPerYear, 'f', -1, 64) + "h"
}
