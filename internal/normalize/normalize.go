// Package normalize contains pure helpers that clean extracted field values.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod indicates a raw period string without two parseable dates.
var ErrInvalidPeriod = errors.New("period does not contain two dates")

// datePattern matches YYYY.MM.DD with ".", "-" or "/" separators and
// one- or two-digit month/day, as the site renders periods both ways.
var datePattern = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)

// ParsePeriod scans raw for two date-like substrings and returns them as
// calendar dates in UTC. The first match is the start date, the second the
// end date. Fewer than two matches yields ErrInvalidPeriod.
func ParsePeriod(raw string) (time.Time, time.Time, error) {
	matches := datePattern.FindAllStringSubmatch(raw, 2)
	if len(matches) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period %q: %w", raw, ErrInvalidPeriod)
	}
	start, err := toDate(matches[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period %q: %w", raw, err)
	}
	end, err := toDate(matches[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period %q: %w", raw, err)
	}
	return start, end, nil
}

func toDate(match []string) (time.Time, error) {
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	day, _ := strconv.Atoi(match[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range: %w", match[0], ErrInvalidPeriod)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. Feb 30 -> Mar 2); reject that.
	if d.Day() != day || d.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("date %q out of range: %w", match[0], ErrInvalidPeriod)
	}
	return d, nil
}

// ResolveImageURL rewrites a possibly-relative image URL against the site
// base origin (e.g. "https://art-map.co.kr").
func ResolveImageURL(raw, base string) string {
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return strings.TrimSuffix(base, "/") + raw
	default:
		return "https://" + raw
	}
}

// CleanText collapses runs of whitespace into single spaces and trims the
// result, matching how the site pads table cells.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate limits s to max runes, used to fit natural keys into their
// storage column width.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
