// Package resolve turns the natural-language attributes a caller uses to describe a
// record (a relative date, a title fragment, a time range) into concrete values.
package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the canonical date format used by records and tool arguments.
const DateLayout = "2006-01-02"

var (
	inNDaysRe    = regexp.MustCompile(`^in\s+(\d+)\s+days?$`)
	nDaysFromRe  = regexp.MustCompile(`^(\d+)\s+days?\s+from\s+now$`)
	nDaysAgoRe   = regexp.MustCompile(`^(\d+)\s+days?\s+ago$`)
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)
	monthDayRe   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var relativeDays = map[string]int{
	"today":                    0,
	"now":                      0,
	"tomorrow":                 1,
	"yesterday":                -1,
	"day after tomorrow":       2,
	"the day after tomorrow":   2,
	"overmorrow":               2,
	"day before yesterday":     -2,
	"the day before yesterday": -2,
}

// ParseDate resolves a date expression relative to now. The result is midnight of the
// resolved day in now's location. Accepted forms: today, tomorrow, yesterday, (the) day
// after tomorrow, (the) day before yesterday, "in N days", "N days from now",
// "N days ago", YYYY-MM-DD and MM-DD (current year).
func ParseDate(expr string, now time.Time) (time.Time, error) {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(expr)), " ")
	if normalized == "" {
		return time.Time{}, errors.New("empty date expression")
	}
	today := StartOfDay(now)

	if n, ok := relativeDays[normalized]; ok {
		return today.AddDate(0, 0, n), nil
	}
	if m := inNDaysRe.FindStringSubmatch(normalized); m != nil {
		return offsetDays(today, m[1], 1)
	}
	if m := nDaysFromRe.FindStringSubmatch(normalized); m != nil {
		return offsetDays(today, m[1], 1)
	}
	if m := nDaysAgoRe.FindStringSubmatch(normalized); m != nil {
		return offsetDays(today, m[1], -1)
	}
	if isoDateRe.MatchString(normalized) {
		parts := strings.Split(normalized, "-")
		y, _ := strconv.Atoi(parts[0])
		return buildDate(y, parts[1], parts[2], now.Location(), expr)
	}
	if m := monthDayRe.FindStringSubmatch(normalized); m != nil {
		return buildDate(today.Year(), m[1], m[2], now.Location(), expr)
	}

	return time.Time{}, errors.Errorf(
		"could not parse date %q: use today, tomorrow, yesterday, \"in N days\", \"N days ago\", YYYY-MM-DD or MM-DD",
		expr)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func offsetDays(today time.Time, digits string, sign int) (time.Time, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid day count %q", digits)
	}
	if n > 36500 {
		return time.Time{}, errors.Errorf("day count %d is out of range", n)
	}
	return today.AddDate(0, 0, sign*n), nil
}

func buildDate(year int, month, day string, loc *time.Location, expr string) (time.Time, error) {
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(year, time.Month(mo), d, 0, 0, 0, 0, loc)
	// time.Date normalizes 02-30 into March; reject instead
	if mo < 1 || mo > 12 || t.Month() != time.Month(mo) || t.Day() != d {
		return time.Time{}, errors.Errorf("invalid calendar date %q", expr)
	}
	return t, nil
}
