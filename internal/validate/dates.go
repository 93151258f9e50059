package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MeKo-Tech/idscan/internal/template"
)

// Century hints for two-digit years.
const (
	centuryPast   = "past"
	centuryFuture = "future"
)

// errAmbiguousDate is returned when day-first and month-first formats both
// match with different dates and the template declares no locale.
var errAmbiguousDate = errors.New("ambiguous day/month order and no template locale")

type dateMatch struct {
	layout template.DateLayout
	date   time.Time
}

// parseDate tries the field's formats in order. The first match wins unless
// a format with the opposite day/month order also matches with a different
// date; then the template locale picks the order.
func parseDate(t *template.Template, f *template.Field, raw string, today time.Time) (time.Time, error) {
	raw = strings.Join(strings.Fields(raw), " ")
	formats := t.FormatsFor(f)

	var found []dateMatch
	for _, format := range formats {
		dl, err := template.ParseDateFormat(format)
		if err != nil {
			continue
		}
		d, err := parseLayout(dl, raw)
		if err != nil {
			continue
		}
		if dl.TwoDigitYear {
			d = applyCentury(d, f.Century, today)
		}
		found = append(found, dateMatch{layout: dl, date: d})
	}
	if len(found) == 0 {
		return time.Time{}, fmt.Errorf("%q matches none of %s", raw, strings.Join(formats, ", "))
	}

	first := found[0]
	if !first.layout.NumericDayMonth {
		return first.date, nil
	}
	for _, m := range found[1:] {
		if !m.layout.NumericDayMonth || m.layout.MonthFirst == first.layout.MonthFirst || m.date.Equal(first.date) {
			continue
		}
		monthFirst, known := t.MonthFirst()
		if !known {
			return time.Time{}, fmt.Errorf("%q: %w", raw, errAmbiguousDate)
		}
		if m.layout.MonthFirst == monthFirst {
			return m.date, nil
		}
		return first.date, nil
	}
	return first.date, nil
}

func parseLayout(dl template.DateLayout, raw string) (time.Time, error) {
	if strings.Contains(dl.Layout, "Jan") {
		// Printed month names are usually upper case; time.Parse wants "Mar".
		raw = cases.Title(language.English).String(strings.ToLower(raw))
	}
	return time.Parse(dl.Layout, raw)
}

// applyCentury moves a two-digit-year date into the century the hint asks
// for. "past" picks the latest year not after today; "future" picks the year
// within fifty years either side of today, so recently expired documents
// still read as expired.
func applyCentury(d time.Time, hint string, today time.Time) time.Time {
	yy := d.Year() % 100
	switch hint {
	case centuryPast:
		y := today.Year() - (today.Year()%100-yy+100)%100
		c := withYear(d, y)
		if c.After(today) {
			c = withYear(d, y-100)
		}
		return c
	case centuryFuture:
		base := today.Year() - 50
		return withYear(d, base+(yy-base%100+100)%100)
	}
	return d
}

func withYear(d time.Time, year int) time.Time {
	return time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// dateOnly truncates t to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
