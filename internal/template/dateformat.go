package template

import (
	"fmt"
	"strings"
)

// DateLayout is a human date format ("MM/DD/YYYY") compiled to a Go layout.
type DateLayout struct {
	Format string
	Layout string
	// MonthFirst is true when the month precedes the day.
	MonthFirst bool
	// NumericDayMonth is true when both day and month are digits, i.e. the
	// layout can be confused with its day/month swapped twin.
	NumericDayMonth bool
	// TwoDigitYear marks layouts whose century must be inferred.
	TwoDigitYear bool
}

var dateTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
}

// ParseDateFormat compiles a format written with YYYY, YY, MMMM, MMM, MM, M,
// DD and D tokens. Any other rune is a literal separator.
func ParseDateFormat(format string) (DateLayout, error) {
	out := DateLayout{Format: format}
	var b strings.Builder
	dayAt, monthAt, yearSeen := -1, -1, false
	numericMonth := false

	for i := 0; i < len(format); {
		matched := false
		for _, tok := range dateTokens {
			if !strings.HasPrefix(format[i:], tok.token) {
				continue
			}
			switch tok.token[0] {
			case 'Y':
				if yearSeen {
					return DateLayout{}, fmt.Errorf("date format %q repeats the year", format)
				}
				yearSeen = true
				out.TwoDigitYear = tok.token == "YY"
			case 'M':
				if monthAt >= 0 {
					return DateLayout{}, fmt.Errorf("date format %q repeats the month", format)
				}
				monthAt = i
				numericMonth = len(tok.token) <= 2
			case 'D':
				if dayAt >= 0 {
					return DateLayout{}, fmt.Errorf("date format %q repeats the day", format)
				}
				dayAt = i
			}
			b.WriteString(tok.layout)
			i += len(tok.token)
			matched = true
			break
		}
		if matched {
			continue
		}
		c := format[i]
		if c >= '0' && c <= '9' {
			return DateLayout{}, fmt.Errorf("date format %q contains a digit literal", format)
		}
		if c >= 'A' && c <= 'Z' {
			return DateLayout{}, fmt.Errorf("date format %q has unknown token at %d", format, i)
		}
		b.WriteByte(c)
		i++
	}

	if dayAt < 0 || monthAt < 0 || !yearSeen {
		return DateLayout{}, fmt.Errorf("date format %q needs day, month and year", format)
	}
	out.Layout = b.String()
	out.MonthFirst = monthAt < dayAt
	out.NumericDayMonth = numericMonth
	return out, nil
}
