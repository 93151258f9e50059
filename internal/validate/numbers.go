package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type dimension int

const (
	dimLength dimension = iota + 1
	dimMass
)

type unit struct {
	name   string
	dim    dimension
	factor float64 // to meters or kilograms
}

var units = map[string]unit{
	"in": {"in", dimLength, 0.0254},
	"ft": {"ft", dimLength, 0.3048},
	"cm": {"cm", dimLength, 0.01},
	"mm": {"mm", dimLength, 0.001},
	"m":  {"m", dimLength, 1},
	"lb": {"lb", dimMass, 0.45359237},
	"kg": {"kg", dimMass, 1},
	"g":  {"g", dimMass, 0.001},
}

var unitAliases = map[string]string{
	"IN": "in", "INCH": "in", "INCHES": "in", `"`: "in",
	"FT": "ft", "FEET": "ft", "FOOT": "ft", "'": "ft",
	"CM": "cm", "MM": "mm", "M": "m",
	"LB": "lb", "LBS": "lb", "POUND": "lb", "POUNDS": "lb",
	"KG": "kg", "KGS": "kg", "G": "g",
}

var (
	feetInches = regexp.MustCompile(`^(\d)\s*(?:'|FT)\s*-?\s*(\d{1,2})\s*(?:"|''|IN)?$`)
	feetDash   = regexp.MustCompile(`^(\d)-(\d{1,2})$`)
	feetPacked = regexp.MustCompile(`^(\d)(\d{2})$`)
	quantity   = regexp.MustCompile(`^([-+]?\d+(?:[.,]\d+)?)\s*([A-Z]+|'|")?\.?$`)
)

// parseQuantity reads a decimal with an optional unit and converts it to
// target. An empty target accepts any unit and keeps it. Heights written as
// feet and inches are accepted when target is a length.
func parseQuantity(raw, target string) (float64, string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	to, hasTarget := units[target]

	if hasTarget && to.dim == dimLength {
		if inches, ok := feetAndInches(s, target); ok {
			return round2(inches * units["in"].factor / to.factor), target, nil
		}
	}

	m := quantity.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("%q is not a number", raw)
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, "", fmt.Errorf("%q is not a number: %w", raw, err)
	}
	if m[2] == "" {
		return v, target, nil
	}
	name, ok := unitAliases[m[2]]
	if !ok {
		return 0, "", fmt.Errorf("unknown unit %q", m[2])
	}
	if !hasTarget {
		return v, name, nil
	}
	from := units[name]
	if from.dim != to.dim {
		return 0, "", fmt.Errorf("cannot convert %s to %s", name, target)
	}
	return round2(v * from.factor / to.factor), target, nil
}

// feetAndInches reads 5'10", 5'-10", 5-10 and, for inch or foot targets,
// the packed 510 form.
func feetAndInches(s, target string) (float64, bool) {
	m := feetInches.FindStringSubmatch(s)
	if m == nil {
		m = feetDash.FindStringSubmatch(s)
	}
	if m == nil && (target == "in" || target == "ft") {
		m = feetPacked.FindStringSubmatch(s)
	}
	if m == nil {
		return 0, false
	}
	ft, _ := strconv.Atoi(m[1])
	in, _ := strconv.Atoi(m[2])
	if in >= 12 {
		return 0, false
	}
	return float64(ft*12 + in), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
