package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

func dateTemplate(t *testing.T, locale string, formats ...string) *template.Template {
	t.Helper()
	tpl := &template.Template{
		ID:          "dates",
		Generic:     true,
		Locale:      locale,
		DateFormats: formats,
		Fields: []template.Field{{
			Name: "d",
			Type: document.TypeDate,
			Rule: template.Rule{Kind: document.RulePattern, Pattern: "."},
		}},
	}
	require.NoError(t, tpl.Compile())
	return tpl
}

func TestParseDate(t *testing.T) {
	today := dateOnly(fixedNow)
	tests := []struct {
		name    string
		locale  string
		formats []string
		raw     string
		want    string
		wantErr bool
	}{
		{"us numeric", "", []string{"MM/DD/YYYY"}, "03/15/1985", "1985-03-15", false},
		{"first match wins", "", []string{"YYYY-MM-DD", "MM/DD/YYYY"}, "1985-03-15", "1985-03-15", false},
		{"single digit month", "", []string{"M/D/YYYY"}, "3/5/1985", "1985-03-05", false},
		{"month name upper case", "", []string{"DD MMM YYYY"}, "15 MAR 1985", "1985-03-15", false},
		{"collapses spaces", "", []string{"DD MMM YYYY"}, " 15  Mar 1985 ", "1985-03-15", false},
		{"unambiguous day over 12", "", []string{"DD/MM/YYYY", "MM/DD/YYYY"}, "03/15/1985", "1985-03-15", false},
		{"ambiguous us locale", "en-US", []string{"DD/MM/YYYY", "MM/DD/YYYY"}, "03/04/2020", "2020-03-04", false},
		{"ambiguous german locale", "de-DE", []string{"MM/DD/YYYY", "DD/MM/YYYY"}, "03/04/2020", "2020-04-03", false},
		{"ambiguous without locale", "", []string{"DD/MM/YYYY", "MM/DD/YYYY"}, "03/04/2020", "", true},
		{"ambiguous but same date", "", []string{"DD/MM/YYYY", "MM/DD/YYYY"}, "04/04/2020", "2020-04-04", false},
		{"no format matches", "", []string{"YYYY-MM-DD"}, "15.03.1985", "", true},
		{"impossible date", "", []string{"MM/DD/YYYY"}, "02/30/2020", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := dateTemplate(t, tt.locale, tt.formats...)
			got, err := parseDate(tpl, &tpl.Fields[0], tt.raw, today)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
		})
	}
}

func TestApplyCentury(t *testing.T) {
	today := dateOnly(fixedNow)
	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		hint string
		in   time.Time
		want int
	}{
		{"past", at(1985, 3, 15), 1985},
		{"past", at(2085, 3, 15), 1985},
		{"past", at(2026, 10, 14), 2026},
		{"past", at(2026, 10, 15), 1926},
		{"past", at(2003, 1, 1), 2003},
		{"future", at(2028, 3, 15), 2028},
		{"future", at(2020, 1, 1), 2020},
		{"future", at(1975, 1, 1), 2075},
		{"future", at(1977, 1, 1), 1977},
		{"", at(1969, 1, 1), 1969},
	}
	for _, tt := range tests {
		got := applyCentury(tt.in, tt.hint, today)
		assert.Equal(t, tt.want, got.Year(), "%s %s", tt.hint, tt.in.Format(time.DateOnly))
		assert.Equal(t, tt.in.Month(), got.Month())
		assert.Equal(t, tt.in.Day(), got.Day())
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		convention string
		raw        string
		want       document.PersonName
	}{
		{template.NameFirstLast, "JOHN MICHAEL SMITH", document.PersonName{First: "JOHN", Middle: "MICHAEL", Last: "SMITH", Full: "JOHN MICHAEL SMITH"}},
		{template.NameFirstLast, "SMITH", document.PersonName{Last: "SMITH", Full: "SMITH"}},
		{template.NameLastFirst, "SMITH JOHN MICHAEL", document.PersonName{First: "JOHN", Middle: "MICHAEL", Last: "SMITH", Full: "JOHN MICHAEL SMITH"}},
		{template.NameLastCommaFirst, "VAN DYKE, JANE", document.PersonName{First: "JANE", Last: "VAN DYKE", Full: "JANE VAN DYKE"}},
		{template.NameLastCommaFirst, "SMITH JOHN", document.PersonName{First: "JOHN", Last: "SMITH", Full: "JOHN SMITH"}},
		{template.NameMRZ, "SMITH<<JOHN<MICHAEL<<<<<<", document.PersonName{First: "JOHN", Middle: "MICHAEL", Last: "SMITH", Full: "JOHN MICHAEL SMITH"}},
		{template.NameMRZ, "DE<LA<CRUZ<<MARIA<<<", document.PersonName{First: "MARIA", Last: "DE LA CRUZ", Full: "MARIA DE LA CRUZ"}},
		{template.NameMRZ, "ERIKSSON<<<<<", document.PersonName{Last: "ERIKSSON", Full: "ERIKSSON"}},
	}
	for _, tt := range tests {
		t.Run(tt.convention+"/"+tt.raw, func(t *testing.T) {
			got, err := splitName(tt.raw, tt.convention)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	_, err := splitName("<<<<", template.NameMRZ)
	assert.ErrorIs(t, err, errEmptyName)
	_, err = splitName("  ", template.NameFirstLast)
	assert.ErrorIs(t, err, errEmptyName)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw      string
		target   string
		want     float64
		wantUnit string
		wantErr  bool
	}{
		{`5'10"`, "in", 70, "in", false},
		{`5'-10"`, "in", 70, "in", false},
		{`5' 10"`, "in", 70, "in", false},
		{"5-10", "in", 70, "in", false},
		{"510", "in", 70, "in", false},
		{"178 cm", "in", 70.08, "in", false},
		{"70", "in", 70, "in", false},
		{`70"`, "in", 70, "in", false},
		{`5'10"`, "cm", 177.8, "cm", false},
		{"180 lb", "lb", 180, "lb", false},
		{"180 LBS", "lb", 180, "lb", false},
		{"82 kg", "lb", 180.78, "lb", false},
		{"1,75 m", "cm", 175, "cm", false},
		{"42", "", 42, "", false},
		{"42 kg", "", 42, "kg", false},
		{"180 cm", "lb", 0, "", true},
		{`5'13"`, "in", 0, "", true},
		{"tall", "in", 0, "", true},
		{"12 parsecs", "in", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"->"+tt.target, func(t *testing.T) {
			got, unit, err := parseQuantity(tt.raw, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestMatchEnum(t *testing.T) {
	vocab := []template.EnumValue{
		{Code: "M", Aliases: []string{"MALE", "MÄNNLICH"}},
		{Code: "X", Aliases: []string{"<"}},
	}
	for raw, want := range map[string]string{"m": "M", "Male": "M", "männlich": "M", "<": "X"} {
		got, ok := matchEnum(vocab, raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := matchEnum(vocab, "F")
	assert.False(t, ok)
}
