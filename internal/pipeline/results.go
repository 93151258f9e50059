package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatCSV  = "csv"
)

// FormatResult renders res in one of the output formats.
func FormatResult(res *document.ScanResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return ToJSON(res)
	case FormatText:
		return ToPlainText(res)
	case FormatCSV:
		return ToCSV(res)
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

// ToJSON serializes a single result to pretty JSON.
func ToJSON(res *document.ScanResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONResults serializes multiple results to pretty JSON.
func ToJSONResults(results []*document.ScanResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var sections = []struct {
	group string
	title string
}{
	{template.GroupPersonal, "Personal"},
	{template.GroupAddress, "Address"},
	{template.GroupDocument, "Document"},
	{"", "Other"},
}

// ToPlainText lists fields by section in template order.
func ToPlainText(res *document.ScanResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\nTemplate: %s\n", res.Status, res.TemplateID)
	if res.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", res.Error)
	}

	known := map[string]bool{}
	for _, s := range sections[:len(sections)-1] {
		known[s.group] = true
	}
	for _, s := range sections {
		var rows []*document.ExtractedField
		for _, f := range res.Ordered() {
			if f.Group == s.group || (s.group == "" && !known[f.Group]) {
				rows = append(rows, f)
			}
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", s.title)
		for _, f := range rows {
			fmt.Fprintf(&b, "  %-16s %s\n", f.Name+":", describe(f))
		}
	}
	for _, n := range res.Notes {
		fmt.Fprintf(&b, "\nNote: %s: %s", n.Code, n.Message)
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func describe(f *document.ExtractedField) string {
	var s string
	switch {
	case !f.Found:
		return "(not found)"
	case f.Value != nil:
		s = f.Value.Text
		if f.Value.Unit != "" {
			s += " " + f.Value.Unit
		}
	default:
		s = fmt.Sprintf("%q", f.RawValue)
	}
	var marks []string
	if f.Failure != document.FailureNone {
		marks = append(marks, string(f.Failure))
	}
	for _, fl := range f.Flags {
		marks = append(marks, string(fl))
	}
	if len(marks) > 0 {
		s += " [" + strings.Join(marks, ", ") + "]"
	}
	return s
}

// ToCSV exports one row per field with header.
func ToCSV(res *document.ScanResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"field", "group", "required", "found", "raw", "value", "confidence", "failure", "flags"})
	for _, f := range res.Ordered() {
		flags := make([]string, len(f.Flags))
		for i, fl := range f.Flags {
			flags[i] = string(fl)
		}
		row := []string{
			f.Name,
			f.Group,
			fmt.Sprint(f.Required),
			fmt.Sprint(f.Found),
			f.RawValue,
			f.Value.String(),
			fmt.Sprintf("%.3f", f.Confidence),
			string(f.Failure),
			strings.Join(flags, "|"),
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ValidateResult checks that res holds exactly the fields of t.
func ValidateResult(res *document.ScanResult, t *template.Template) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.TemplateID != t.ID {
		return fmt.Errorf("result template %q, expected %q", res.TemplateID, t.ID)
	}
	if len(res.Fields) != len(t.Fields) || len(res.Order) != len(t.Fields) {
		return fmt.Errorf("result has %d fields, template %q declares %d", len(res.Fields), t.ID, len(t.Fields))
	}
	for i, name := range t.FieldNames() {
		if res.Order[i] != name {
			return fmt.Errorf("field %d is %q, expected %q", i, res.Order[i], name)
		}
		if _, ok := res.Fields[name]; !ok {
			return fmt.Errorf("field %q missing", name)
		}
	}
	for _, f := range res.Fields {
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("field %q confidence %.3f out of range", f.Name, f.Confidence)
		}
	}
	return nil
}
