// Package template defines document layout templates: the anchors that
// identify a layout and the ordered field descriptors with their extraction
// rules. Templates are loaded once and never mutated afterwards.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// Field groups used when presenting results.
const (
	GroupPersonal = "personal"
	GroupAddress  = "address"
	GroupDocument = "document"
)

// Canonical field names shared by cross-field validation.
const (
	FieldDateOfBirth    = "dateOfBirth"
	FieldIssueDate      = "issueDate"
	FieldExpirationDate = "expirationDate"
)

// Name conventions.
const (
	NameFirstLast      = "first_last"
	NameLastFirst      = "last_first"
	NameLastCommaFirst = "last_comma_first"
	NameMRZ            = "mrz"
)

// Label search directions.
const (
	DirectionAny   = "any"
	DirectionRight = "right"
	DirectionBelow = "below"
)

// Region is a rectangle relative to the canonical image size, all values in [0,1].
type Region struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Box scales the region to an image of width x height pixels.
func (r Region) Box(width, height float64) utils.Box {
	return utils.NewBox(r.X*width, r.Y*height, (r.X+r.W)*width, (r.Y+r.H)*height)
}

func (r Region) validate() error {
	if r.W <= 0 || r.H <= 0 {
		return errors.New("region must have positive size")
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > 1.0001 || r.Y+r.H > 1.0001 {
		return errors.New("region must lie within [0,1]")
	}
	return nil
}

// Rule is the extraction rule of one field.
type Rule struct {
	Kind document.RuleKind `yaml:"kind"`

	// label rules
	Labels      []string `yaml:"labels,omitempty"`
	Direction   string   `yaml:"direction,omitempty"`
	MaxDistance float64  `yaml:"max_distance,omitempty"`
	Multiword   bool     `yaml:"multiword,omitempty"`

	// pattern and positional rules; label rules use it to filter candidates
	Pattern string  `yaml:"pattern,omitempty"`
	Group   int     `yaml:"group,omitempty"`
	Region  *Region `yaml:"region,omitempty"`
	Reverse bool    `yaml:"reverse,omitempty"`

	Confidence float64 `yaml:"confidence,omitempty"`

	pattern *regexp.Regexp
	labels  [][]string
}

// Regexp returns the compiled pattern, nil when none was declared.
func (r *Rule) Regexp() *regexp.Regexp { return r.pattern }

// LabelPhrases returns each label split into folded words.
func (r *Rule) LabelPhrases() [][]string { return r.labels }

// Default rule-match confidences per rule kind.
var defaultRuleConfidence = map[document.RuleKind]float64{
	document.RuleLabel:      0.95,
	document.RulePattern:    0.85,
	document.RulePositional: 0.8,
}

// DefaultLabelDistance is the label-to-value distance limit relative to the
// image width.
const DefaultLabelDistance = 0.35

func (r *Rule) compile() error {
	switch r.Kind {
	case document.RuleLabel:
		if len(r.Labels) == 0 {
			return errors.New("label rule needs at least one label")
		}
		r.labels = make([][]string, 0, len(r.Labels))
		for _, l := range r.Labels {
			words := strings.Fields(FoldLabel(l))
			if len(words) == 0 {
				return fmt.Errorf("empty label %q", l)
			}
			r.labels = append(r.labels, words)
		}
		switch r.Direction {
		case "":
			r.Direction = DirectionAny
		case DirectionAny, DirectionRight, DirectionBelow:
		default:
			return fmt.Errorf("unknown direction %q", r.Direction)
		}
		if r.MaxDistance <= 0 {
			r.MaxDistance = DefaultLabelDistance
		}
	case document.RulePattern:
		if r.Pattern == "" {
			return errors.New("pattern rule needs a pattern")
		}
	case document.RulePositional:
		if r.Region == nil {
			return errors.New("positional rule needs a region")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}

	if r.Region != nil {
		if err := r.Region.validate(); err != nil {
			return err
		}
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		if r.Group < 0 || r.Group > re.NumSubexp() {
			return fmt.Errorf("group %d out of range for pattern with %d groups", r.Group, re.NumSubexp())
		}
		r.pattern = re
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		r.Confidence = defaultRuleConfidence[r.Kind]
	}
	return nil
}

// EnumValue is one vocabulary entry: a canonical code plus accepted spellings.
type EnumValue struct {
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Field describes one field of a template.
type Field struct {
	Name       string             `yaml:"name"`
	Group      string             `yaml:"group,omitempty"`
	Type       document.ValueType `yaml:"type"`
	Required   bool               `yaml:"required,omitempty"`
	Rule       Rule               `yaml:"rule"`
	Formats    []string           `yaml:"formats,omitempty"`
	Century    string             `yaml:"century,omitempty"`
	Vocabulary []EnumValue        `yaml:"vocabulary,omitempty"`
	Unit       string             `yaml:"unit,omitempty"`
	Convention string             `yaml:"convention,omitempty"`
	Trim       string             `yaml:"trim,omitempty"`
}

// Anchor is a characteristic token pattern of a layout.
type Anchor struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight,omitempty"`
	Region  *Region `yaml:"region,omitempty"`

	re *regexp.Regexp
}

// Regexp returns the compiled, case-insensitive anchor pattern.
func (a *Anchor) Regexp() *regexp.Regexp { return a.re }

// Template is one document layout definition.
type Template struct {
	ID             string   `yaml:"id"`
	Family         string   `yaml:"family"`
	Version        int      `yaml:"version"`
	Country        string   `yaml:"country,omitempty"`
	Kind           string   `yaml:"kind,omitempty"`
	Locale         string   `yaml:"locale,omitempty"`
	Generic        bool     `yaml:"generic,omitempty"`
	MinScore       float64  `yaml:"min_score,omitempty"`
	DateFormats    []string `yaml:"date_formats,omitempty"`
	NameConvention string   `yaml:"name_convention,omitempty"`
	Anchors        []Anchor `yaml:"anchors,omitempty"`
	Fields         []Field  `yaml:"fields"`

	index map[string]int
}

// ValidationError reports an invalid template definition.
type ValidationError struct {
	TemplateID string
	Field      string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("template %q field %q: %v", e.TemplateID, e.Field, e.Err)
	}
	return fmt.Sprintf("template %q: %v", e.TemplateID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Compile validates the definition and prepares patterns. It must be called
// before the template is used; the loaders do so.
func (t *Template) Compile() error {
	fail := func(field string, err error) error {
		return &ValidationError{TemplateID: t.ID, Field: field, Err: err}
	}
	if strings.TrimSpace(t.ID) == "" {
		return fail("", errors.New("id is required"))
	}
	if len(t.Fields) == 0 {
		return fail("", errors.New("at least one field is required"))
	}
	if t.Version <= 0 {
		t.Version = 1
	}
	if t.NameConvention == "" {
		t.NameConvention = NameFirstLast
	}
	for _, f := range t.DateFormats {
		if _, err := ParseDateFormat(f); err != nil {
			return fail("", err)
		}
	}

	for i := range t.Anchors {
		a := &t.Anchors[i]
		re, err := regexp.Compile("(?i)" + a.Pattern)
		if err != nil {
			return fail("", fmt.Errorf("anchor %d: %w", i, err))
		}
		a.re = re
		if a.Weight <= 0 {
			a.Weight = 1
		}
		if a.Region != nil {
			if err := a.Region.validate(); err != nil {
				return fail("", fmt.Errorf("anchor %d: %w", i, err))
			}
		}
	}
	if !t.Generic && len(t.Anchors) == 0 {
		return fail("", errors.New("non-generic templates need anchors"))
	}

	t.index = make(map[string]int, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return fail("", fmt.Errorf("field %d has no name", i))
		}
		if _, dup := t.index[f.Name]; dup {
			return fail(f.Name, errors.New("duplicate field"))
		}
		t.index[f.Name] = i
		if err := f.Rule.compile(); err != nil {
			return fail(f.Name, err)
		}
		if err := t.checkType(f); err != nil {
			return fail(f.Name, err)
		}
	}
	return nil
}

func (t *Template) checkType(f *Field) error {
	switch f.Type {
	case document.TypeString, document.TypeNumber:
	case document.TypeDate:
		if len(t.FormatsFor(f)) == 0 {
			return errors.New("date field without formats")
		}
		for _, df := range f.Formats {
			if _, err := ParseDateFormat(df); err != nil {
				return err
			}
		}
		switch f.Century {
		case "", "past", "future":
		default:
			return fmt.Errorf("unknown century hint %q", f.Century)
		}
	case document.TypeEnum:
		if len(f.Vocabulary) == 0 {
			return errors.New("enum field without vocabulary")
		}
	case document.TypeName:
		switch t.ConventionFor(f) {
		case NameFirstLast, NameLastFirst, NameLastCommaFirst, NameMRZ:
		default:
			return fmt.Errorf("unknown name convention %q", t.ConventionFor(f))
		}
	case "":
		f.Type = document.TypeString
	default:
		return fmt.Errorf("unknown type %q", f.Type)
	}
	return nil
}

// FieldNames returns the declared field names in order.
func (t *Template) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		names[i] = t.Fields[i].Name
	}
	return names
}

// Field returns the named descriptor or nil.
func (t *Template) Field(name string) *Field {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return &t.Fields[i]
}

// Required returns the required descriptors in order.
func (t *Template) Required() []*Field {
	var out []*Field
	for i := range t.Fields {
		if t.Fields[i].Required {
			out = append(out, &t.Fields[i])
		}
	}
	return out
}

// FormatsFor returns the field's date formats, falling back to the template list.
func (t *Template) FormatsFor(f *Field) []string {
	if len(f.Formats) > 0 {
		return f.Formats
	}
	return t.DateFormats
}

// ConventionFor returns the field's name convention, falling back to the template's.
func (t *Template) ConventionFor(f *Field) string {
	if f.Convention != "" {
		return f.Convention
	}
	return t.NameConvention
}

// MonthFirst reports whether the template locale writes numeric dates month first.
func (t *Template) MonthFirst() (monthFirst bool, known bool) {
	if t.Locale == "" {
		return false, false
	}
	region := strings.ToUpper(t.Locale)
	if i := strings.LastIndexAny(region, "-_"); i >= 0 {
		region = region[i+1:]
	}
	switch region {
	case "US", "PH", "FM", "MH", "PW":
		return true, true
	}
	return false, true
}
