package document

import (
	"sort"
	"time"
)

// ValueType is the declared type of a template field.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeDate   ValueType = "date"
	TypeEnum   ValueType = "enum"
	TypeNumber ValueType = "number"
	TypeName   ValueType = "name"
)

// RuleKind is the extraction rule class of a template field. Kinds are
// listed in priority order.
type RuleKind string

const (
	RuleLabel      RuleKind = "label"
	RulePattern    RuleKind = "pattern"
	RulePositional RuleKind = "positional"
)

// Priority returns the overlap priority of a rule kind; lower wins.
func (k RuleKind) Priority() int {
	switch k {
	case RuleLabel:
		return 0
	case RulePattern:
		return 1
	case RulePositional:
		return 2
	}
	return 3
}

// Failure explains why a field carries no normalized value.
type Failure string

const (
	FailureNone          Failure = ""
	FailureNotFound      Failure = "NotFound"
	FailureInvalidFormat Failure = "InvalidFormat"
)

// Flag annotates a field without removing it.
type Flag string

const (
	FlagLowConfidence    Flag = "LowConfidence"
	FlagInconsistent     Flag = "Inconsistent"
	FlagUnrecognizedEnum Flag = "UnrecognizedEnum"
	FlagDegraded         Flag = "Degraded"
)

// PersonName is a name split by the template's naming convention.
type PersonName struct {
	First  string `json:"first,omitempty"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last,omitempty"`
	Full   string `json:"full"`
}

// Value is a normalized, typed field value. Text always holds the canonical
// string form: ISO-8601 for dates, the vocabulary code for enums.
type Value struct {
	Type   ValueType   `json:"type"`
	Text   string      `json:"text"`
	Date   time.Time   `json:"-"`
	Number float64     `json:"number,omitempty"`
	Unit   string      `json:"unit,omitempty"`
	Name   *PersonName `json:"name,omitempty"`
}

func (v *Value) String() string {
	if v == nil {
		return ""
	}
	return v.Text
}

// ExtractedField is one entry of a ScanResult.
type ExtractedField struct {
	Name       string    `json:"name"`
	Group      string    `json:"group,omitempty"`
	Required   bool      `json:"required"`
	Type       ValueType `json:"type"`
	Found      bool      `json:"found"`
	RawValue   string    `json:"raw_value,omitempty"`
	Value      *Value    `json:"value,omitempty"`
	Confidence float64   `json:"confidence"`
	Provenance []int     `json:"provenance,omitempty"`
	Rule       RuleKind  `json:"rule,omitempty"`
	Failure    Failure   `json:"failure,omitempty"`
	Flags      []Flag    `json:"flags,omitempty"`
}

// HasFlag reports whether f is set.
func (f *ExtractedField) HasFlag(flag Flag) bool {
	for _, x := range f.Flags {
		if x == flag {
			return true
		}
	}
	return false
}

// AddFlag sets flag once.
func (f *ExtractedField) AddFlag(flag Flag) {
	if !f.HasFlag(flag) {
		f.Flags = append(f.Flags, flag)
	}
}

// Usable reports whether the field has a normalized value free of
// consistency and vocabulary problems.
func (f *ExtractedField) Usable() bool {
	return f.Found && f.Value != nil && !f.HasFlag(FlagInconsistent) && !f.HasFlag(FlagUnrecognizedEnum)
}

// Status is the aggregate outcome of a scan.
type Status string

const (
	StatusComplete Status = "Complete"
	StatusPartial  Status = "Partial"
	StatusFailed   Status = "Failed"
)

// Note codes explain degraded or failed results.
const (
	NoteBoundaryNotFound      = "boundary_not_found"
	NoteTemplateNotRecognized = "template_not_recognized"
	NoteDecodeFailed          = "decode_failed"
	NoteRecognitionFailed     = "recognition_failed"
	NoteNoTokens              = "no_tokens"
	NoteAborted               = "aborted"
)

// Note is a result-level annotation.
type Note struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanResult maps every field declared by the matched template to its
// extraction outcome.
type ScanResult struct {
	SessionID   string                     `json:"session_id,omitempty"`
	Generation  uint64                     `json:"generation,omitempty"`
	Status      Status                     `json:"status"`
	TemplateID  string                     `json:"template_id"`
	Fields      map[string]*ExtractedField `json:"fields"`
	Order       []string                   `json:"order"`
	Degraded    bool                       `json:"degraded,omitempty"`
	Notes       []Note                     `json:"notes,omitempty"`
	Error       string                     `json:"error,omitempty"`
	TokenCount  int                        `json:"token_count"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt time.Time                  `json:"completed_at"`
}

// NewScanResult builds a result holding fields in the given order.
func NewScanResult(templateID string, fields []*ExtractedField) *ScanResult {
	r := &ScanResult{
		TemplateID: templateID,
		Fields:     make(map[string]*ExtractedField, len(fields)),
		Order:      make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		r.Fields[f.Name] = f
		r.Order = append(r.Order, f.Name)
	}
	return r
}

// Field returns the named field or nil.
func (r *ScanResult) Field(name string) *ExtractedField {
	return r.Fields[name]
}

// Ordered returns fields in template order.
func (r *ScanResult) Ordered() []*ExtractedField {
	out := make([]*ExtractedField, 0, len(r.Order))
	for _, name := range r.Order {
		if f, ok := r.Fields[name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns the sorted key set.
func (r *ScanResult) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddNote appends a note.
func (r *ScanResult) AddNote(code, message string) {
	r.Notes = append(r.Notes, Note{Code: code, Message: message})
}

// HasNote reports whether a note with code exists.
func (r *ScanResult) HasNote(code string) bool {
	for _, n := range r.Notes {
		if n.Code == code {
			return true
		}
	}
	return false
}
