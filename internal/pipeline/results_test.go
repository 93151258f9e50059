package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

func scanLicense(t *testing.T) (*Pipeline, *document.ScanResult) {
	t.Helper()
	p := newPipeline(t, replay(testutil.USDriverLicense()))
	res, err := p.Process(context.Background(), cardCapture(t))
	require.NoError(t, err)
	return p, res
}

func TestFormatResult(t *testing.T) {
	_, res := scanLicense(t)

	for _, format := range []string{"", "json", "JSON", "text", "csv"} {
		out, err := FormatResult(res, format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, out, format)
	}
	_, err := FormatResult(res, "xml")
	assert.Error(t, err)
	_, err = FormatResult(nil, "text")
	assert.Error(t, err)
}

func TestToJSON(t *testing.T) {
	_, res := scanLicense(t)
	out, err := ToJSON(res)
	require.NoError(t, err)

	var decoded struct {
		Status     string                     `json:"status"`
		TemplateID string                     `json:"template_id"`
		Order      []string                   `json:"order"`
		Fields     map[string]json.RawMessage `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Complete", decoded.Status)
	assert.Equal(t, "us-driver-license-v1", decoded.TemplateID)
	assert.Len(t, decoded.Fields, len(decoded.Order))

	many, err := ToJSONResults([]*document.ScanResult{res, res})
	require.NoError(t, err)
	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(many), &arr))
	assert.Len(t, arr, 2)
}

func TestToPlainText(t *testing.T) {
	_, res := scanLicense(t)
	out, err := ToPlainText(res)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Status: Complete\nTemplate: us-driver-license-v1\n"))
	assert.Contains(t, out, "\nPersonal\n")
	assert.Contains(t, out, "\nDocument\n")
	assert.Contains(t, out, "dateOfBirth:")
	assert.Contains(t, out, "1985-03-15")
	assert.Contains(t, out, "70 in")
	assert.Less(t, strings.Index(out, "Personal"), strings.Index(out, "Document"))
}

func TestToPlainText_Marks(t *testing.T) {
	res := document.NewScanResult("generic-v1", []*document.ExtractedField{
		{Name: "a", Group: template.GroupDocument, Found: true, RawValue: "31/02/2020", Failure: document.FailureInvalidFormat},
		{Name: "b", Group: "misc", Found: false, Failure: document.FailureNotFound},
	})
	res.Status = document.StatusPartial
	res.AddNote(document.NoteBoundaryNotFound, "no document edge")

	out, err := ToPlainText(res)
	require.NoError(t, err)
	assert.Contains(t, out, `"31/02/2020" [InvalidFormat]`)
	assert.Contains(t, out, "\nOther\n")
	assert.Contains(t, out, "(not found)")
	assert.True(t, strings.HasSuffix(out, "Note: boundary_not_found: no document edge\n"))
}

func TestToCSV(t *testing.T) {
	_, res := scanLicense(t)
	out, err := ToCSV(res)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(res.Order)+1)
	assert.Equal(t, []string{"field", "group", "required", "found", "raw", "value", "confidence", "failure", "flags"}, rows[0])
	for i, name := range res.Order {
		assert.Equal(t, name, rows[i+1][0])
	}
}

func TestValidateResult(t *testing.T) {
	p, res := scanLicense(t)
	tpl, _ := p.Registry().Get(res.TemplateID)
	require.NoError(t, ValidateResult(res, tpl))

	assert.Error(t, ValidateResult(nil, tpl))
	assert.Error(t, ValidateResult(res, p.Registry().Generic()))

	missing := *res
	missing.Order = res.Order[1:]
	assert.Error(t, ValidateResult(&missing, tpl))

	res.Field(res.Order[0]).Confidence = 1.5
	assert.Error(t, ValidateResult(res, tpl))
}
