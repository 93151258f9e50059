package document

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawCaptureCopiesBytes(t *testing.T) {
	buf := []byte{1, 2, 3}
	c := NewRawCapture(buf, FormatPNG, time.Unix(0, 0))
	buf[0] = 9
	assert.Equal(t, byte(1), c.Bytes()[0])

	out := c.Bytes()
	out[1] = 9
	assert.Equal(t, byte(2), c.Bytes()[1])
	assert.Equal(t, 3, c.Len())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, ParseFormat("JPG"))
	assert.Equal(t, FormatHEIC, ParseFormat("image/heif"))
	assert.Equal(t, FormatPDF, ParseFormat(" application/pdf "))
	assert.Equal(t, FormatAuto, ParseFormat("raw"))
}

func TestQuadGeometry(t *testing.T) {
	q := RectQuad(10, 20, 100, 50)
	assert.InDelta(t, 5000.0, q.Area(), 1e-9)
	w, h := q.EdgeLengths()
	assert.InDelta(t, 100.0, w, 1e-9)
	assert.InDelta(t, 50.0, h, 1e-9)
	assert.InDelta(t, 60.0, q.Center().X, 1e-9)
}

func TestNormalizedImageAspect(t *testing.T) {
	n := NormalizedImage{Image: image.NewGray(image.Rect(0, 0, 100, 160))}
	assert.InDelta(t, 1.6, n.AspectRatio(), 1e-9)
	assert.False(t, n.Degraded())
	assert.Zero(t, NormalizedImage{}.AspectRatio())
}

func TestRulePriority(t *testing.T) {
	assert.Less(t, RuleLabel.Priority(), RulePattern.Priority())
	assert.Less(t, RulePattern.Priority(), RulePositional.Priority())
}

func TestScanResultOrderAndFlags(t *testing.T) {
	r := NewScanResult("tpl", []*ExtractedField{{Name: "b"}, {Name: "a"}})
	require.Len(t, r.Ordered(), 2)
	assert.Equal(t, "b", r.Ordered()[0].Name)
	assert.Equal(t, []string{"a", "b"}, r.FieldNames())

	f := r.Field("a")
	f.AddFlag(FlagInconsistent)
	f.AddFlag(FlagInconsistent)
	assert.Len(t, f.Flags, 1)
	f.Found = true
	f.Value = &Value{Type: TypeString, Text: "x"}
	assert.False(t, f.Usable())
	assert.True(t, r.Field("a").HasFlag(FlagInconsistent))

	r.AddNote(NoteNoTokens, "empty")
	assert.True(t, r.HasNote(NoteNoTokens))
}
