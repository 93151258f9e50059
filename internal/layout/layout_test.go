package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

func TestLines_GroupsAndOrders(t *testing.T) {
	tokens := testutil.NewTokenLayout().
		Line(500, 90, "EXP", "08/31/2028").
		Line(40, 30, "DRIVER", "LICENSE").
		Line(40, 92, "DL", "I1234568").
		Tokens()
	// Shuffle input order.
	tokens[0], tokens[5] = tokens[5], tokens[0]

	lines := Lines(tokens)
	require.Len(t, lines, 2)
	assert.Equal(t, "DRIVER LICENSE", lines[0].Text())
	assert.Equal(t, "DL I1234568 EXP 08/31/2028", lines[1].Text())
	assert.Equal(t, []int{0, 3, 12, 16}, lines[1].Offsets())
}

func TestLines_Empty(t *testing.T) {
	assert.Empty(t, Lines(nil))
	assert.Empty(t, ReadingOrder(nil))
}

func TestReadingOrder(t *testing.T) {
	fx := testutil.USDriverLicense()
	ordered := ReadingOrder(fx.Tokens)
	require.Len(t, ordered, len(fx.Tokens))
	assert.Equal(t, "CALIFORNIA", ordered[0].Text)
	assert.Equal(t, "BRN", ordered[len(ordered)-1].Text)
}

func TestFindPhrase(t *testing.T) {
	line := Line{Tokens: []document.TextToken{{Text: "Gültig"}, {Text: "bis:"}, {Text: "01.08.2031"}}}
	assert.Equal(t, []int{0}, FindPhrase(line, []string{"gültig", "bis"}))
	assert.Empty(t, FindPhrase(line, []string{"bis", "gültig"}))
	assert.Empty(t, FindPhrase(line, nil))
}
