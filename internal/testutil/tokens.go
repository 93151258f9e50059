package testutil

import (
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// TokenLayout places word tokens on a canvas the way an engine reports them:
// fixed-pitch glyphs, one token per word.
type TokenLayout struct {
	CharWidth  float64
	Gap        float64
	Height     float64
	Confidence float64

	tokens []document.TextToken
}

// NewTokenLayout returns a layout with 14px glyphs, 12px word gaps and 24px lines.
func NewTokenLayout() *TokenLayout {
	return &TokenLayout{CharWidth: 14, Gap: 12, Height: 24, Confidence: 0.95}
}

// Line appends words left to right starting at (x, y).
func (l *TokenLayout) Line(x, y float64, words ...string) *TokenLayout {
	for _, w := range words {
		l.Word(w, x, y, l.Confidence)
		x += l.width(w) + l.Gap
	}
	return l
}

// Word appends one token with an explicit confidence.
func (l *TokenLayout) Word(text string, x, y, confidence float64) *TokenLayout {
	l.tokens = append(l.tokens, document.TextToken{
		Index:      len(l.tokens),
		Text:       text,
		Box:        document.RectQuad(x, y, l.width(text), l.Height),
		Confidence: confidence,
	})
	return l
}

// Tokens returns a copy of the placed tokens.
func (l *TokenLayout) Tokens() []document.TextToken {
	return append([]document.TextToken(nil), l.tokens...)
}

func (l *TokenLayout) width(text string) float64 {
	return float64(len([]rune(text))) * l.CharWidth
}

// Fixture is a recognized document: tokens plus the canonical image size.
type Fixture struct {
	Tokens []document.TextToken
	Width  int
	Height int
}

// USDriverLicense is a California license in the layout of the
// us-driver-license-v1 template.
func USDriverLicense() Fixture {
	l := NewTokenLayout().
		Line(40, 30, "CALIFORNIA", "DRIVER", "LICENSE").
		Line(40, 90, "DL", "I1234568").
		Line(500, 90, "EXP", "08/31/2028").
		Line(40, 150, "LN", "SMITH").
		Line(40, 200, "FN", "JOHN", "MICHAEL").
		Line(40, 250, "123", "MAIN", "ST").
		Line(40, 300, "SAN", "FRANCISCO,", "CA", "94102").
		Line(40, 350, "DOB", "03/15/1985").
		Line(500, 350, "ISS", "03/15/2023").
		Line(40, 400, "SEX", "M", "HGT", `5'-10"`, "WGT", "180", "lb", "EYES", "BRN")
	return Fixture{Tokens: l.Tokens(), Width: 1000, Height: 630}
}

// MRZLine pads s with '<' to the 44 characters of a TD3 line.
func MRZLine(s string) string {
	if len(s) >= 44 {
		return s[:44]
	}
	return s + strings.Repeat("<", 44-len(s))
}

// Passport is a TD3 passport data page ending in its two MRZ lines.
func Passport() Fixture {
	l := NewTokenLayout().
		Line(40, 40, "PASSPORT", "UNITED", "STATES", "OF", "AMERICA").
		Line(300, 120, "SMITH").
		Line(300, 200, "JOHN", "MICHAEL").
		Line(40, 560, MRZLine("P<USASMITH<<JOHN<MICHAEL")).
		Line(40, 620, MRZLine("1234567897USA8503151M2803155")[:43]+"2")
	return Fixture{Tokens: l.Tokens(), Width: 1000, Height: 700}
}

// GermanIDCard is the front of a German identity card with labels above values.
func GermanIDCard() Fixture {
	l := NewTokenLayout().
		Line(40, 30, "BUNDESREPUBLIK", "DEUTSCHLAND").
		Line(700, 40, "L01X00T47").
		Line(40, 70, "PERSONALAUSWEIS").
		Line(300, 150, "Name/Surname").
		Line(300, 190, "MUSTERMANN").
		Line(300, 250, "Vornamen").
		Line(300, 290, "ERIKA").
		Line(300, 350, "Geburtstag").
		Line(300, 390, "12.08.1983").
		Line(600, 350, "Staatsangehörigkeit").
		Line(600, 390, "DEUTSCH").
		Line(300, 450, "Gültig", "bis").
		Line(300, 490, "01.08.2031")
	return Fixture{Tokens: l.Tokens(), Width: 1000, Height: 630}
}

// ScaledTo returns the tokens mapped onto a w x h image.
func (f Fixture) ScaledTo(w, h int) []document.TextToken {
	out := append([]document.TextToken(nil), f.Tokens...)
	sx, sy := float64(w)/float64(f.Width), float64(h)/float64(f.Height)
	for i := range out {
		for j, p := range out[i].Box {
			out[i].Box[j] = utils.ScalePoint(p, sx, sy)
		}
	}
	return out
}
