// Package layout groups recognized tokens into text lines in reading order.
package layout

import (
	"sort"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// MinLineOverlap is the vertical overlap, relative to the smaller height, at
// which a token joins a line.
const MinLineOverlap = 0.5

// Line is a run of tokens sharing a baseline, ordered left to right.
type Line struct {
	Tokens []document.TextToken
	Box    utils.Box
}

// Text joins the line's tokens with single spaces.
func (l Line) Text() string {
	parts := make([]string, len(l.Tokens))
	for i, t := range l.Tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// Offsets returns the byte offset of each token inside Text().
func (l Line) Offsets() []int {
	out := make([]int, len(l.Tokens))
	pos := 0
	for i, t := range l.Tokens {
		out[i] = pos
		pos += len(t.Text) + 1
	}
	return out
}

// Lines groups tokens into lines sorted top to bottom. Input order is ignored.
func Lines(tokens []document.TextToken) []Line {
	sorted := append([]document.TextToken(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Bounds(), sorted[j].Bounds()
		if a.Center().Y != b.Center().Y {
			return a.Center().Y < b.Center().Y
		}
		return a.MinX < b.MinX
	})

	var lines []Line
	for _, tok := range sorted {
		tb := tok.Bounds()
		joined := false
		for i := range lines {
			if lines[i].Box.VerticalOverlap(tb) >= MinLineOverlap {
				lines[i].Tokens = append(lines[i].Tokens, tok)
				lines[i].Box = union(lines[i].Box, tb)
				joined = true
				break
			}
		}
		if !joined {
			lines = append(lines, Line{Tokens: []document.TextToken{tok}, Box: tb})
		}
	}

	for i := range lines {
		toks := lines[i].Tokens
		sort.SliceStable(toks, func(a, b int) bool { return toks[a].Bounds().MinX < toks[b].Bounds().MinX })
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Box.MinY < lines[j].Box.MinY })
	return lines
}

// ReadingOrder returns tokens sorted line by line.
func ReadingOrder(tokens []document.TextToken) []document.TextToken {
	out := make([]document.TextToken, 0, len(tokens))
	for _, l := range Lines(tokens) {
		out = append(out, l.Tokens...)
	}
	return out
}

// FindPhrase returns the positions in line at which the folded words of
// phrase appear as consecutive tokens.
func FindPhrase(line Line, phrase []string) []int {
	if len(phrase) == 0 {
		return nil
	}
	var out []int
	for i := 0; i+len(phrase) <= len(line.Tokens); i++ {
		match := true
		for j, w := range phrase {
			if template.FoldLabel(line.Tokens[i+j].Text) != w {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}

func union(a, b utils.Box) utils.Box {
	return utils.Box{
		MinX: min(a.MinX, b.MinX),
		MinY: min(a.MinY, b.MinY),
		MaxX: max(a.MaxX, b.MaxX),
		MaxY: max(a.MaxY, b.MaxY),
	}
}
