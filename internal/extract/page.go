package extract

import (
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/layout"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// item is one token placed on the page.
type item struct {
	tok   document.TextToken
	box   utils.Box
	line  int
	pos   int
	label bool
	spans []span // claimed byte ranges of tok.Text
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

func (it *item) free(s span) bool {
	for _, c := range it.spans {
		if c.overlaps(s) {
			return false
		}
	}
	return true
}

// part is the byte range of one token that contributes to a value.
type part struct {
	it *item
	span
}

// page is the token layout of one extraction run.
type page struct {
	width, height float64
	lines         [][]*item
}

func newPage(tokens []document.TextToken, width, height int) *page {
	// Index by input position so lines can be mapped back to items.
	positioned := make([]document.TextToken, len(tokens))
	for i, t := range tokens {
		t.Index = i
		positioned[i] = t
	}
	p := &page{width: float64(width), height: float64(height)}
	for li, l := range layout.Lines(positioned) {
		row := make([]*item, len(l.Tokens))
		for pi, t := range l.Tokens {
			orig := tokens[t.Index]
			row[pi] = &item{tok: orig, box: orig.Bounds(), line: li, pos: pi}
		}
		p.lines = append(p.lines, row)
	}
	return p
}

// items returns every item in reading order.
func (p *page) items() []*item {
	var out []*item
	for _, row := range p.lines {
		out = append(out, row...)
	}
	return out
}

// joined is text assembled from items with single spaces, remembering where
// each item starts.
type joined struct {
	text    string
	items   []*item
	offsets []int
}

func join(items []*item) joined {
	j := joined{items: items, offsets: make([]int, len(items))}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte(' ')
		}
		j.offsets[i] = b.Len()
		b.WriteString(it.tok.Text)
	}
	j.text = b.String()
	return j
}

// parts maps a byte range of the joined text onto token ranges. Separator
// spaces belong to no token.
func (j joined) parts(start, end int) []part {
	var out []part
	for i, it := range j.items {
		off := j.offsets[i]
		s := max(start, off) - off
		e := min(end, off+len(it.tok.Text)) - off
		if s < e {
			out = append(out, part{it: it, span: span{s, e}})
		}
	}
	return out
}

// segments splits a line into runs of eligible items without wide gaps.
func segments(row []*item, eligible func(*item) bool, gapFactor float64) [][]*item {
	var out [][]*item
	var cur []*item
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	for _, it := range row {
		if !eligible(it) {
			flush()
			continue
		}
		if len(cur) > 0 && wideGap(cur[len(cur)-1], it, gapFactor) {
			flush()
		}
		cur = append(cur, it)
	}
	flush()
	return out
}

func wideGap(a, b *item, factor float64) bool {
	h := max(a.box.Height(), b.box.Height())
	return b.box.MinX-a.box.MaxX > factor*h
}

func provenance(parts []part) []int {
	seen := make(map[int]bool, len(parts))
	var out []int
	for _, p := range parts {
		if !seen[p.it.tok.Index] {
			seen[p.it.tok.Index] = true
			out = append(out, p.it.tok.Index)
		}
	}
	return out
}
