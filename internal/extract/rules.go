package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/layout"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// candidate is one possible value of a field.
type candidate struct {
	parts []part
	raw   string
	conf  float64
}

// labelHit is one occurrence of a label phrase. inline is set for
// "LABEL:VALUE" tokens and holds the value range.
type labelHit struct {
	line       int
	start, end int
	box        utils.Box
	inline     *part
}

// findLabels locates the rule's label phrases. Phrase tokens are marked as
// labels so no rule takes them as values.
func findLabels(p *page, r *template.Rule) []labelHit {
	var hits []labelHit
	for li, row := range p.lines {
		line := layout.Line{Tokens: make([]document.TextToken, len(row))}
		for i, it := range row {
			line.Tokens[i] = it.tok
		}
		for _, phrase := range r.LabelPhrases() {
			for _, start := range layout.FindPhrase(line, phrase) {
				end := start + len(phrase)
				box := row[start].box
				for _, it := range row[start:end] {
					it.label = true
					box = unionBox(box, it.box)
				}
				hits = append(hits, labelHit{line: li, start: start, end: end, box: box})
			}
			if len(phrase) != 1 {
				continue
			}
			for pi, it := range row {
				if value, ok := inlineValue(it, phrase[0]); ok {
					hits = append(hits, labelHit{line: li, start: pi, end: pi + 1, box: it.box, inline: &value})
				}
			}
		}
	}
	return hits
}

// inlineValue splits "DOB:03/15/1985" into label and value.
func inlineValue(it *item, label string) (part, bool) {
	text := it.tok.Text
	i := strings.IndexByte(text, ':')
	if i <= 0 || i == len(text)-1 {
		return part{}, false
	}
	if template.FoldLabel(text[:i]) != label {
		return part{}, false
	}
	start := i + 1
	for start < len(text) && text[start] == ' ' {
		start++
	}
	if start == len(text) {
		return part{}, false
	}
	return part{it: it, span: span{start, len(text)}}, true
}

type scored struct {
	candidate
	dist float64
}

func (e *Extractor) labelCandidates(p *page, r *template.Rule, hits []labelHit) []candidate {
	limit := r.MaxDistance * p.width
	if limit <= 0 {
		limit = math.Inf(1)
	}
	var out []scored
	add := func(items []*item, dist float64) {
		c, ok := e.labelValue(items, r, dist, limit)
		if ok {
			out = append(out, scored{candidate: c, dist: dist})
		}
	}

	for _, h := range hits {
		if h.inline != nil {
			c := candidate{parts: []part{*h.inline}, raw: h.inline.it.tok.Text[h.inline.start:h.inline.end], conf: r.Confidence}
			if c, ok := applyPattern(c, r.Regexp(), r.Group); ok {
				out = append(out, scored{candidate: c})
			}
			continue
		}
		row := p.lines[h.line]
		if r.Direction != template.DirectionBelow {
			for pos := h.end; pos < len(row); pos++ {
				it := row[pos]
				if it.label {
					break
				}
				dist := math.Max(0, it.box.MinX-h.box.MaxX)
				if dist > limit {
					break
				}
				add(e.valueRun(row, pos, r.Multiword), dist)
			}
		}
		if r.Direction != template.DirectionRight {
			penalty := 1.0
			if r.Direction == template.DirectionAny {
				penalty = e.cfg.BelowPenalty
			}
		below:
			for li := h.line + 1; li < len(p.lines); li++ {
				for pos, it := range p.lines[li] {
					if it.box.HorizontalOverlap(h.box) <= 0 {
						continue
					}
					if it.label {
						break below
					}
					dist := math.Max(0, it.box.MinY-h.box.MaxY) * penalty
					if dist > limit {
						break below
					}
					add(e.valueRun(p.lines[li], pos, r.Multiword), dist)
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	cands := make([]candidate, len(out))
	for i, s := range out {
		cands[i] = s.candidate
	}
	return cands
}

// valueRun returns the item at pos, extended along the line for multiword
// values until a label or a wide gap.
func (e *Extractor) valueRun(row []*item, pos int, multiword bool) []*item {
	run := []*item{row[pos]}
	if !multiword {
		return run
	}
	for next := pos + 1; next < len(row); next++ {
		if row[next].label || wideGap(row[next-1], row[next], e.cfg.GapFactor) {
			break
		}
		run = append(run, row[next])
	}
	return run
}

func (e *Extractor) labelValue(items []*item, r *template.Rule, dist, limit float64) (candidate, bool) {
	conf := r.Confidence
	if !math.IsInf(limit, 1) {
		conf *= 1 - e.cfg.DistanceDecay*dist/limit
	}
	j := join(items)
	c := candidate{parts: j.parts(0, len(j.text)), raw: j.text, conf: conf}
	if got, ok := applyPattern(c, r.Regexp(), r.Group); ok || len(items) == 1 {
		return got, ok
	}
	// A multiword run that fails the value pattern may still start with a
	// matching token.
	return e.labelValue(items[:1], r, dist, limit)
}

// applyPattern restricts c to the pattern match (or group) inside c.raw.
func applyPattern(c candidate, re *regexp.Regexp, group int) (candidate, bool) {
	if re == nil {
		return c, true
	}
	loc := re.FindStringSubmatchIndex(c.raw)
	if loc == nil || loc[2*group] < 0 || loc[2*group] == loc[2*group+1] {
		return candidate{}, false
	}
	s, e := loc[2*group], loc[2*group+1]
	// Map the match back onto the candidate's parts.
	var parts []part
	pos := 0
	for i, pt := range c.parts {
		if i > 0 {
			pos++ // separator
		}
		n := pt.end - pt.start
		ps, pe := max(s, pos)-pos, min(e, pos+n)-pos
		if ps < pe {
			parts = append(parts, part{it: pt.it, span: span{pt.start + ps, pt.start + pe}})
		}
		pos += n
	}
	return candidate{parts: parts, raw: c.raw[s:e], conf: c.conf}, true
}

func (e *Extractor) patternCandidates(p *page, r *template.Rule) []candidate {
	region := regionBox(p, r.Region)
	eligible := func(it *item) bool {
		return !it.label && (region == nil || region.Contains(it.box.Center()))
	}

	var out []candidate
	seen := make(map[string]bool)
	for _, row := range p.lines {
		for _, seg := range segments(row, eligible, e.cfg.GapFactor) {
			texts := [][]*item{seg}
			if len(seg) > 1 {
				for _, it := range seg {
					texts = append(texts, []*item{it})
				}
			}
			for _, items := range texts {
				for _, c := range matches(join(items), r.Regexp(), r.Group, r.Confidence) {
					if k := key(c.parts); !seen[k] {
						seen[k] = true
						out = append(out, c)
					}
				}
			}
		}
	}
	if r.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (e *Extractor) positionalCandidates(p *page, r *template.Rule) []candidate {
	region := regionBox(p, r.Region)
	if region == nil {
		return nil
	}
	var items []*item
	for _, it := range p.items() {
		if !it.label && region.Contains(it.box.Center()) {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil
	}
	j := join(items)
	if r.Regexp() == nil {
		return []candidate{{parts: j.parts(0, len(j.text)), raw: j.text, conf: r.Confidence}}
	}
	out := matches(j, r.Regexp(), r.Group, r.Confidence)
	if r.Reverse {
		for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
			out[i], out[k] = out[k], out[i]
		}
	}
	return out
}

// matches returns every non-empty match (or group) of re in j.
func matches(j joined, re *regexp.Regexp, group int, conf float64) []candidate {
	var out []candidate
	for _, loc := range re.FindAllStringSubmatchIndex(j.text, -1) {
		s, e := loc[2*group], loc[2*group+1]
		if s < 0 || s == e {
			continue
		}
		out = append(out, candidate{parts: j.parts(s, e), raw: j.text[s:e], conf: conf})
	}
	return out
}

func regionBox(p *page, r *template.Region) *utils.Box {
	if r == nil || p.width <= 0 || p.height <= 0 {
		return nil
	}
	b := r.Box(p.width, p.height)
	return &b
}

func key(parts []part) string {
	var b strings.Builder
	for _, pt := range parts {
		fmt.Fprintf(&b, "%d.%d:%d-%d;", pt.it.line, pt.it.pos, pt.start, pt.end)
	}
	return b.String()
}

func unionBox(a, b utils.Box) utils.Box {
	return utils.Box{MinX: min(a.MinX, b.MinX), MinY: min(a.MinY, b.MinY), MaxX: max(a.MaxX, b.MaxX), MaxY: max(a.MaxY, b.MaxY)}
}
