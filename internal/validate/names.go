package validate

import (
	"errors"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

var errEmptyName = errors.New("empty name")

// splitName splits raw according to a naming convention.
func splitName(raw, convention string) (*document.PersonName, error) {
	var n document.PersonName
	switch convention {
	case template.NameMRZ:
		n = splitMRZ(raw)
	case template.NameLastCommaFirst:
		last, given, ok := strings.Cut(raw, ",")
		if !ok {
			n = splitWords(strings.Fields(raw), true)
			break
		}
		n = splitWords(strings.Fields(given), false)
		n.Last = strings.Join(strings.Fields(last), " ")
	case template.NameLastFirst:
		n = splitWords(strings.Fields(raw), true)
	default:
		words := strings.Fields(raw)
		switch len(words) {
		case 0:
		case 1:
			n.Last = words[0]
		default:
			n.First, n.Last = words[0], words[len(words)-1]
			n.Middle = strings.Join(words[1:len(words)-1], " ")
		}
	}
	n.Full = joinNonEmpty(n.First, n.Middle, n.Last)
	if n.Full == "" {
		return nil, errEmptyName
	}
	return &n, nil
}

// splitWords reads words as "FIRST MIDDLE..." or, with lastFirst, as
// "LAST FIRST MIDDLE...".
func splitWords(words []string, lastFirst bool) document.PersonName {
	var n document.PersonName
	if lastFirst && len(words) > 0 {
		n.Last = words[0]
		words = words[1:]
	}
	if len(words) > 0 {
		n.First = words[0]
		n.Middle = strings.Join(words[1:], " ")
	}
	return n
}

// splitMRZ reads "SURNAME<<GIVEN<NAMES<<<<". Filler inside a name part
// separates words.
func splitMRZ(raw string) document.PersonName {
	raw = strings.TrimRight(strings.TrimSpace(raw), "<")
	surname, given, _ := strings.Cut(raw, "<<")
	filler := func(s string) []string {
		return strings.FieldsFunc(s, func(r rune) bool { return r == '<' || r == ' ' })
	}
	n := splitWords(filler(given), false)
	n.Last = strings.Join(filler(surname), " ")
	return n
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
