package template

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fold applies Unicode case folding so that "GÜLTIG", "Gültig" and
// "gültig" compare equal. A fresh Caser is used per call: Casers are not
// safe for concurrent use.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// FoldLabel folds s and strips the punctuation OCR engines commonly attach
// to printed labels ("DOB:", "Sex.", "(EXP)").
func FoldLabel(s string) string {
	s = Fold(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '#' && r != '/'
	})
}
