package toolname

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// fallbackName is shown for a tool reference with no usable characters.
const fallbackName = "Tool"

// FormatName turns a raw tool reference into a display name: "-" and "_"
// separate words and each word is capitalized, so "reverse-text" becomes
// "Reverse Text".
func FormatName(ref string) string {
	words := strings.FieldsFunc(ref, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return fallbackName
	}

	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + word[size:]
	}
	return strings.Join(words, " ")
}

// clip keeps the first line of s and shortens it to at most width display
// columns, cutting on grapheme boundaries.
func clip(s string, width int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	s = strings.TrimSpace(s)
	if uniseg.StringWidth(s) <= width {
		return s
	}

	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		if used+g.Width() > width-1 {
			break
		}
		b.WriteString(g.Str())
		used += g.Width()
	}
	return strings.TrimSpace(b.String()) + "…"
}
