package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// Normalize trims the value, converts it to NFC and folds runs of whitespace into a single space.
func Normalize(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	space := false
	for _, r := range value {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Length counts user-perceived characters after NFC normalisation.
func Length(value string) int {
	return utf8.RuneCountInString(norm.NFC.String(value))
}

// PlainText strips any markup from free-form text and normalises what remains. Line breaks are kept.
func PlainText(value string) string {
	stripped := plainTextPolicy.Sanitize(value)
	stripped = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'").Replace(stripped)
	lines := strings.Split(norm.NFC.String(stripped), "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, strings.TrimRightFunc(line, unicode.IsSpace))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// OptionalPlainText applies PlainText and maps blank results to nil.
func OptionalPlainText(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := PlainText(*value)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
