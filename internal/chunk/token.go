// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenLen approximates the model token cost of s. Text containing any CJK
// rune is measured in runes, since each ideograph is roughly one token;
// anything else is measured in whitespace-separated words.
func TokenLen(s string) int {
	if containsCJK(s) {
		return utf8.RuneCountInString(s)
	}
	return len(strings.Fields(s))
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}
