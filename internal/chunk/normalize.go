// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKC to OCR text. It folds ligatures ("ﬁ" → "fi"),
// full-width letters and digits, and compatibility spaces, which OCR output
// is full of. Heading markers are ASCII and unaffected.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}
