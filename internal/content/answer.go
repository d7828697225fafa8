package content

import (
	"errors"
	"strings"
)

// ErrAmbiguousCorrectAnswer marks an MCQ row whose correct-answer field
// cannot be resolved to an option index. The row is dropped, never the file.
var ErrAmbiguousCorrectAnswer = errors.New("content: ambiguous correct answer")

// ResolveCorrectIndex maps a raw correct-answer field to an option index.
// Resolution order, in full:
//  1. normalize: trim, uppercase, strip an "Option_" prefix
//  2. a single letter A-D maps directly
//  3. full-text case-insensitive comparison against each option, first
//     exact match wins
//  4. the first character of the normalized field, if it is A-D
//
// Anything still unresolved is rejected with ErrAmbiguousCorrectAnswer.
// The returned index is always in [0,3].
func ResolveCorrectIndex(raw string, options [4]string) (int, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.TrimPrefix(norm, "OPTION_")

	if len(norm) == 1 {
		if idx := letterIndex(norm[0]); idx >= 0 {
			return idx, nil
		}
	}

	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(raw)) {
			return i, nil
		}
	}

	if len(norm) > 0 {
		if idx := letterIndex(norm[0]); idx >= 0 {
			return idx, nil
		}
	}

	return 0, ErrAmbiguousCorrectAnswer
}

func letterIndex(c byte) int {
	if c >= 'A' && c <= 'D' {
		return int(c - 'A')
	}
	return -1
}
