package textnorm

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenPunct
)

type token struct {
	text string
	kind tokenKind
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// tokenize splits text into maximal runs of word runes and maximal runs of other
// non-space runes. Whitespace only separates tokens.
func tokenize(text string) []token {
	var (
		tokens []token
		b      strings.Builder
		kind   tokenKind
	)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, token{text: b.String(), kind: kind})
			b.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isWordRune(r):
			if b.Len() > 0 && kind != tokenWord {
				flush()
			}
			kind = tokenWord
			b.WriteRune(r)
		default:
			if b.Len() > 0 && kind != tokenPunct {
				flush()
			}
			kind = tokenPunct
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}
