package textnorm

import (
	"fmt"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/aaaton/golem/v4/dicts/fr"
)

// Lemmatizer maps a word to its dictionary form.
type Lemmatizer interface {
	Lemma(word string) string
}

// GolemLemmatizer looks words up in the English dictionary first, then French.
// Unknown words are returned lowercased.
type GolemLemmatizer struct {
	english *golem.Lemmatizer
	french  *golem.Lemmatizer
}

func NewGolemLemmatizer() (*GolemLemmatizer, error) {
	english, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english dictionary: %w", err)
	}
	french, err := golem.New(fr.New())
	if err != nil {
		return nil, fmt.Errorf("load french dictionary: %w", err)
	}
	return &GolemLemmatizer{english: english, french: french}, nil
}

func (l *GolemLemmatizer) Lemma(word string) string {
	lower := strings.ToLower(word)
	if l.english.InDict(lower) {
		return strings.ToLower(l.english.Lemma(lower))
	}
	if l.french.InDict(lower) {
		return strings.ToLower(l.french.Lemma(lower))
	}
	return lower
}
