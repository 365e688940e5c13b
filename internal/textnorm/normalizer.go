// Package textnorm prepares query and document text for embedding and lexical matching.
package textnorm

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

// Normalizer tokenizes, drops punctuation and stopwords, and lemmatizes.
// A nil lemmatizer means the language resources could not be loaded; the
// normalizer then only collapses whitespace.
type Normalizer struct {
	stopwords  StopwordSet
	lemmatizer Lemmatizer
	logger     *zap.Logger
}

func New(stopwords StopwordSet, lemmatizer Lemmatizer, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		stopwords:  stopwords,
		lemmatizer: lemmatizer,
		logger:     logger,
	}
}

// NewDefault loads the English and French resources. A lemmatizer load failure is
// logged and leaves the normalizer in whitespace fallback mode.
func NewDefault(logger *zap.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stopwords, err := LoadStopwords("en", "fr")
	if err != nil {
		return nil, err
	}

	var lemmatizer Lemmatizer
	loaded, err := NewGolemLemmatizer()
	if err != nil {
		logger.Warn("lemmatizer_unavailable", zap.Error(err))
	} else {
		lemmatizer = loaded
	}
	return New(stopwords, lemmatizer, logger), nil
}

// Normalize never fails. Non-empty input never yields an empty string.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out, err := n.normalize(text)
	if err != nil {
		n.logger.Warn("normalization_fallback", zap.Error(err))
		out = whitespaceFallback(text)
	}
	if out == "" {
		return text
	}
	return out
}

func (n *Normalizer) normalize(text string) (out string, err error) {
	if n.lemmatizer == nil {
		return "", domain.WrapError(domain.ErrNormalization, "normalize", errors.New("lemmatizer not loaded"))
	}
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrNormalization, "lemmatize", fmt.Errorf("panic: %v", r))
		}
	}()

	tokens := tokenize(text)
	kept := n.filter(tokens)

	lemmas := make([]string, 0, len(kept))
	for _, tok := range kept {
		lemma := n.lemmatizer.Lemma(tok.text)
		if lemma == "" {
			lemma = strings.ToLower(tok.text)
		}
		lemmas = append(lemmas, lemma)
	}
	return strings.Join(lemmas, " "), nil
}

// filter drops punctuation and stopwords. If nothing survives, the original
// tokens are kept so a query made only of stopwords still says something.
func (n *Normalizer) filter(tokens []token) []token {
	fold := cases.Fold()
	kept := make([]token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.kind == tokenPunct {
			continue
		}
		if n.stopwords.Contains(fold.String(tok.text)) {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return tokens
	}
	return kept
}

func whitespaceFallback(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
