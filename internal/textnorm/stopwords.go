package textnorm

import (
	"bufio"
	"embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

//go:embed stopwords/*.txt
var stopwordFiles embed.FS

// StopwordSet is a case-folded word set.
type StopwordSet map[string]struct{}

// LoadStopwords reads the embedded lists for the given languages ("en", "fr").
func LoadStopwords(languages ...string) (StopwordSet, error) {
	set := make(StopwordSet)
	fold := cases.Fold()
	for _, lang := range languages {
		data, err := stopwordFiles.ReadFile("stopwords/" + lang + ".txt")
		if err != nil {
			return nil, fmt.Errorf("read %s stopwords: %w", lang, err)
		}
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			set[fold.String(word)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan %s stopwords: %w", lang, err)
		}
	}
	return set, nil
}

// Contains reports membership of an already folded word.
func (s StopwordSet) Contains(folded string) bool {
	_, ok := s[folded]
	return ok
}
