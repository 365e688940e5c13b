package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// ResultStore writes one JSON artifact per run configuration. Rerunning a
// configuration overwrites its artifact.
type ResultStore struct {
	storage *Storage
	dir     string
}

var _ ports.ResultStore = (*ResultStore)(nil)

func NewResultStore(storage *Storage, dir string) *ResultStore {
	if dir == "" {
		dir = "results"
	}
	return &ResultStore{storage: storage, dir: dir}
}

// Save returns the path of the written artifact. The artifact is a JSON array
// holding the run's result.
func (r *ResultStore) Save(ctx context.Context, result domain.EvaluationResult) (string, error) {
	data, err := json.MarshalIndent([]domain.EvaluationResult{result}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode evaluation result: %w", err)
	}
	key := r.dir + "/" + ArtifactName(result.Config)
	if err := r.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("save evaluation result: %w", err)
	}
	return r.storage.Path(key), nil
}

// ArtifactName encodes every run parameter. Fields are escaped so that "_"
// only ever appears as the separator, which keeps distinct configs distinct.
func ArtifactName(cfg domain.RunConfig) string {
	parts := []string{
		escapeField(cfg.GenerationModel),
		escapeField(cfg.EvaluationModel),
		escapeField(string(cfg.SearchType)),
		"n" + strconv.Itoa(cfg.ResultCount),
		"tw" + formatFloat(cfg.TitleWeight),
		"aw" + formatFloat(cfg.AbstractWeight),
		escapeField(string(cfg.Policy)),
		"k" + strconv.Itoa(cfg.RRFK),
	}
	return strings.Join(parts, "_") + ".json"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "~%02x", c)
		}
	}
	return b.String()
}
