package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

const DefaultBenchmarkKey = "benchmark.json"

// BenchmarkStore is an append-only JSON array of evaluation records.
type BenchmarkStore struct {
	storage *Storage
	key     string
	mu      sync.Mutex
}

var _ ports.BenchmarkStore = (*BenchmarkStore)(nil)

func NewBenchmarkStore(storage *Storage, key string) *BenchmarkStore {
	if key == "" {
		key = DefaultBenchmarkKey
	}
	return &BenchmarkStore{storage: storage, key: key}
}

// Load returns an empty set when the file does not exist yet.
func (b *BenchmarkStore) Load(ctx context.Context) ([]domain.EvaluationRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

// Append never rejects a record. A repeated query is logged and kept.
func (b *BenchmarkStore) Append(ctx context.Context, record domain.EvaluationRecord) error {
	if strings.TrimSpace(record.Query) == "" || strings.TrimSpace(record.ExpectedAbstract) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append benchmark record", errors.New("query and expected abstract are required"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.load(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Query == record.Query {
			logging.FromContext(ctx).Warn("benchmark_duplicate_query", zap.String("query", record.Query))
			break
		}
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode benchmark: %w", err)
	}
	if err := b.storage.Save(ctx, b.key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save benchmark: %w", err)
	}
	return nil
}

func (b *BenchmarkStore) load(ctx context.Context) ([]domain.EvaluationRecord, error) {
	rc, err := b.storage.Open(ctx, b.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.EvaluationRecord{}, nil
		}
		return nil, fmt.Errorf("open benchmark: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read benchmark: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.EvaluationRecord{}, nil
	}
	var records []domain.EvaluationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode benchmark: %w", err)
	}
	return records, nil
}
