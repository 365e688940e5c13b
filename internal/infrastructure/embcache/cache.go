// Package embcache memoizes embeddings in Valkey/Redis. Keys are derived from
// the embedding model and a hash of the exact input text, so a model change
// never returns stale vectors.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

const keyPrefix = "medlit:emb:"

// Observer receives per-call hit and miss counts.
type Observer interface {
	ObserveEmbeddingCache(hits, misses int)
}

type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// NewClient connects to Valkey/Redis with client-side caching disabled.
func NewClient(cfg Config) (rueidis.Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// CachedEmbedder wraps an Embedder. Cache failures never fail a call: the
// lookup degrades to a miss and the write is skipped.
type CachedEmbedder struct {
	client   rueidis.Client
	next     ports.Embedder
	model    string
	ttl      time.Duration
	observer Observer
}

var _ ports.Embedder = (*CachedEmbedder)(nil)

func New(client rueidis.Client, next ports.Embedder, model string, ttl time.Duration, observer Observer) *CachedEmbedder {
	return &CachedEmbedder{
		client:   client,
		next:     next,
		model:    model,
		ttl:      ttl,
		observer: observer,
	}
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out := c.lookup(ctx, keys)
	missIdx := make([]int, 0, len(texts))
	for i := range out {
		if out[i] == nil {
			missIdx = append(missIdx, i)
		}
	}
	if c.observer != nil {
		c.observer.ObserveEmbeddingCache(len(texts)-len(missIdx), len(missIdx))
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missIdx) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missIdx))
	}

	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = fresh[j]
		missKeys[j] = keys[i]
	}
	c.store(ctx, missKeys, fresh)
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = c.client.B().Get().Key(key).Build()
	}

	logger := logging.FromContext(ctx)
	for i, res := range c.client.DoMulti(ctx, cmds...) {
		data, err := res.AsBytes()
		if err != nil {
			if !rueidis.IsRedisNil(err) {
				logger.Warn("embedding_cache_get_failed", zap.String("key", keys[i]), zap.Error(err))
			}
			continue
		}
		vec, err := decodeVector(data)
		if err != nil {
			logger.Warn("embedding_cache_corrupt", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[i] = vec
	}
	return out
}

func (c *CachedEmbedder) store(ctx context.Context, keys []string, vectors [][]float32) {
	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		value := rueidis.BinaryString(encodeVector(vectors[i]))
		if c.ttl > 0 {
			cmds[i] = c.client.B().Set().Key(key).Value(value).Ex(c.ttl).Build()
		} else {
			cmds[i] = c.client.B().Set().Key(key).Value(value).Build()
		}
	}
	for i, res := range c.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			logging.FromContext(ctx).Warn("embedding_cache_set_failed", zap.String("key", keys[i]), zap.Error(err))
		}
	}
}

// Vectors are stored as little-endian float32 values.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload of %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
