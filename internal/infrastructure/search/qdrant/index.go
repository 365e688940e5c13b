// Package qdrant stores documents as Qdrant points with one dense vector and one
// sparse vector per text field.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/resilience"
)

const (
	denseVectorName    = "dense"
	titleVectorName    = "title"
	abstractVectorName = "abstract"
)

// pointNamespace derives stable point ids from PubMed ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://pubmed.ncbi.nlm.nih.gov/"))

type Config struct {
	BaseURL    string
	APIKey     string
	Collection string
	// VectorSize of 0 defers collection creation to the first upsert.
	VectorSize int
	Timeout    time.Duration
}

type Index struct {
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(cfg Config, executor *resilience.Executor) *Index {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Index{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// PointID maps a document id to its Qdrant point id.
func PointID(documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID)).String()
}

func (ix *Index) EnsureIndex(ctx context.Context) error {
	if ix.vectorSize <= 0 {
		return nil
	}
	return ix.ensureCollection(ctx, ix.vectorSize)
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert replaces whole points; there are no partial payload updates.
func (ix *Index) Upsert(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	size := len(docs[0].Embedding)
	if size == 0 {
		return fmt.Errorf("qdrant upsert: document %s has no embedding", docs[0].ID)
	}
	if err := ix.ensureCollection(ctx, size); err != nil {
		return err
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != size {
			return fmt.Errorf("qdrant upsert: document %s embedding size %d, want %d", doc.ID, len(doc.Embedding), size)
		}
		points = append(points, point{
			ID: PointID(doc.ID),
			Vector: map[string]any{
				denseVectorName:    doc.Embedding,
				titleVectorName:    documentVector(doc.Title),
				abstractVectorName: documentVector(doc.Abstract),
			},
			Payload: map[string]any{
				"pmid":     doc.ID,
				"title":    doc.Title,
				"abstract": doc.Abstract,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", ix.collection)
	return ix.call(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type queryResponse struct {
	Result struct {
		Points []scoredPoint `json:"points"`
	} `json:"result"`
}

type batchQueryResponse struct {
	Result []struct {
		Points []scoredPoint `json:"points"`
	} `json:"result"`
}

func (ix *Index) VectorSearch(ctx context.Context, embedding []float32, k, candidatePool int) ([]domain.RankedHit, error) {
	if k <= 0 || len(embedding) == 0 {
		return []domain.RankedHit{}, nil
	}
	if candidatePool < k {
		candidatePool = k
	}
	reqBody := map[string]any{
		"query":        embedding,
		"using":        denseVectorName,
		"limit":        k,
		"with_payload": []string{"pmid"},
		"params": map[string]any{
			"hnsw_ef": candidatePool,
		},
	}

	var resp queryResponse
	path := fmt.Sprintf("/collections/%s/points/query", ix.collection)
	if err := ix.call(ctx, http.MethodPost, path, reqBody, &resp, "vector_search"); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		id := getStringPayload(p.Payload, "pmid")
		if id == "" {
			continue
		}
		if _, dup := scores[id]; !dup {
			scores[id] = p.Score
		}
	}
	return rankByScore(scores, k), nil
}

// LexicalSearch scores each field separately and keeps, per document, the best
// weighted field score. A field with a non-positive weight is not queried.
func (ix *Index) LexicalSearch(ctx context.Context, text string, weights domain.FieldWeights, topN int) ([]domain.RankedHit, error) {
	query := queryVector(text)
	if topN <= 0 || len(query.Indices) == 0 {
		return []domain.RankedHit{}, nil
	}

	type fieldQuery struct {
		name   string
		weight float64
	}
	fields := make([]fieldQuery, 0, 2)
	if weights.Title > 0 {
		fields = append(fields, fieldQuery{titleVectorName, weights.Title})
	}
	if weights.Abstract > 0 {
		fields = append(fields, fieldQuery{abstractVectorName, weights.Abstract})
	}
	if len(fields) == 0 {
		return []domain.RankedHit{}, nil
	}

	searches := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		searches = append(searches, map[string]any{
			"query":        query,
			"using":        f.name,
			"limit":        topN,
			"with_payload": []string{"pmid"},
		})
	}

	var resp batchQueryResponse
	path := fmt.Sprintf("/collections/%s/points/query/batch", ix.collection)
	if err := ix.call(ctx, http.MethodPost, path, map[string]any{"searches": searches}, &resp, "lexical_search"); err != nil {
		return nil, err
	}
	if len(resp.Result) != len(fields) {
		return nil, fmt.Errorf("qdrant lexical search: expected %d result sets, got %d", len(fields), len(resp.Result))
	}

	best := make(map[string]float64)
	for i, result := range resp.Result {
		for _, p := range result.Points {
			id := getStringPayload(p.Payload, "pmid")
			if id == "" {
				continue
			}
			score := p.Score * fields[i].weight
			if current, ok := best[id]; !ok || score > current {
				best[id] = score
			}
		}
	}
	return rankByScore(best, topN), nil
}

// rankByScore orders documents best-first with ties by id and assigns 1-based ranks.
func rankByScore(scores map[string]float64, limit int) []domain.RankedHit {
	hits := make([]domain.RankedHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, domain.RankedHit{DocumentID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}

func (ix *Index) ensureCollection(ctx context.Context, vectorSize int) error {
	ix.ensureMu.Lock()
	if ix.ensuredCollection && ix.ensuredVectorSize == vectorSize {
		ix.ensureMu.Unlock()
		return nil
	}
	ix.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			titleVectorName:    map[string]any{"modifier": "idf"},
			abstractVectorName: map[string]any{"modifier": "idf"},
		},
	}

	path := fmt.Sprintf("/collections/%s", ix.collection)
	err := ix.doJSON(ctx, http.MethodPut, path, reqBody, nil, "ensure_collection")
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		// 409 when the collection already exists (depends on version/config).
		err = nil
	}
	if err != nil {
		return err
	}
	ix.markCollectionEnsured(vectorSize)
	return nil
}

func (ix *Index) markCollectionEnsured(vectorSize int) {
	ix.ensureMu.Lock()
	defer ix.ensureMu.Unlock()
	ix.ensuredCollection = true
	ix.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
