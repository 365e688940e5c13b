// Package pgvector keeps documents in Postgres: an HNSW cosine index over the
// embedding column and one tsvector per text field for lexical matching.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

const schemaLockID int64 = 2026101902

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Index struct {
	db         *sql.DB
	table      string
	dimensions int
}

func New(db *sql.DB, table string, dimensions int) *Index {
	if table == "" {
		table = "documents"
	}
	return &Index{db: db, table: table, dimensions: dimensions}
}

func (ix *Index) EnsureIndex(ctx context.Context) error {
	if ix.dimensions <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ensure pgvector index", errors.New("embedding dimensions must be positive"))
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	// Text is normalized before it gets here, so the 'simple' configuration
	// avoids stemming it a second time.
	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	abstract TEXT NOT NULL,
	embedding vector(%[2]d) NOT NULL,
	title_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', title)) STORED,
	abstract_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', abstract)) STORED
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding ON %[1]s USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_%[1]s_title_tsv ON %[1]s USING gin (title_tsv);
CREATE INDEX IF NOT EXISTS idx_%[1]s_abstract_tsv ON %[1]s USING gin (abstract_tsv);
`, ix.table, ix.dimensions)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert writes complete rows; existing rows are replaced wholesale.
func (ix *Index) Upsert(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	insert := psql.Insert(ix.table).Columns("id", "title", "abstract", "embedding")
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("pgvector upsert: document %s has no embedding", doc.ID)
		}
		insert = insert.Values(doc.ID, doc.Title, doc.Abstract, pgvector.NewVector(doc.Embedding))
	}
	query, args, err := insert.
		Suffix("ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, abstract = EXCLUDED.abstract, embedding = EXCLUDED.embedding").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert documents: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	return nil
}

// VectorSearch ranks by cosine similarity. candidatePool sets hnsw.ef_search for
// the transaction only.
func (ix *Index) VectorSearch(ctx context.Context, embedding []float32, k, candidatePool int) ([]domain.RankedHit, error) {
	if k <= 0 || len(embedding) == 0 {
		return []domain.RankedHit{}, nil
	}
	if candidatePool < k {
		candidatePool = k
	}

	tx, err := ix.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin vector search tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", candidatePool)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	vec := pgvector.NewVector(embedding)
	query, args, err := psql.
		Select("id").
		Column(sq.Expr("1 - (embedding <=> ?) AS score", vec)).
		From(ix.table).
		OrderByClause("embedding <=> ?, id", vec).
		Limit(uint64(k)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build vector search: %w", err)
	}

	hits, err := queryHits(ctx, tx, query, args)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vector search tx: %w", err)
	}
	return hits, nil
}

// LexicalSearch scores each field with ts_rank and keeps the best weighted
// field score per document.
func (ix *Index) LexicalSearch(ctx context.Context, text string, weights domain.FieldWeights, topN int) ([]domain.RankedHit, error) {
	tsQuery := BuildTSQuery(text)
	if topN <= 0 || tsQuery == "" || (weights.Title <= 0 && weights.Abstract <= 0) {
		return []domain.RankedHit{}, nil
	}

	const tsq = "to_tsquery('simple', ?)"
	query, args, err := psql.
		Select("id").
		Column(sq.Expr(
			"GREATEST(ts_rank(title_tsv, "+tsq+") * ?, ts_rank(abstract_tsv, "+tsq+") * ?) AS score",
			tsQuery, nonNegative(weights.Title), tsQuery, nonNegative(weights.Abstract),
		)).
		From(ix.table).
		Where(matchFields(weights, tsq, tsQuery)).
		OrderBy("score DESC", "id").
		Limit(uint64(topN)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lexical search: %w", err)
	}

	hits, err := queryHits(ctx, ix.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return hits, nil
}

// matchFields only matches fields that carry a positive weight.
func matchFields(weights domain.FieldWeights, tsq, tsQuery string) sq.Or {
	or := sq.Or{}
	if weights.Title > 0 {
		or = append(or, sq.Expr("title_tsv @@ "+tsq, tsQuery))
	}
	if weights.Abstract > 0 {
		or = append(or, sq.Expr("abstract_tsv @@ "+tsq, tsQuery))
	}
	return or
}

// BuildTSQuery turns free text into an OR query of its word tokens. Only letters
// and digits survive, so the result is always valid tsquery syntax.
func BuildTSQuery(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return strings.Join(terms, " | ")
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryHits(ctx context.Context, q queryer, query string, args []any) ([]domain.RankedHit, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]domain.RankedHit, 0, 16)
	for rows.Next() {
		var hit domain.RankedHit
		if err := rows.Scan(&hit.DocumentID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
