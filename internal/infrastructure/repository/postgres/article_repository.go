package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

const articleSchemaLockID int64 = 2026101901

var articleColumns = []string{
	"id", "title", "abstract", "journal", "published_at", "url", "authors", "created_at", "updated_at",
}

// ArticleRepository stores scraped articles. Authors are kept as a JSONB array on
// the article row so a single query loads an article with its authors.
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/scraper startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, articleSchemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	abstract TEXT NOT NULL,
	journal TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	url TEXT NOT NULL DEFAULT '',
	authors JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert inserts the article or replaces every field except created_at.
func (r *ArticleRepository) Upsert(ctx context.Context, article *domain.Article) error {
	if article == nil || article.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert article", errors.New("article id is required"))
	}
	authors := article.Authors
	if authors == nil {
		authors = []domain.Author{}
	}
	authorsJSON, err := json.Marshal(authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}

	now := time.Now().UTC()
	createdAt := article.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := article.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query, args, err := psql.Insert("articles").
		Columns(articleColumns...).
		Values(
			article.ID, article.Title, article.Abstract, article.Journal, article.PublishedAt,
			article.URL, authorsJSON, createdAt, updatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	abstract = EXCLUDED.abstract,
	journal = EXCLUDED.journal,
	published_at = EXCLUDED.published_at,
	url = EXCLUDED.url,
	authors = EXCLUDED.authors,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert article: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (r *ArticleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	query, args, err := psql.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get article: %w", err)
	}

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrArticleNotFound, "get article", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return article, nil
}

// GetByIDs returns found articles in the order of ids; unknown ids are skipped.
func (r *ArticleRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Article, error) {
	if len(ids) == 0 {
		return []domain.Article{}, nil
	}
	query, args, err := psql.Select(articleColumns...).From("articles").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get articles: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Article, len(ids))
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		byID[article.ID] = *article
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}

	out := make([]domain.Article, 0, len(byID))
	for _, id := range ids {
		if article, ok := byID[id]; ok {
			out = append(out, article)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *ArticleRepository) ListIDs(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("id").From("articles").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list article ids: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query article ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 128)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var (
		article     domain.Article
		publishedAt sql.NullTime
		authorsRaw  []byte
	)
	err := row.Scan(
		&article.ID, &article.Title, &article.Abstract, &article.Journal, &publishedAt,
		&article.URL, &authorsRaw, &article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		article.PublishedAt = &t
	}
	if len(authorsRaw) > 0 {
		if err := json.Unmarshal(authorsRaw, &article.Authors); err != nil {
			return nil, fmt.Errorf("unmarshal authors: %w", err)
		}
	}
	return &article, nil
}
