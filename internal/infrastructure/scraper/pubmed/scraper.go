// Package pubmed scrapes PubMed search result pages and article pages.
package pubmed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

const DefaultBaseURL = "https://pubmed.ncbi.nlm.nih.gov"

type Config struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	Concurrency       int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Scraper fetches articles for a search term. Article pages are fetched
// concurrently but all requests share one rate limiter.
type Scraper struct {
	baseURL     string
	userAgent   string
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	logger      *zap.Logger
}

var _ ports.ArticleSource = (*Scraper)(nil)

func New(cfg Config) *Scraper {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "medlit-rag/1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		baseURL:     baseURL,
		userAgent:   userAgent,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Fetch returns up to maxArticles articles for term in search result order.
// Article pages that fail to load or parse are skipped.
func (s *Scraper) Fetch(ctx context.Context, term string, maxArticles int) ([]domain.Article, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pubmed fetch", errors.New("search term is required"))
	}
	if maxArticles <= 0 {
		return []domain.Article{}, nil
	}

	ids, err := s.searchIDs(ctx, term, maxArticles)
	if err != nil {
		return nil, err
	}

	fetched := make([]*domain.Article, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			article, err := s.fetchArticle(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("pubmed_article_failed", zap.String("pmid", id), zap.Error(err))
				return nil
			}
			fetched[i] = article
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch pubmed articles: %w", err)
	}

	out := make([]domain.Article, 0, len(fetched))
	for _, a := range fetched {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Scraper) searchIDs(ctx context.Context, term string, maxArticles int) ([]string, error) {
	seen := make(map[string]struct{}, maxArticles)
	ids := make([]string, 0, maxArticles)
	for page := 1; len(ids) < maxArticles; page++ {
		doc, err := s.fetchDocument(ctx, s.searchURL(term, page))
		if err != nil {
			return nil, fmt.Errorf("search page %d: %w", page, err)
		}
		pageIDs := parseSearchPage(doc)
		added := 0
		for _, id := range pageIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			added++
			if len(ids) == maxArticles {
				break
			}
		}
		// PubMed repeats the last page for out-of-range page numbers.
		if added == 0 {
			break
		}
	}
	return ids, nil
}

func (s *Scraper) searchURL(term string, page int) string {
	q := url.Values{}
	q.Set("term", term)
	q.Set("page", strconv.Itoa(page))
	return s.baseURL + "/?" + q.Encode()
}

func (s *Scraper) articleURL(id string) string {
	return s.baseURL + "/" + url.PathEscape(id) + "/"
}

func (s *Scraper) fetchArticle(ctx context.Context, id string) (*domain.Article, error) {
	pageURL := s.articleURL(id)
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	article, err := parseArticlePage(doc)
	if err != nil {
		return nil, err
	}
	if article.ID == "" {
		article.ID = id
	}
	article.URL = pageURL
	return article, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}
