package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/core/ports"
	"github.com/kirillkom/medlit-rag/internal/observability/metrics"
)

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
	Service        string
	Metrics        *metrics.HTTPServerMetrics
	Logger         *zap.Logger
}

type Router struct {
	query    ports.MonitoredQueryService
	articles ports.ArticleReader
	indexer  ports.ArticleIndexer
	opts     Options
}

func NewRouter(
	query ports.MonitoredQueryService,
	articles ports.ArticleReader,
	indexer ports.ArticleIndexer,
	opts Options,
) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 100 * time.Millisecond
	}
	return &Router{
		query:    query,
		articles: articles,
		indexer:  indexer,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(rt.opts.Logger))
	r.Use(recoverMiddleware)
	r.Use(accessLogMiddleware)
	if rt.opts.Metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.opts.Metrics.Middleware(rt.opts.Service, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.opts.Metrics.Handler())
	}

	rateLimit := rateLimitMiddleware(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	backpressure := backpressureMiddleware(rt.opts.MaxInFlight, rt.opts.QueueTimeout)

	r.Get("/healthz", rt.healthz)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit, backpressure)
		r.Post("/v1/rag/query", rt.queryRAG)
		r.Get("/v1/articles/{articleID}", rt.getArticleByID)
		r.Post("/v1/articles/{articleID}/reindex", rt.reindexArticle)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question       string   `json:"question"`
	SearchType     string   `json:"search_type"`
	ResultCount    int      `json:"result_count"`
	TitleWeight    *float64 `json:"title_weight"`
	AbstractWeight *float64 `json:"abstract_weight"`
	RRFK           int      `json:"rrf_k"`
	Model          string   `json:"model"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	searchType, err := domain.ParseSearchType(req.SearchType)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ResultCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "result_count must not be negative"})
		return
	}

	opts := domain.QueryOptions{
		SearchType:  searchType,
		ResultCount: req.ResultCount,
		RRFK:        req.RRFK,
		Model:       strings.TrimSpace(req.Model),
	}
	// Weights are only overridden together; one missing weight keeps its default of 1.
	if req.TitleWeight != nil || req.AbstractWeight != nil {
		opts.Weights = domain.FieldWeights{Title: 1, Abstract: 1}
		if req.TitleWeight != nil {
			opts.Weights.Title = *req.TitleWeight
		}
		if req.AbstractWeight != nil {
			opts.Weights.Abstract = *req.AbstractWeight
		}
	}

	writeJSON(w, http.StatusOK, rt.query.Ask(r.Context(), req.Question, opts))
}

func (rt *Router) getArticleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "articleID"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "article id is required"})
		return
	}

	article, err := rt.articles.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (rt *Router) reindexArticle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "articleID"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "article id is required"})
		return
	}

	if err := rt.indexer.IndexByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed", "id": id})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
