package tei

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/infrastructure/resilience"
)

func TestScoreRestoresInputOrder(t *testing.T) {
	var captured rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`[{"index":2,"score":4.5},{"index":0,"score":1.25},{"index":1,"score":-3}]`))
	}))
	defer server.Close()

	scores, err := New(server.URL, nil).Score(context.Background(), "autotaxin", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := []float64{1.25, -3, 4.5}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("scores = %v, want %v", scores, want)
		}
	}
	if !captured.RawScores || captured.Query != "autotaxin" || len(captured.Texts) != 3 {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestScoreMissingIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"score":1}]`))
	}))
	defer server.Close()

	if _, err := New(server.URL, nil).Score(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatalf("expected error for missing score")
	}
}

func TestScoreEmptyTextsSkipsRequest(t *testing.T) {
	scores, err := New("http://127.0.0.1:1", nil).Score(context.Background(), "q", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("expected empty scores, got %v %v", scores, err)
	}
}

func TestScoreUnavailableIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	_, err := New(server.URL, executor).Score(context.Background(), "q", []string{"a"})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
