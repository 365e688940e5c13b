package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/medlit-rag/internal/infrastructure/resilience"
)

// call runs one JSON request through the executor when one is configured.
func (ix *Index) call(ctx context.Context, method, path string, payload, out any, operation string) error {
	if ix.executor == nil {
		return ix.doJSON(ctx, method, path, payload, out, operation)
	}
	err := ix.executor.Execute(ctx, "qdrant."+operation, func(callCtx context.Context) error {
		return ix.doJSON(callCtx, method, path, payload, out, operation)
	}, classifyQdrantError)
	return resilience.Temporary("qdrant "+operation, err, classifyQdrantError)
}

func (ix *Index) doJSON(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, ix.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ix.apiKey != "" {
		req.Header.Set("api-key", ix.apiKey)
	}

	resp, err := ix.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.ReadStatusError("qdrant", operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// classifyQdrantError treats a 500 as a recorded, non-retryable failure:
// Qdrant answers 500 for malformed filters and vector size mismatches.
func classifyQdrantError(err error) resilience.ErrorClassification {
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusInternalServerError {
		return resilience.ErrorClassification{RecordFailure: true}
	}
	return resilience.ClassifyHTTP(err)
}
