package service

import (
	"context"
	"sync"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

// BatchItem is one input to createBatchEmbeddings.
type BatchItem struct {
	URI  string
	Text string
}

// BatchItemResult is one item's outcome, in input order.
type BatchItemResult struct {
	URI    string
	Status string // "success" or "error"
	ID     int64
	Error  string
}

// BatchResult is createBatchEmbeddings' aggregated response.
type BatchResult struct {
	Results    []BatchItemResult
	Total      int
	Successful int
	Failed     int
}

// CreateBatchEmbeddings implements spec.md §4.4's createBatchEmbeddings:
// each item is embedded and persisted inside an isolated failure scope —
// a provider or repository error on one item becomes a per-item error
// record rather than aborting the batch. Items run with bounded
// concurrency (s.concurrency, spec.md §5); the result slice is indexed by
// input position so output order never depends on completion order
// (mirrors the teacher's semaphore-plus-indexed-results pattern in
// pkg/embedding/pipeline.go).
func (s *Service) CreateBatchEmbeddings(ctx context.Context, items []BatchItem, modelName string) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, eeserrors.NewValidationError("texts", "batch must not be empty")
	}

	results := make([]BatchItemResult, len(items))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it BatchItem) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			res, err := s.CreateEmbedding(ctx, it.URI, it.Text, modelName)
			if err != nil {
				results[idx] = BatchItemResult{URI: it.URI, Status: "error", Error: err.Error()}
				return
			}
			results[idx] = BatchItemResult{URI: it.URI, Status: "success", ID: res.ID}
		}(i, item)
	}

	wg.Wait()

	out := &BatchResult{Results: results, Total: len(results)}
	for _, r := range results {
		if r.Status == "success" {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	return out, nil
}
