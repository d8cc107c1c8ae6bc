package service

import (
	"context"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/providers"
	"github.com/eeslabs/embedding-core/internal/repository"
)

// SearchRequest is searchEmbeddings' input.
type SearchRequest struct {
	Query     string
	ModelName string
	Limit     int
	Threshold *float64
	Metric    string // "cosine" (default), "euclidean", "dot_product"
}

// SearchResponse echoes the effective query parameters alongside results,
// per spec.md §4.4.
type SearchResponse struct {
	Results        []*repository.SearchResult
	Query          string
	EffectiveModel string
	Metric         string
	Count          int
	Threshold      *float64
}

// SearchEmbeddings implements spec.md §4.4's searchEmbeddings: the query
// text is embedded by the same provider/model pair the corpus was
// embedded with, then forwarded to the repository's searchSimilar.
func (s *Service) SearchEmbeddings(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, eeserrors.NewValidationError("query", "must not be empty")
	}

	metric := req.Metric
	if metric == "" {
		metric = repository.MetricCosine
	}

	p := s.providers.Default()
	embedResp, err := p.GenerateEmbedding(ctx, providers.GenerateRequest{Text: req.Query, ModelName: req.ModelName, TaskType: providers.TaskTypeRetrievalQuery})
	if err != nil {
		return nil, err
	}

	results, err := s.repo.SearchSimilar(ctx, repository.SearchParams{
		QueryVector: embedResp.Vector,
		ModelName:   embedResp.ResolvedModel,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		Metric:      metric,
	})
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:        results,
		Query:          req.Query,
		EffectiveModel: embedResp.ResolvedModel,
		Metric:         metric,
		Count:          len(results),
		Threshold:      req.Threshold,
	}, nil
}
