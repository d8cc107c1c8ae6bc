// Package service implements the Application Service (SPEC_FULL.md §4.4):
// it composes the Provider Abstraction and the Embedding Repository into
// the high-level operations the external HTTP layer calls, collapsing
// provider/repository errors into the taxonomy described in
// SPEC_FULL.md §7 without hiding their kind.
package service

import (
	"context"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/providers"
	"github.com/eeslabs/embedding-core/internal/repository"
)

// ModelRegistry is the subset of the Model Registry (§4.6) the
// Application Service depends on: dimension lookups for compatibility
// checks. Concrete implementation lives in internal/registry; defined
// here to keep this package's dependency direction inward-only.
type ModelRegistry interface {
	ModelDimensions(ctx context.Context, modelName string) (dimensions int, found bool, err error)
}

// ProviderRegistry is the subset of providers.Registry the Application
// Service depends on. Defined as an interface here (rather than taking
// *providers.Registry directly) so tests can substitute a fake set of
// providers without constructing real network-backed ones.
type ProviderRegistry interface {
	Get(tag string) (providers.Provider, bool)
	Default() providers.Provider
	Tags() []string
}

// Service is the Application Service's capability set.
type Service struct {
	providers   ProviderRegistry
	repo        *repository.Repository
	registry    ModelRegistry
	logger      observability.Logger
	metrics     *observability.Metrics
	concurrency int
}

// New constructs a Service. concurrency bounds createBatchEmbeddings'
// in-flight provider calls (spec.md §5); values below 1 are treated as 1.
func New(providerRegistry ProviderRegistry, repo *repository.Repository, modelRegistry ModelRegistry, logger observability.Logger, metrics *observability.Metrics, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		providers:   providerRegistry,
		repo:        repo,
		registry:    modelRegistry,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// CreateEmbeddingResult is createEmbedding's return value.
type CreateEmbeddingResult struct {
	ID                int64
	URI               string
	ResolvedModelName string
	Message           string
}

// CreateEmbedding implements spec.md §4.4's createEmbedding: generate,
// then persist under the provider's resolved model name so that
// fallbacks are recorded truthfully rather than the caller's request.
func (s *Service) CreateEmbedding(ctx context.Context, uri, text, modelName string) (res *CreateEmbeddingResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.logger.Debug("createEmbedding", observability.Fields{"uri": uri, "model_name": modelName, "outcome": outcome, "duration_ms": time.Since(start).Milliseconds()})
	}()

	if uri == "" {
		return nil, eeserrors.NewValidationError("uri", "must not be empty")
	}
	if text == "" {
		return nil, eeserrors.NewValidationError("text", "must not be empty")
	}

	p := s.providers.Default()
	resp, genErr := p.GenerateEmbedding(ctx, providers.GenerateRequest{Text: text, ModelName: modelName})
	if genErr != nil {
		s.logger.Error("createEmbedding: provider call failed", observability.Fields{"uri": uri, "error": genErr.Error()})
		return nil, genErr
	}

	id, saveErr := s.repo.Save(ctx, uri, text, resp.ResolvedModel, resp.Vector, nil, nil)
	if saveErr != nil {
		s.logger.Error("createEmbedding: save failed", observability.Fields{"uri": uri, "error": saveErr.Error()})
		return nil, saveErr
	}

	return &CreateEmbeddingResult{
		ID:                id,
		URI:               uri,
		ResolvedModelName: resp.ResolvedModel,
		Message:           "Embedding created successfully",
	}, nil
}
