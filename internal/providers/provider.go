// Package providers implements the Provider Abstraction (SPEC_FULL.md §4.1):
// a uniform embedding-generation capability set over heterogeneous external
// services, with a closed error taxonomy and resilience wrapping shared by
// every concrete provider.
package providers

import (
	"context"
	"time"
)

// TaskType optionally distinguishes how an embedding will be used, for
// providers that optimize differently for query-side vs document-side
// embeddings.
type TaskType string

const (
	TaskTypeRetrievalQuery    TaskType = "retrieval_query"
	TaskTypeRetrievalDocument TaskType = "retrieval_document"
	TaskTypeSemanticSimilarity TaskType = "semantic_similarity"
	TaskTypeClassification    TaskType = "classification"
	TaskTypeClustering        TaskType = "clustering"
)

// ModelInfo describes one embedding model a provider can serve.
type ModelInfo struct {
	Name             string
	DisplayName      string
	Dimensions       int
	MaxInputTokens   int
	PricePer1MTokens float64 // zero for local providers
	SupportedTasks   []TaskType
}

// GenerateRequest is a single-text embedding request.
type GenerateRequest struct {
	Text      string
	ModelName string // optional; "" means "use provider default"
	TaskType  TaskType
}

// GenerateResponse is the result of a successful embedding generation.
type GenerateResponse struct {
	Vector        []float32
	ResolvedModel string
	ProviderTag   string
	Dimensions    int
	TokensUsed    int
}

// Provider is the uniform capability set every embedding backend
// implements. Tag returns the closed-set type string (spec.md §3:
// "local-http-runtime", "openai-compatible", "cohere-like", "google-ai").
type Provider interface {
	Tag() string
	GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	ListModels() []ModelInfo
	IsModelAvailable(modelName string) bool
	GetModelInfo(modelName string) (ModelInfo, bool)
	DefaultModel() string
}

// resolveModelName implements spec.md §4.1's resolution order: request
// wins, then the provider's configured default, then a hard fallback.
func resolveModelName(requested, configuredDefault, hardFallback string) string {
	if requested != "" {
		return requested
	}
	if configuredDefault != "" {
		return configuredDefault
	}
	return hardFallback
}

// defaultProviderTimeout is the default provider call timeout absent an explicit
// configuration (spec.md §5).
const defaultProviderTimeout = 30 * time.Second
