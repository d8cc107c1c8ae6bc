package service

import (
	"context"
	"fmt"

	"github.com/eeslabs/embedding-core/internal/providers"
)

// CompatibilityResult is checkCompatibility's response.
type CompatibilityResult struct {
	Compatible      bool
	Reason          string
	SimilarityScore *float64
}

// CheckCompatibility implements spec.md §4.4's checkCompatibility: the
// same model is always compatible with itself; two different models are
// compatible iff their dimensions match and both are registered in the
// Model Registry (§4.6) — dimensions are never inferred from a live
// provider catalogue at call time, only from the registry.
func (s *Service) CheckCompatibility(ctx context.Context, sourceModel, targetModel string) (*CompatibilityResult, error) {
	if sourceModel == targetModel {
		return &CompatibilityResult{Compatible: true}, nil
	}

	sourceDims, sourceFound, err := s.registry.ModelDimensions(ctx, sourceModel)
	if err != nil {
		return nil, err
	}
	targetDims, targetFound, err := s.registry.ModelDimensions(ctx, targetModel)
	if err != nil {
		return nil, err
	}

	if !sourceFound || !targetFound {
		missing := sourceModel
		if sourceFound {
			missing = targetModel
		}
		return &CompatibilityResult{
			Compatible: false,
			Reason:     fmt.Sprintf("model %q is not registered", missing),
		}, nil
	}

	if sourceDims != targetDims {
		return &CompatibilityResult{
			Compatible: false,
			Reason:     fmt.Sprintf("dimension mismatch: %s has %d dimensions, %s has %d", sourceModel, sourceDims, targetModel, targetDims),
		}, nil
	}

	return &CompatibilityResult{Compatible: true}, nil
}

// TaskTypeInfo is one entry of getTaskTypes' response catalogue.
type TaskTypeInfo struct {
	Value       string
	Label       string
	Description string
}

// taskTypeCatalogue is the read-only TaskTypeMetadata catalogue from
// spec.md §3, keyed by the TaskType values the Provider Abstraction
// already defines.
var taskTypeCatalogue = map[providers.TaskType]TaskTypeInfo{
	providers.TaskTypeRetrievalQuery: {
		Value: string(providers.TaskTypeRetrievalQuery), Label: "Retrieval Query",
		Description: "Optimized for embedding a search query that will be matched against documents.",
	},
	providers.TaskTypeRetrievalDocument: {
		Value: string(providers.TaskTypeRetrievalDocument), Label: "Retrieval Document",
		Description: "Optimized for embedding a document that will be searched against by queries.",
	},
	providers.TaskTypeSemanticSimilarity: {
		Value: string(providers.TaskTypeSemanticSimilarity), Label: "Semantic Similarity",
		Description: "Optimized for comparing two texts for semantic closeness.",
	},
	providers.TaskTypeClassification: {
		Value: string(providers.TaskTypeClassification), Label: "Classification",
		Description: "Optimized for feeding a downstream text classifier.",
	},
	providers.TaskTypeClustering: {
		Value: string(providers.TaskTypeClustering), Label: "Clustering",
		Description: "Optimized for grouping texts by topical similarity.",
	},
}

// GetTaskTypes implements spec.md §4.4's getTaskTypes: returns the
// metadata catalogue entries for the task types modelName's provider
// declares support for. Models without task-typing (an empty
// ModelInfo.SupportedTasks) return an empty list, not an error — the
// model need not be registered to ask this question, only resolvable by
// some configured provider.
func (s *Service) GetTaskTypes(modelName string) []TaskTypeInfo {
	for _, tag := range s.providers.Tags() {
		p, ok := s.providers.Get(tag)
		if !ok {
			continue
		}
		info, found := p.GetModelInfo(modelName)
		if !found {
			continue
		}
		out := make([]TaskTypeInfo, 0, len(info.SupportedTasks))
		for _, tt := range info.SupportedTasks {
			if meta, ok := taskTypeCatalogue[tt]; ok {
				out = append(out, meta)
			}
		}
		return out
	}
	return []TaskTypeInfo{}
}
