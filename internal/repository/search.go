package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/storage"
)

const (
	MetricCosine     = "cosine"
	MetricEuclidean  = "euclidean"
	MetricDotProduct = "dot_product"
)

// SearchSimilar implements spec.md §4.3's searchSimilar algorithm.
//
// Cosine path: the top-K operator (storage.Engine.VectorTopK) selects
// candidates by ascending cosine distance scoped to modelName, projecting
// similarity = 1 - distance; results are ordered by similarity descending
// and threshold-filtered in SQL-equivalent post-filtering (threshold is
// compared against the same similarity the caller sees).
//
// Fallback path (euclidean | dot_product): spec.md directs the legacy
// behaviour be preserved — cosine_distance is used as the ordering key and
// (1 - distance) is reported as the similarity regardless of the requested
// metric, which mislabels the value for non-cosine metrics. This
// implementation preserves that exact return value in Similarity and also
// stores the value computed under the requested metric in each result's
// CorrectedSimilarity field, without changing SearchSimilar's observable
// contract. No other component in this module reads CorrectedSimilarity.
func (r *Repository) SearchSimilar(ctx context.Context, p SearchParams) (results []*SearchResult, err error) {
	start := time.Now()
	defer func() { r.observe("search_similar", start, err) }()

	limit := p.Limit
	if limit < 1 {
		limit = 10
	}

	candidates, err := r.engine.VectorTopK(ctx, p.ModelName, p.QueryVector, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	legacySimilarity := make(map[int64]float64, len(candidates))
	for _, c := range candidates {
		legacySimilarity[c.ID] = 1 - c.Distance
	}

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	rows, err := r.fetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*SearchResult, 0, len(rows))
	for _, row := range rows {
		e, convErr := row.toEmbedding()
		if convErr != nil {
			r.logger.Warn("skipping search candidate with undecodable vector", observability.Fields{"id": row.ID})
			continue
		}

		// spec.md §4.3 fallback path: for non-cosine metrics the similarity
		// reported to the caller is still the cosine-distance-derived
		// value (preserved-as-specified bug); this implementation merely
		// makes the corrected value available alongside rather than
		// substituting it, per SPEC_FULL.md §4.3's Open Question decision.
		similarity := legacySimilarity[e.ID]
		var corrected float64
		if p.Metric == MetricEuclidean || p.Metric == MetricDotProduct {
			corrected = correctedSimilarity(p.Metric, p.QueryVector, e.Vector)
		}

		if p.Threshold != nil && similarity < *p.Threshold {
			continue
		}

		out = append(out, &SearchResult{
			ID: e.ID, URI: e.URI, Text: e.Text, ModelName: e.ModelName,
			Similarity: similarity, CorrectedSimilarity: corrected,
			CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
		})
	}

	sortBySimilarityDescending(out)
	return out, nil
}

// correctedSimilarity computes the similarity under the metric actually
// requested, for diagnostic use (see SearchSimilar's doc comment and
// SPEC_FULL.md §4.3).
func correctedSimilarity(metric string, query, candidate []float32) float64 {
	switch metric {
	case MetricEuclidean:
		return -storage.EuclideanDistance(query, candidate)
	case MetricDotProduct:
		return storage.DotProduct(query, candidate)
	default:
		return 0
	}
}

func (r *Repository) fetchByIDs(ctx context.Context, ids []int64) ([]embeddingRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, uri, text, model_name, embedding, original_content, converted_format, created_at, updated_at
		FROM embeddings WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to build IN query", Cause: err}
	}
	query = r.db.Rebind(query)

	var rows []embeddingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to fetch search candidates", Cause: err}
	}
	return rows, nil
}

func sortBySimilarityDescending(results []*SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
