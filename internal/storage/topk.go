package storage

import (
	"context"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

// TopKCandidate is one row returned by VectorTopK: the embeddings row id
// and its cosine distance to the query vector.
type TopKCandidate struct {
	ID       int64
	Distance float64
}

// VectorTopK realizes spec.md §4.2's `vector_top_k(index_name, query_blob,
// k)` as an exact ORDER BY cosine_distance(...) ASC LIMIT k scan scoped to
// one model, matching the Non-goal that exempts this core from
// implementing an approximate index from scratch.
func (e *Engine) VectorTopK(ctx context.Context, modelName string, queryVector []float32, k int) ([]TopKCandidate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	queryBlob := EncodeVector(queryVector)
	rows, err := e.DB.QueryContext(ctx, `
		SELECT id, cosine_distance(embedding, ?) AS dist
		FROM embeddings
		WHERE model_name = ?
		ORDER BY dist ASC
		LIMIT ?
	`, queryBlob, modelName, k)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "vector_top_k query failed", Cause: err}
	}
	defer rows.Close()

	var out []TopKCandidate
	for rows.Next() {
		var c TopKCandidate
		if err := rows.Scan(&c.ID, &c.Distance); err != nil {
			return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to scan vector_top_k row", Cause: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed iterating vector_top_k rows", Cause: err}
	}
	return out, nil
}
