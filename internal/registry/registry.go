// Package registry implements the Model Registry & Compatibility
// component (SPEC_FULL.md §4.6): a small relational catalogue of
// providers and models, the single-active-model transaction, and a
// dimension lookup backing the Application Service's compatibility
// checks, optionally warmed by a Redis cache.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
)

// Provider is a registered embedding backend binding (spec.md §3).
type Provider struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Type      string          `db:"type"`
	BaseURL   string          `db:"base_url"`
	APIKey    sql.NullString  `db:"api_key"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Model is a registered model binding (spec.md §3). Dimensions are not a
// first-class column — the Model attribute list in spec.md §3 doesn't
// name one — so they're carried in the metadata blob under the
// "dimensions" key, the same free-form field the row already has.
type Model struct {
	ID          int64           `db:"id"`
	ProviderID  int64           `db:"provider_id"`
	Name        string          `db:"name"`
	DisplayName sql.NullString  `db:"display_name"`
	IsActive    bool            `db:"is_active"`
	Metadata    json.RawMessage `db:"metadata"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type modelMetadata struct {
	Dimensions int `json:"dimensions"`
}

// Registry is the Model Registry's capability set.
type Registry struct {
	db      *sqlx.DB
	cache   CompatibilityCache
	logger  observability.Logger
	metrics *observability.Metrics
}

// New wraps db for struct-scanning CRUD and attaches cache as the
// dimension-lookup cache backing ModelDimensions.
func New(db *sql.DB, cache CompatibilityCache, logger observability.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		db:      sqlx.NewDb(db, "sqlite3"),
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

func dimensionsCacheKey(modelName string) string {
	return "dims:" + modelName
}

// ModelDimensions implements the service.ModelRegistry dependency: looks
// up modelName's dimensions, warmed by the configured CompatibilityCache
// (Redis when EES_REDIS_URL is set, in-process LRU otherwise, per
// SPEC_FULL.md §8's domain stack table).
func (r *Registry) ModelDimensions(ctx context.Context, modelName string) (dimensions int, found bool, err error) {
	start := time.Now()
	defer func() { r.observe("registry_model_dimensions", start, err) }()

	key := dimensionsCacheKey(modelName)
	if cached, ok := r.cache.Get(ctx, key); ok {
		dims, parseErr := parseDimensionsCacheValue(cached)
		if parseErr == nil {
			return dims, true, nil
		}
	}

	model, findErr := r.findModelByName(ctx, modelName)
	if findErr == eeserrors.ErrNotFound {
		return 0, false, nil
	}
	if findErr != nil {
		err = findErr
		return 0, false, err
	}

	var meta modelMetadata
	if len(model.Metadata) > 0 {
		if jsonErr := json.Unmarshal(model.Metadata, &meta); jsonErr != nil {
			err = &eeserrors.ParseError{Column: "metadata", Message: "failed to decode model metadata", Cause: jsonErr}
			return 0, false, err
		}
	}

	_ = r.cache.Set(ctx, key, fmt.Sprintf("%d", meta.Dimensions), 10*time.Minute)
	return meta.Dimensions, true, nil
}

func parseDimensionsCacheValue(v string) (int, error) {
	var dims int
	_, err := fmt.Sscanf(v, "%d", &dims)
	return dims, err
}
