package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

func (r *Registry) observe(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ObserveRepositoryQuery(operation, outcome, time.Since(start))
}

// CreateProvider inserts a new provider binding.
func (r *Registry) CreateProvider(ctx context.Context, name, providerType, baseURL string, apiKey *string, metadata json.RawMessage) (id int64, err error) {
	start := time.Now()
	defer func() { r.observe("registry_create_provider", start, err) }()

	var apiKeyArg sql.NullString
	if apiKey != nil {
		apiKeyArg = sql.NullString{String: *apiKey, Valid: true}
	}
	res, execErr := r.db.ExecContext(ctx, `
		INSERT INTO providers (name, type, base_url, api_key, metadata) VALUES (?, ?, ?, ?, ?)
	`, name, providerType, baseURL, apiKeyArg, string(metadata))
	if execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to insert provider", Cause: execErr}
		return 0, err
	}
	id, err = res.LastInsertId()
	return id, err
}

// GetProvider returns a provider by id, or ErrNotFound.
func (r *Registry) GetProvider(ctx context.Context, id int64) (p *Provider, err error) {
	start := time.Now()
	defer func() { r.observe("registry_get_provider", start, err) }()

	var row Provider
	getErr := r.db.GetContext(ctx, &row, `SELECT * FROM providers WHERE id = ?`, id)
	if getErr == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if getErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to get provider", Cause: getErr}
		return nil, err
	}
	return &row, nil
}

// ListProviders returns every registered provider.
func (r *Registry) ListProviders(ctx context.Context) (ps []*Provider, err error) {
	start := time.Now()
	defer func() { r.observe("registry_list_providers", start, err) }()

	if selErr := r.db.SelectContext(ctx, &ps, `SELECT * FROM providers ORDER BY id ASC`); selErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list providers", Cause: selErr}
		return nil, err
	}
	return ps, nil
}

// DeleteProvider removes a provider by id, reporting whether one was
// removed. The provider's models are left in place if a caller deletes
// out of order — spec.md names no cascade for providers (only
// UploadDirectory -> SyncJob cascades), so this is intentionally not a
// foreign-key-enforced cascade.
func (r *Registry) DeleteProvider(ctx context.Context, id int64) (deleted bool, err error) {
	start := time.Now()
	defer func() { r.observe("registry_delete_provider", start, err) }()

	res, execErr := r.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to delete provider", Cause: execErr}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
