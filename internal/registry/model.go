package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

// CreateModel inserts a new model binding under providerID.
func (r *Registry) CreateModel(ctx context.Context, providerID int64, name string, displayName *string, metadata json.RawMessage) (id int64, err error) {
	start := time.Now()
	defer func() { r.observe("registry_create_model", start, err) }()

	var displayArg sql.NullString
	if displayName != nil {
		displayArg = sql.NullString{String: *displayName, Valid: true}
	}
	res, execErr := r.db.ExecContext(ctx, `
		INSERT INTO models (provider_id, name, display_name, metadata) VALUES (?, ?, ?, ?)
	`, providerID, name, displayArg, string(metadata))
	if execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to insert model", Cause: execErr}
		return 0, err
	}
	id, err = res.LastInsertId()
	return id, err
}

// GetModel returns a model by id, or ErrNotFound.
func (r *Registry) GetModel(ctx context.Context, id int64) (m *Model, err error) {
	start := time.Now()
	defer func() { r.observe("registry_get_model", start, err) }()

	var row Model
	getErr := r.db.GetContext(ctx, &row, `SELECT * FROM models WHERE id = ?`, id)
	if getErr == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if getErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to get model", Cause: getErr}
		return nil, err
	}
	return &row, nil
}

func (r *Registry) findModelByName(ctx context.Context, name string) (*Model, error) {
	var m Model
	err := r.db.GetContext(ctx, &m, `SELECT * FROM models WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to find model by name", Cause: err}
	}
	return &m, nil
}

// ListModels returns every registered model, optionally scoped to a
// provider (providerID == 0 means all providers).
func (r *Registry) ListModels(ctx context.Context, providerID int64) (ms []*Model, err error) {
	start := time.Now()
	defer func() { r.observe("registry_list_models", start, err) }()

	if providerID == 0 {
		err = r.db.SelectContext(ctx, &ms, `SELECT * FROM models ORDER BY id ASC`)
	} else {
		err = r.db.SelectContext(ctx, &ms, `SELECT * FROM models WHERE provider_id = ? ORDER BY id ASC`, providerID)
	}
	if err != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list models", Cause: err}
		return nil, err
	}
	return ms, nil
}

// ActivateModel implements spec.md §4.6's single-active-model
// transaction: deactivates every model, then activates id, all inside
// one transaction so a reader never observes more than one active model
// (grounded on the teacher's BeginTxx/Commit/Rollback pattern in
// pkg/repository/vector/repository.go).
func (r *Registry) ActivateModel(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { r.observe("registry_activate_model", start, err) }()

	tx, txErr := r.db.BeginTxx(ctx, nil)
	if txErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseConnection, Message: "failed to begin activation transaction", Cause: txErr}
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, execErr := tx.ExecContext(ctx, `UPDATE models SET is_active = 0`); execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to deactivate models", Cause: execErr}
		return err
	}
	res, execErr := tx.ExecContext(ctx, `UPDATE models SET is_active = 1 WHERE id = ?`, id)
	if execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to activate model", Cause: execErr}
		return err
	}
	n, raErr := res.RowsAffected()
	if raErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read rows affected", Cause: raErr}
		return err
	}
	if n == 0 {
		err = eeserrors.ErrNotFound
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to commit activation", Cause: commitErr}
		return err
	}
	return nil
}

// DeleteModel removes a model by id, reporting whether one was removed.
func (r *Registry) DeleteModel(ctx context.Context, id int64) (deleted bool, err error) {
	start := time.Now()
	defer func() { r.observe("registry_delete_model", start, err) }()

	res, execErr := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if execErr != nil {
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to delete model", Cause: execErr}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
