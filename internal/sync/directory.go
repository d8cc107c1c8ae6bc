package sync

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/providers"
)

// UploadDirectory is a registered sync root (spec.md §3).
type UploadDirectory struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Path          string         `db:"path"`
	ModelName     string         `db:"model_name"`
	TaskTypes     sql.NullString `db:"task_types"`
	Description   sql.NullString `db:"description"`
	LastSyncedAt  sql.NullTime   `db:"last_synced_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// TaskTypeList decodes the comma-joined task_types column.
func (d *UploadDirectory) TaskTypeList() []providers.TaskType {
	if !d.TaskTypes.Valid || d.TaskTypes.String == "" {
		return nil
	}
	parts := strings.Split(d.TaskTypes.String, ",")
	out := make([]providers.TaskType, 0, len(parts))
	for _, p := range parts {
		out = append(out, providers.TaskType(strings.TrimSpace(p)))
	}
	return out
}

func encodeTaskTypes(types []providers.TaskType) sql.NullString {
	if len(types) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}

// DirectoryStore is the UploadDirectory CRUD surface.
type DirectoryStore struct {
	db *sqlx.DB
}

// NewDirectoryStore wraps db for UploadDirectory persistence.
func NewDirectoryStore(db *sql.DB) *DirectoryStore {
	return &DirectoryStore{db: sqlx.NewDb(db, "sqlite3")}
}

// RegisterDirectory creates an UploadDirectory, assigning it a new uuid.
func (s *DirectoryStore) RegisterDirectory(ctx context.Context, name, path, modelName string, taskTypes []providers.TaskType, description *string) (*UploadDirectory, error) {
	id := uuid.NewString()
	var descArg sql.NullString
	if description != nil {
		descArg = sql.NullString{String: *description, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_directories (id, name, path, model_name, task_types, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, path, modelName, encodeTaskTypes(taskTypes), descArg)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to register upload directory", Cause: err}
	}
	return s.GetDirectory(ctx, id)
}

// GetDirectory returns an UploadDirectory by id, or ErrNotFound.
func (s *DirectoryStore) GetDirectory(ctx context.Context, id string) (*UploadDirectory, error) {
	var d UploadDirectory
	err := s.db.GetContext(ctx, &d, `SELECT * FROM upload_directories WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to get upload directory", Cause: err}
	}
	return &d, nil
}

// ListDirectories returns every registered UploadDirectory.
func (s *DirectoryStore) ListDirectories(ctx context.Context) ([]*UploadDirectory, error) {
	var ds []*UploadDirectory
	if err := s.db.SelectContext(ctx, &ds, `SELECT * FROM upload_directories ORDER BY id ASC`); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list upload directories", Cause: err}
	}
	return ds, nil
}

// DeleteDirectory removes an UploadDirectory by id; its sync jobs cascade
// via the foreign key's ON DELETE CASCADE (spec.md §3).
func (s *DirectoryStore) DeleteDirectory(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upload_directories WHERE id = ?`, id)
	if err != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to delete upload directory", Cause: err}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkSynced advances last_synced_at to now for a completed sync.
func (s *DirectoryStore) MarkSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE upload_directories SET last_synced_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to mark directory synced", Cause: err}
	}
	return nil
}
