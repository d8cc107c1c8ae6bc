// Package migrations runs the versioned schema for the four non-vector
// tables (providers, models, upload_directories, sync_jobs) through
// golang-migrate. The embeddings table is deliberately excluded: its
// vector-format migration is data-aware (snapshot/discard/recreate) and
// cannot be expressed as a linear up/down SQL migration, so it is owned by
// storage.Engine instead.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"database/sql"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

//go:embed *.sql
var migrationFiles embed.FS

// Manager wraps a golang-migrate instance bound to the four catalogue
// tables, following the teacher's migration.Manager shape
// (pkg/database/migration/manager.go) with its postgres driver swapped for
// sqlite3 and its file:// source swapped for an embedded filesystem so the
// binary carries its own migrations.
type Manager struct {
	migrator *migrate.Migrate
}

// NewManager builds a Manager bound to db. The catalogue migrations do not
// use cosine_distance, so db may come from storage.Open or from any other
// sqlite3 driver registration.
func NewManager(db *sql.DB) (*Manager, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to create sqlite3 migration driver", Cause: err}
	}

	source, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to open embedded migration source", Cause: err}
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to construct migrator", Cause: err}
	}

	return &Manager{migrator: migrator}, nil
}

// Up applies every pending migration. ErrNoChange is not an error from the
// caller's perspective — the schema was already current.
func (m *Manager) Up() error {
	if err := m.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to apply migrations", Cause: err}
	}
	return nil
}

// Down rolls back every applied migration.
func (m *Manager) Down() error {
	if err := m.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to roll back migrations", Cause: err}
	}
	return nil
}

// Steps applies n migrations forward, or rolls back -n if n is negative.
func (m *Manager) Steps(n int) error {
	if err := m.migrator.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to step migrations", Cause: err}
	}
	return nil
}

// Version reports the currently applied migration version.
func (m *Manager) Version() (uint, bool, error) {
	v, dirty, err := m.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return v, dirty, nil
}
