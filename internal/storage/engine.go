// Package storage implements the Storage Engine (SPEC_FULL.md §4.2): a
// SQLite-backed relational store extended with a fixed-width float-vector
// column type and a registered cosine-distance scalar function, plus the
// legacy-format detection and migration procedure spec.md §4.2 describes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
)

// driverName is the name under which the cosine_distance-registering
// SQLite driver variant is registered with database/sql. sql.Register
// panics if called twice with the same name, so registration happens once
// behind driverRegisterOnce regardless of how many Engines a process opens.
const driverName = "sqlite3_ees"

var driverRegisterOnce sync.Once

func registerDriver() {
	driverRegisterOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("cosine_distance", func(b1, b2 []byte) float64 {
					return cosineDistance(b1, b2)
				}, true)
			},
		})
	})
}

// vectorColumnMarkerPrefix is the column-type-affinity string F32_BLOB(D) uses;
// SQLite stores whatever type name appears in the DDL verbatim and makes it
// available through sqlite_master, which is what legacy-format detection
// reads back.
const vectorColumnMarkerPrefix = "F32_BLOB"

// Engine owns the SQLite connection pool, the embeddings table's vector
// column lifecycle, and the cosine_distance/vector_top_k primitives.
type Engine struct {
	DB         *sql.DB
	Dimensions int
	logger     observability.Logger
	metrics    *observability.Metrics
	mu         sync.RWMutex // guards migration vs. concurrent queries (§5: migration holds an exclusive lock)

	pendingReembed []legacyRow
}

// Open connects to databaseURL (a file path or ":memory:") through the
// cosine_distance-aware SQLite driver and ensures the embeddings table
// exists at the given dimensionality, migrating it in place if it exists
// in the legacy (untyped) format.
func Open(ctx context.Context, databaseURL string, dimensions int, logger observability.Logger, metrics *observability.Metrics) (*Engine, error) {
	registerDriver()

	db, err := sql.Open(driverName, databaseURL)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseConnection, Message: "failed to open database", Cause: err}
	}
	if databaseURL == ":memory:" {
		// A single shared in-memory connection; the stdlib pool otherwise
		// hands out a fresh (and empty) in-memory database per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseConnection, Message: "failed to ping database", Cause: err}
	}

	e := &Engine{DB: db, Dimensions: dimensions, logger: logger, metrics: metrics}
	if err := e.ensureEmbeddingsTable(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() error {
	return e.DB.Close()
}

// ensureEmbeddingsTable creates the embeddings table if absent, or runs the
// snapshot/drop/recreate migration if it exists in the legacy format.
func (e *Engine) ensureEmbeddingsTable(ctx context.Context) error {
	ddl, exists, err := e.embeddingsTableDDL(ctx)
	if err != nil {
		return err
	}

	if !exists {
		return e.createEmbeddingsSchema(ctx)
	}

	if isFixedWidthVectorDDL(ddl) {
		return nil
	}

	e.logger.Warn("embeddings table is in legacy vector format, migrating", observability.Fields{"dimensions": e.Dimensions})
	return e.migrateLegacyEmbeddings(ctx)
}

// embeddingsTableDDL reads the embeddings table's stored CREATE TABLE
// statement from sqlite_master, the detection mechanism spec.md §4.2
// specifies ("reads the table's DDL from the catalog").
func (e *Engine) embeddingsTableDDL(ctx context.Context) (string, bool, error) {
	var ddl string
	err := e.DB.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'embeddings'`).Scan(&ddl)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read embeddings table DDL", Cause: err}
	}
	return ddl, true, nil
}

func isFixedWidthVectorDDL(ddl string) bool {
	return strings.Contains(strings.ToUpper(ddl), vectorColumnMarkerPrefix)
}

func (e *Engine) embeddingColumnType() string {
	return fmt.Sprintf("%s(%d)", vectorColumnMarkerPrefix, e.Dimensions)
}

// createEmbeddingsSchema creates the embeddings table and its four indices
// (unique on uri+model_name, btree on created_at, btree on model_name, and
// a (model_name, id) index standing in for the vector index) from scratch.
func (e *Engine) createEmbeddingsSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uri TEXT NOT NULL,
			text TEXT NOT NULL,
			model_name TEXT NOT NULL,
			embedding %s NOT NULL,
			original_content TEXT,
			converted_format TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, e.embeddingColumnType()),
		`CREATE UNIQUE INDEX idx_embeddings_uri_model ON embeddings(uri, model_name)`,
		`CREATE INDEX idx_embeddings_created_at ON embeddings(created_at)`,
		`CREATE INDEX idx_embeddings_model_name ON embeddings(model_name)`,
		// SQLite has no native vector index type; this index merely scopes
		// the cosine_distance full-scan that realizes vector_top_k to rows
		// of one model, which is the actual selectivity the ANN index
		// would otherwise provide.
		`CREATE INDEX idx_embeddings_model_name_vector ON embeddings(model_name, id)`,
	}
	return e.execSchemaStatements(ctx, stmts)
}

func (e *Engine) execSchemaStatements(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := e.DB.ExecContext(ctx, stmt); err != nil {
			return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to execute schema statement: " + stmt, Cause: err}
		}
	}
	return nil
}

type legacyRow struct {
	URI              string
	Text             string
	ModelName        string
	OriginalContent  sql.NullString
	ConvertedFormat  sql.NullString
	CreatedAt        string
	UpdatedAt        string
}

// migrateLegacyEmbeddings implements spec.md §4.2's migration procedure:
// snapshot (uri, text, model_name, timestamps) rows in memory, discarding
// vectors, then drop the table and its indices and recreate the schema at
// the configured dimension. The discarded rows are not reinserted — a
// fixed-width column cannot hold a vector that was never decoded — and are
// instead surfaced through PendingReembed for the caller to re-embed.
//
// Any step failing here aborts migration and propagates DatabaseError
// without attempting partial rollback; the embeddings table may be left in
// an inconsistent state and the caller must recover externally.
func (e *Engine) migrateLegacyEmbeddings(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.DB.QueryContext(ctx, `SELECT uri, text, model_name, original_content, converted_format, created_at, updated_at FROM embeddings`)
	if err != nil {
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to snapshot legacy embeddings", Cause: err}
	}
	var snapshot []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.URI, &r.Text, &r.ModelName, &r.OriginalContent, &r.ConvertedFormat, &r.CreatedAt, &r.UpdatedAt); err != nil {
			_ = rows.Close()
			return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed to scan legacy row", Cause: err}
		}
		snapshot = append(snapshot, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return &eeserrors.DatabaseError{Kind: eeserrors.DatabaseMigration, Message: "failed iterating legacy rows", Cause: err}
	}
	_ = rows.Close()

	dropStmts := []string{
		`DROP INDEX IF EXISTS idx_embeddings_uri_model`,
		`DROP INDEX IF EXISTS idx_embeddings_created_at`,
		`DROP INDEX IF EXISTS idx_embeddings_model_name`,
		`DROP INDEX IF EXISTS idx_embeddings_model_name_vector`,
		`DROP TABLE IF EXISTS embeddings`,
	}
	if err := e.execSchemaStatements(ctx, dropStmts); err != nil {
		return err
	}
	if err := e.createEmbeddingsSchema(ctx); err != nil {
		return err
	}

	e.logger.Warn("legacy embeddings migrated; vectors discarded, rows require re-embedding", observability.Fields{"rows_snapshotted": len(snapshot)})
	e.pendingReembed = snapshot
	return nil
}

// PendingReembed returns the (uri, model_name) pairs whose vectors were
// discarded by the most recent legacy migration and still need
// re-embedding before they are queryable again. Empty when no migration
// has run in this process.
func (e *Engine) PendingReembed() []struct{ URI, ModelName, Text string } {
	out := make([]struct{ URI, ModelName, Text string }, 0, len(e.pendingReembed))
	for _, r := range e.pendingReembed {
		out = append(out, struct{ URI, ModelName, Text string }{r.URI, r.ModelName, r.Text})
	}
	return out
}
