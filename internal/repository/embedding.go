// Package repository implements the Embedding Repository (SPEC_FULL.md
// §4.3): typed CRUD and similarity-search queries over the Storage
// Engine's embeddings table, following the teacher's sqlx-based
// struct-scanning style (pkg/repository/vector/repository.go).
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/storage"
)

// Embedding is one row of the embeddings table, vector already decoded.
type Embedding struct {
	ID               int64
	URI              string
	Text             string
	ModelName        string
	Vector           []float32
	OriginalContent  *string
	ConvertedFormat  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// embeddingRow is the sqlx scan target; Embedding.Vector and timestamps
// need post-scan conversion so they are kept separate from the public type.
type embeddingRow struct {
	ID              int64          `db:"id"`
	URI             string         `db:"uri"`
	Text            string         `db:"text"`
	ModelName       string         `db:"model_name"`
	Embedding       []byte         `db:"embedding"`
	OriginalContent sql.NullString `db:"original_content"`
	ConvertedFormat sql.NullString `db:"converted_format"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r embeddingRow) toEmbedding() (*Embedding, error) {
	vec, err := storage.DecodeVector(r.Embedding)
	if err != nil {
		return nil, err
	}
	e := &Embedding{
		ID: r.ID, URI: r.URI, Text: r.Text, ModelName: r.ModelName,
		Vector: vec, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.OriginalContent.Valid {
		e.OriginalContent = &r.OriginalContent.String
	}
	if r.ConvertedFormat.Valid {
		e.ConvertedFormat = &r.ConvertedFormat.String
	}
	return e, nil
}

// Page is a paginated result set from FindAll.
type Page struct {
	Items      []*Embedding
	Total      int
	PageNum    int
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// SearchResult is one ranked row from SearchSimilar. CorrectedSimilarity
// holds the similarity computed under the metric actually requested, for
// the fallback (non-cosine) path only; it is zero on the cosine path and
// never substituted into Similarity (see SearchSimilar's doc comment).
type SearchResult struct {
	ID                  int64
	URI                 string
	Text                string
	ModelName           string
	Similarity          float64
	CorrectedSimilarity float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SearchParams configures SearchSimilar.
type SearchParams struct {
	QueryVector []float32
	ModelName   string
	Limit       int
	Threshold   *float64
	Metric      string // "cosine", "euclidean", or "dot_product"
}

// Repository is the Embedding Repository's public capability set.
type Repository struct {
	db      *sqlx.DB
	engine  *storage.Engine
	logger  observability.Logger
	metrics *observability.Metrics
}

// New wraps engine's *sql.DB with sqlx for struct-scanning CRUD, keeping
// the raw connection available for the cosine_distance/vector_top_k SQL
// that sqlx's query builder doesn't abstract over.
func New(engine *storage.Engine, logger observability.Logger, metrics *observability.Metrics) *Repository {
	return &Repository{
		db:      sqlx.NewDb(engine.DB, "sqlite3"),
		engine:  engine,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *Repository) observe(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ObserveRepositoryQuery(operation, outcome, time.Since(start))
}

// Save upserts on (uri, model_name): replaces text/vector/original_content/
// converted_format and advances updated_at when a row already exists,
// otherwise inserts a new row. Returns the effective row id.
//
// SQLite has no native UPSERT-with-returning path through sqlx's struct
// scanning, so SPEC_FULL.md §9 has this emulate one: SELECT id + conditional
// UPDATE/INSERT inside a transaction. The transaction is opened at
// sql.LevelSerializable, which mattn/go-sqlite3 maps to BEGIN IMMEDIATE —
// it takes SQLite's write lock up front rather than on first write, so a
// second concurrent Save for the same (uri, model_name) blocks on BeginTxx
// until the first commits instead of racing it to the INSERT and losing to
// the idx_embeddings_uri_model unique constraint. The effect is the "last
// writer wins" semantics spec.md §5 requires, not a DatabaseError.
func (r *Repository) Save(ctx context.Context, uri, text, modelName string, vector []float32, originalContent, convertedFormat *string) (id int64, err error) {
	start := time.Now()
	defer func() { r.observe("save", start, err) }()

	blob := storage.EncodeVector(vector)

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseConnection, Message: "failed to begin save transaction", Cause: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingID int64
	err = tx.GetContext(ctx, &existingID, `SELECT id FROM embeddings WHERE uri = ? AND model_name = ?`, uri, modelName)
	switch {
	case err == nil:
		if _, err = tx.ExecContext(ctx, `
			UPDATE embeddings
			SET text = ?, embedding = ?, original_content = ?, converted_format = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now')
			WHERE id = ?
		`, text, blob, originalContent, convertedFormat, existingID); err != nil {
			err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to update embedding", Cause: err}
			return 0, err
		}
		if err = tx.Commit(); err != nil {
			err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to commit embedding update", Cause: err}
			return 0, err
		}
		return existingID, nil
	case err == sql.ErrNoRows:
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (uri, text, model_name, embedding, original_content, converted_format)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uri, text, modelName, blob, originalContent, convertedFormat)
		if err != nil {
			err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to insert embedding", Cause: err}
			return 0, err
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read inserted id", Cause: idErr}
			return 0, err
		}
		if err = tx.Commit(); err != nil {
			err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to commit embedding insert", Cause: err}
			return 0, err
		}
		return newID, nil
	default:
		err = &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to check for existing embedding", Cause: err}
		return 0, err
	}
}

// FindByURI returns the row matching (uri, modelName) exactly, or
// ErrNotFound.
func (r *Repository) FindByURI(ctx context.Context, uri, modelName string) (e *Embedding, err error) {
	start := time.Now()
	defer func() { r.observe("find_by_uri", start, err) }()

	var row embeddingRow
	err = r.db.GetContext(ctx, &row, `
		SELECT id, uri, text, model_name, embedding, original_content, converted_format, created_at, updated_at
		FROM embeddings WHERE uri = ? AND model_name = ?
	`, uri, modelName)
	if err == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to find embedding by uri", Cause: err}
	}
	return row.toEmbedding()
}

// FindAllParams configures FindAll.
type FindAllParams struct {
	URI       string // substring filter, SQL LIKE %uri%
	ModelName string // exact filter; empty means no filter
	Page      int
	Limit     int
}

// FindAll returns a paginated, created_at-ascending list. Limit is clamped
// to [1, 100]; rows whose stored vector cannot be decoded are skipped
// rather than failing the whole page (spec.md §7's EmbeddingDataParse
// policy for list operations).
func (r *Repository) FindAll(ctx context.Context, p FindAllParams) (page *Page, err error) {
	start := time.Now()
	defer func() { r.observe("find_all", start, err) }()

	limit := p.Limit
	if limit < 1 {
		limit = 1
	} else if limit > 100 {
		limit = 100
	}
	pageNum := p.Page
	if pageNum < 1 {
		pageNum = 1
	}
	offset := (pageNum - 1) * limit

	where := "WHERE 1 = 1"
	args := []any{}
	if p.URI != "" {
		where += " AND uri LIKE ?"
		args = append(args, "%"+p.URI+"%")
	}
	if p.ModelName != "" {
		where += " AND model_name = ?"
		args = append(args, p.ModelName)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM embeddings %s`, where)
	if err = r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to count embeddings", Cause: err}
	}

	query := fmt.Sprintf(`
		SELECT id, uri, text, model_name, embedding, original_content, converted_format, created_at, updated_at
		FROM embeddings %s
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?
	`, where)
	rowArgs := append(append([]any{}, args...), limit, offset)

	var rows []embeddingRow
	if err = r.db.SelectContext(ctx, &rows, query, rowArgs...); err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list embeddings", Cause: err}
	}

	items := make([]*Embedding, 0, len(rows))
	for _, row := range rows {
		e, convErr := row.toEmbedding()
		if convErr != nil {
			r.logger.Warn("skipping embedding row with undecodable vector", observability.Fields{"id": row.ID, "uri": row.URI})
			continue
		}
		items = append(items, e)
	}

	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	return &Page{
		Items: items, Total: total, PageNum: pageNum, Limit: limit,
		TotalPages: totalPages, HasNext: pageNum < totalPages, HasPrev: pageNum > 1,
	}, nil
}

// DeleteByID removes a row by id, reporting whether one was removed.
func (r *Repository) DeleteByID(ctx context.Context, id int64) (deleted bool, err error) {
	start := time.Now()
	defer func() { r.observe("delete_by_id", start, err) }()

	res, execErr := r.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id = ?`, id)
	if execErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to delete embedding", Cause: execErr}
	}
	n, raErr := res.RowsAffected()
	if raErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read rows affected", Cause: raErr}
	}
	return n > 0, nil
}

// UpdateByID rewrites text and vector in place, advancing updated_at.
func (r *Repository) UpdateByID(ctx context.Context, id int64, text string, vector []float32) (updated bool, err error) {
	start := time.Now()
	defer func() { r.observe("update_by_id", start, err) }()

	res, execErr := r.db.ExecContext(ctx, `
		UPDATE embeddings SET text = ?, embedding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, text, storage.EncodeVector(vector), id)
	if execErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to update embedding", Cause: execErr}
	}
	n, raErr := res.RowsAffected()
	if raErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read rows affected", Cause: raErr}
	}
	return n > 0, nil
}

// ReplaceModelByID rewrites text, model_name, and vector in place for a
// row identified by id, advancing updated_at. Used by migrateEmbeddings'
// in-place (non-preserveOriginal) path, where the row's model_name
// itself changes rather than just its vector — UpdateByID alone cannot
// express that.
func (r *Repository) ReplaceModelByID(ctx context.Context, id int64, text, modelName string, vector []float32) (updated bool, err error) {
	start := time.Now()
	defer func() { r.observe("replace_model_by_id", start, err) }()

	res, execErr := r.db.ExecContext(ctx, `
		UPDATE embeddings SET text = ?, model_name = ?, embedding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, text, modelName, storage.EncodeVector(vector), id)
	if execErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to replace embedding model", Cause: execErr}
	}
	n, raErr := res.RowsAffected()
	if raErr != nil {
		return false, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to read rows affected", Cause: raErr}
	}
	return n > 0, nil
}
