package sync

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
)

// JobStatus is a SyncJob's lifecycle state (spec.md §3).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a SyncJob row (spec.md §3). processedFiles = createdFiles +
// updatedFiles + failedFiles holds at every observation point.
type Job struct {
	ID              string         `db:"id"`
	DirectoryID     string         `db:"directory_id"`
	Status          JobStatus      `db:"status"`
	TotalFiles      int            `db:"total_files"`
	ProcessedFiles  int            `db:"processed_files"`
	CreatedFiles    int            `db:"created_files"`
	UpdatedFiles    int            `db:"updated_files"`
	FailedFiles     int            `db:"failed_files"`
	FailedFilePaths sql.NullString `db:"failed_file_paths"`
	CurrentFile     sql.NullString `db:"current_file"`
	ErrorMessage    sql.NullString `db:"error_message"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// FailedPaths decodes the comma-joined failed_file_paths column.
func (j *Job) FailedPaths() []string {
	if !j.FailedFilePaths.Valid || j.FailedFilePaths.String == "" {
		return nil
	}
	return strings.Split(j.FailedFilePaths.String, ",")
}

// JobStore is the SyncJob CRUD and lifecycle-transition surface.
type JobStore struct {
	db *sqlx.DB
}

// NewJobStore wraps db for SyncJob persistence.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: sqlx.NewDb(db, "sqlite3")}
}

// CreateJob inserts a new pending SyncJob for directoryID.
func (s *JobStore) CreateJob(ctx context.Context, directoryID string) (*Job, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, directory_id, status) VALUES (?, ?, ?)
	`, id, directoryID, JobPending)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to create sync job", Cause: err}
	}
	return s.GetJob(ctx, id)
}

// GetJob returns a SyncJob by id, or ErrNotFound.
func (s *JobStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := s.db.GetContext(ctx, &j, `SELECT * FROM sync_jobs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, eeserrors.ErrNotFound
	}
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to get sync job", Cause: err}
	}
	return &j, nil
}

// ListJobsForDirectory returns every SyncJob recorded against directoryID,
// most recent first.
func (s *JobStore) ListJobsForDirectory(ctx context.Context, directoryID string) ([]*Job, error) {
	var js []*Job
	err := s.db.SelectContext(ctx, &js, `SELECT * FROM sync_jobs WHERE directory_id = ? ORDER BY created_at DESC`, directoryID)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list sync jobs", Cause: err}
	}
	return js, nil
}

// IncompleteJobsForDirectory returns jobs left in pending or running state,
// used by cancelIncompleteJobs on startup.
func (s *JobStore) IncompleteJobsForDirectory(ctx context.Context, directoryID string) ([]*Job, error) {
	var js []*Job
	err := s.db.SelectContext(ctx, &js, `
		SELECT * FROM sync_jobs WHERE directory_id = ? AND status IN (?, ?)
	`, directoryID, JobPending, JobRunning)
	if err != nil {
		return nil, &eeserrors.DatabaseError{Kind: eeserrors.DatabaseQuery, Message: "failed to list incomplete sync jobs", Cause: err}
	}
	return js, nil
}

func (s *JobStore) markRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, started_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, JobRunning, id)
	return err
}

func (s *JobStore) setTotalFiles(ctx context.Context, id string, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET total_files = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, total, id)
	return err
}

func (s *JobStore) recordFileOutcome(ctx context.Context, id, currentFile string, created, updated, failed bool, failurePath string) error {
	createdDelta, updatedDelta, failedDelta := 0, 0, 0
	switch {
	case created:
		createdDelta = 1
	case updated:
		updatedDelta = 1
	case failed:
		failedDelta = 1
	}

	if failurePath != "" {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sync_jobs SET
				processed_files = processed_files + 1,
				created_files = created_files + ?,
				updated_files = updated_files + ?,
				failed_files = failed_files + ?,
				current_file = ?,
				failed_file_paths = CASE
					WHEN failed_file_paths IS NULL OR failed_file_paths = '' THEN ?
					ELSE failed_file_paths || ',' || ?
				END,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, createdDelta, updatedDelta, failedDelta, currentFile, failurePath, failurePath, id)
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			processed_files = processed_files + 1,
			created_files = created_files + ?,
			updated_files = updated_files + ?,
			failed_files = failed_files + ?,
			current_file = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, createdDelta, updatedDelta, failedDelta, currentFile, id)
	return err
}

func (s *JobStore) markTerminal(ctx context.Context, id string, status JobStatus, errMsg string) error {
	var errArg sql.NullString
	if errMsg != "" {
		errArg = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, errArg, id)
	return err
}

// CancelJob transitions a single job to cancelled, regardless of its
// current state, for use by cancelIncompleteJobs.
func (s *JobStore) CancelJob(ctx context.Context, id string) error {
	return s.markTerminal(ctx, id, JobCancelled, "")
}
