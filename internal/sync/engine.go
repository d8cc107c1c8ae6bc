// Package sync implements the Directory Sync Engine (SPEC_FULL.md §4.5):
// ignore-pattern matching, the UploadDirectory/SyncJob relational state,
// and the background job that walks a registered directory calling the
// Application Service's createEmbedding on each eligible file.
package sync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/repository"
	"github.com/eeslabs/embedding-core/internal/service"
)

// EmbeddingCreator is the subset of the Application Service the engine
// depends on, defined as an interface so tests can substitute a fake
// rather than wiring a live provider.
type EmbeddingCreator interface {
	CreateEmbedding(ctx context.Context, uri, text, modelName string) (*service.CreateEmbeddingResult, error)
}

// EmbeddingLookup is the subset of the Embedding Repository the engine
// uses to distinguish a file's first sync (created) from a re-sync
// (updated).
type EmbeddingLookup interface {
	FindByURI(ctx context.Context, uri, modelName string) (*repository.Embedding, error)
}

// EventType names one of the progress-stream event shapes spec.md §4.5
// defines.
type EventType string

const (
	EventCollected     EventType = "collected"
	EventProcessing    EventType = "processing"
	EventFileCompleted EventType = "file_completed"
	EventFileFailed    EventType = "file_failed"
	EventCompleted     EventType = "completed"
)

// Event is a single progress-stream message. Only the fields relevant to
// Type are populated; the rest are zero-valued.
type Event struct {
	Type EventType

	TotalFiles int
	Current    int
	Total      int
	File       string
	Created    bool
	Updated    bool
	Failed     bool

	DirectoryID    string
	FilesProcessed int
	FilesCreated   int
	FilesUpdated   int
	FilesFailed    int
	Message        string
}

// Engine runs directory sync jobs: at most one running job per directory
// is permitted by the in-process guard described in spec.md §4.5 and
// §5's shared-resource policy.
type Engine struct {
	directories *DirectoryStore
	jobs        *JobStore
	embedder    EmbeddingCreator
	lookup      EmbeddingLookup
	converter   Converter
	logger      observability.Logger
	metrics     *observability.Metrics

	mu      sync.Mutex
	running map[string]bool // directoryID -> job in flight
}

// NewEngine constructs an Engine. converter may be nil, in which case
// PassthroughConverter is used.
func NewEngine(directories *DirectoryStore, jobs *JobStore, embedder EmbeddingCreator, lookup EmbeddingLookup, converter Converter, logger observability.Logger, metrics *observability.Metrics) *Engine {
	if converter == nil {
		converter = PassthroughConverter{}
	}
	return &Engine{
		directories: directories,
		jobs:        jobs,
		embedder:    embedder,
		lookup:      lookup,
		converter:   converter,
		logger:      logger,
		metrics:     metrics,
		running:     make(map[string]bool),
	}
}

// StartSync begins a sync job for directoryID. If a job is already
// running for this directory, it is a no-op that returns the id of the
// already-running job. Progress is reported on the returned channel,
// which is closed once the job reaches a terminal state. Client
// disconnection from the channel's reader never cancels the job — it
// runs against a context detached from ctx's cancellation, per spec.md
// §4.5.
func (e *Engine) StartSync(ctx context.Context, directoryID string) (jobID string, events <-chan Event, err error) {
	e.mu.Lock()
	if e.running[directoryID] {
		e.mu.Unlock()
		existing, findErr := e.latestRunningJob(ctx, directoryID)
		if findErr != nil {
			return "", nil, findErr
		}
		ch := make(chan Event)
		close(ch)
		return existing, ch, nil
	}
	e.running[directoryID] = true
	e.mu.Unlock()

	dir, dirErr := e.directories.GetDirectory(ctx, directoryID)
	if dirErr != nil {
		e.clearRunning(directoryID)
		return "", nil, dirErr
	}

	job, jobErr := e.jobs.CreateJob(ctx, directoryID)
	if jobErr != nil {
		e.clearRunning(directoryID)
		return "", nil, jobErr
	}

	ch := make(chan Event, 16)
	e.metrics.SetSyncJobsActive(1)
	go e.run(context.WithoutCancel(ctx), dir, job.ID, ch)

	return job.ID, ch, nil
}

func (e *Engine) latestRunningJob(ctx context.Context, directoryID string) (string, error) {
	jobs, err := e.jobs.IncompleteJobsForDirectory(ctx, directoryID)
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "", eeserrors.ErrNotFound
	}
	return jobs[0].ID, nil
}

func (e *Engine) clearRunning(directoryID string) {
	e.mu.Lock()
	delete(e.running, directoryID)
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, dir *UploadDirectory, jobID string, events chan<- Event) {
	defer close(events)
	defer e.clearRunning(dir.ID)
	defer e.metrics.SetSyncJobsActive(0)

	if err := e.jobs.markRunning(ctx, jobID); err != nil {
		e.fail(ctx, jobID, events, err)
		return
	}

	matcher, err := LoadIgnoreMatcher(dir.Path)
	if err != nil {
		e.fail(ctx, jobID, events, err)
		return
	}

	files, err := e.collect(dir.Path, matcher)
	if err != nil {
		e.fail(ctx, jobID, events, err)
		return
	}

	if err := e.jobs.setTotalFiles(ctx, jobID, len(files)); err != nil {
		e.fail(ctx, jobID, events, err)
		return
	}
	events <- Event{Type: EventCollected, TotalFiles: len(files)}

	var created, updated, failed int
	for i, relPath := range files {
		if cancelled, checkErr := e.jobCancelled(ctx, jobID); checkErr == nil && cancelled {
			return
		}

		current := i + 1
		events <- Event{Type: EventProcessing, Current: current, Total: len(files), File: relPath}

		wasCreated, processErr := e.processFile(ctx, dir, relPath)
		switch {
		case processErr != nil:
			failed++
			e.metrics.ObserveSyncFile("failed")
			e.logger.Error("sync: file processing failed", observability.Fields{"directory_id": dir.ID, "job_id": jobID, "file": relPath, "error": processErr.Error()})
			_ = e.jobs.recordFileOutcome(ctx, jobID, relPath, false, false, true, relPath)
			events <- Event{Type: EventFileFailed, Current: current, Total: len(files), File: relPath, Failed: true}
		case wasCreated:
			created++
			e.metrics.ObserveSyncFile("created")
			_ = e.jobs.recordFileOutcome(ctx, jobID, relPath, true, false, false, "")
			events <- Event{Type: EventFileCompleted, Current: current, Total: len(files), File: relPath, Created: true}
		default:
			updated++
			e.metrics.ObserveSyncFile("updated")
			_ = e.jobs.recordFileOutcome(ctx, jobID, relPath, false, true, false, "")
			events <- Event{Type: EventFileCompleted, Current: current, Total: len(files), File: relPath, Updated: true}
		}
	}

	if err := e.jobs.markTerminal(ctx, jobID, JobCompleted, ""); err != nil {
		e.logger.Error("sync: failed to mark job completed", observability.Fields{"job_id": jobID, "error": err.Error()})
	}
	_ = e.directories.MarkSynced(ctx, dir.ID)

	events <- Event{
		Type:           EventCompleted,
		DirectoryID:    dir.ID,
		FilesProcessed: created + updated + failed,
		FilesCreated:   created,
		FilesUpdated:   updated,
		FilesFailed:    failed,
		Message:        "sync completed",
	}
}

// jobCancelled polls the job's persisted status, the cooperative
// cancellation check spec.md §5 requires between files.
func (e *Engine) jobCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == JobCancelled, nil
}

func (e *Engine) fail(ctx context.Context, jobID string, events chan<- Event, err error) {
	e.logger.Error("sync: job failed", observability.Fields{"job_id": jobID, "error": err.Error()})
	_ = e.jobs.markTerminal(ctx, jobID, JobFailed, err.Error())
	events <- Event{Type: EventCompleted, Message: err.Error()}
}

// collect walks dir.Path and returns eligible, non-ignored file paths
// relative to the root, in deterministic (lexical walk) order.
func (e *Engine) collect(root string, matcher *IgnoreMatcher) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if matcher.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		eligible, eligErr := isEligibleFile(path, info)
		if eligErr != nil {
			return eligErr
		}
		if eligible {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// processFile reads, converts if needed, and embeds one file, reporting
// whether it was newly created (vs a re-sync update of an existing URI).
func (e *Engine) processFile(ctx context.Context, dir *UploadDirectory, relPath string) (created bool, err error) {
	fullPath := filepath.Join(dir.Path, relPath)
	raw, readErr := os.ReadFile(fullPath)
	if readErr != nil {
		return false, readErr
	}

	text := string(raw)
	if needsConversion(fullPath) {
		converted, convErr := e.converter.Convert(fullPath, raw)
		if convErr != nil {
			return false, convErr
		}
		text = converted
	}

	uri := "file://" + fullPath
	_, findErr := e.lookup.FindByURI(ctx, uri, dir.ModelName)
	existed := findErr == nil
	if findErr != nil && !errors.Is(findErr, eeserrors.ErrNotFound) {
		return false, findErr
	}

	if _, embedErr := e.embedder.CreateEmbedding(ctx, uri, text, dir.ModelName); embedErr != nil {
		return false, embedErr
	}
	return !existed, nil
}

// CancelIncompleteJobs implements spec.md §4.5's crash recovery: jobs left
// pending or running for directoryID (e.g. after a process restart) are
// explicitly moved to cancelled before a new job is accepted.
func (e *Engine) CancelIncompleteJobs(ctx context.Context, directoryID string) error {
	jobs, err := e.jobs.IncompleteJobsForDirectory(ctx, directoryID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := e.jobs.CancelJob(ctx, j.ID); err != nil {
			return err
		}
	}
	e.clearRunning(directoryID)
	return nil
}
