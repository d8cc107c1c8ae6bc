package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eeslabs/embedding-core/internal/providers"
)

type registerDirectoryRequest struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	ModelName   string   `json:"model_name"`
	TaskTypes   []string `json:"task_types"`
	Description string   `json:"description"`
}

// handleRegisterDirectory binds POST /upload-directories (spec.md §6's
// "upload-directory CRUD under /upload-directories").
func (s *Server) handleRegisterDirectory(w http.ResponseWriter, r *http.Request) {
	if s.directories == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	var req registerDirectoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	taskTypes := make([]providers.TaskType, len(req.TaskTypes))
	for i, t := range req.TaskTypes {
		taskTypes[i] = providers.TaskType(t)
	}
	var description *string
	if req.Description != "" {
		description = &req.Description
	}

	dir, err := s.directories.RegisterDirectory(r.Context(), req.Name, req.Path, req.ModelName, taskTypes, description)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, dir, http.StatusOK)
}

// handleListDirectories binds GET /upload-directories.
func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	if s.directories == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	dirs, err := s.directories.ListDirectories(r.Context())
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"items": dirs, "count": len(dirs)}, http.StatusOK)
}

// handleGetDirectory binds GET /upload-directories/{id}.
func (s *Server) handleGetDirectory(w http.ResponseWriter, r *http.Request) {
	if s.directories == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	dir, err := s.directories.GetDirectory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, dir, http.StatusOK)
}

// handleDeleteDirectory binds DELETE /upload-directories/{id}. Its sync
// jobs cascade at the storage layer (spec.md §3); this handler also
// clears the in-process running-job guard so a deleted directory's id
// can't wedge the engine.
func (s *Server) handleDeleteDirectory(w http.ResponseWriter, r *http.Request) {
	if s.directories == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	id := chi.URLParam(r, "id")
	deleted, err := s.directories.DeleteDirectory(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	if !deleted {
		respondError(w, s.logger, "not found", http.StatusNotFound)
		return
	}
	if s.engine != nil {
		_ = s.engine.CancelIncompleteJobs(r.Context(), id)
	}
	respondJSON(w, s.logger, map[string]any{"deleted": true}, http.StatusOK)
}

// handleStartSync binds POST /upload-directories/{id}/sync: starts the
// job and returns its id immediately without streaming progress. The
// event channel is drained in the background so the job runs to
// completion even though nobody is reading from the stream endpoint.
func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	id := chi.URLParam(r, "id")
	jobID, events, err := s.engine.StartSync(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	go func() {
		for range events {
		}
	}()
	respondJSON(w, s.logger, map[string]any{"job_id": jobID}, http.StatusAccepted)
}

// handleSyncStream binds GET /upload-directories/{id}/sync/stream: starts
// (or attaches to) a sync job and forwards its progress as server-sent
// events, per spec.md §4.5's event names. A client disconnecting here
// never cancels the underlying job — see sync.Engine.StartSync.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	id := chi.URLParam(r, "id")
	_, events, err := s.engine.StartSync(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, s.logger, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, marshalErr := json.Marshal(ev)
		if marshalErr != nil {
			continue
		}
		if _, writeErr := w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(payload) + "\n\n")); writeErr != nil {
			return
		}
		flusher.Flush()
	}
}

// handleListJobs binds GET /upload-directories/{id}/sync/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		unavailable(w, s.logger, "directory sync")
		return
	}
	id := chi.URLParam(r, "id")
	jobs, err := s.jobs.ListJobsForDirectory(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"items": jobs, "count": len(jobs)}, http.StatusOK)
}
