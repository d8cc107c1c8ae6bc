package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eeslabs/embedding-core/internal/service"
)

type compatibilityRequest struct {
	SourceModel string `json:"sourceModel"`
	TargetModel string `json:"targetModel"`
}

// handleCheckCompatibility binds POST /models/compatibility.
func (s *Server) handleCheckCompatibility(w http.ResponseWriter, r *http.Request) {
	var req compatibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.service.CheckCompatibility(r.Context(), req.SourceModel, req.TargetModel)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	if !res.Compatible && res.Reason != "" {
		respondJSON(w, s.logger, map[string]any{
			"compatible": false,
			"reason":     res.Reason,
		}, http.StatusNotFound)
		return
	}

	respondJSON(w, s.logger, map[string]any{
		"compatible":      res.Compatible,
		"reason":          res.Reason,
		"similarityScore": res.SimilarityScore,
	}, http.StatusOK)
}

type migrateRequest struct {
	FromModel string `json:"fromModel"`
	ToModel   string `json:"toModel"`
	Options   *struct {
		PreserveOriginal bool `json:"preserveOriginal"`
		BatchSize        *int `json:"batchSize"`
		ContinueOnError  bool `json:"continueOnError"`
	} `json:"options"`
}

// handleMigrate binds POST /models/migrate.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	opts := service.MigrateOptions{BatchSize: 100}
	if req.Options != nil {
		opts.PreserveOriginal = req.Options.PreserveOriginal
		opts.ContinueOnError = req.Options.ContinueOnError
		if req.Options.BatchSize != nil {
			opts.BatchSize = *req.Options.BatchSize
		}
	}

	res, err := s.service.MigrateEmbeddings(r.Context(), req.FromModel, req.ToModel, opts)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	respondJSON(w, s.logger, res, http.StatusOK)
}

// handleGetTaskTypes binds GET /models/task-types?model=NAME.
func (s *Server) handleGetTaskTypes(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		respondError(w, s.logger, "model is required", http.StatusBadRequest)
		return
	}

	taskTypes := s.service.GetTaskTypes(model)
	respondJSON(w, s.logger, map[string]any{
		"model_name": model,
		"task_types": taskTypes,
		"count":      len(taskTypes),
	}, http.StatusOK)
}

type createModelRequest struct {
	ProviderID  int64  `json:"provider_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Dimensions  int    `json:"dimensions"`
}

// handleCreateModel binds POST /models, one half of spec.md §6's "model
// CRUD under /models".
func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	var req createModelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	metadata, err := json.Marshal(map[string]any{"dimensions": req.Dimensions})
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	var displayName *string
	if req.DisplayName != "" {
		displayName = &req.DisplayName
	}

	id, err := s.registry.CreateModel(r.Context(), req.ProviderID, req.Name, displayName, metadata)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"id": id}, http.StatusOK)
}

// handleListModels binds GET /models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	providerID := parseIntOr(r.URL.Query().Get("provider_id"), 0)
	models, err := s.registry.ListModels(r.Context(), int64(providerID))
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"items": models, "count": len(models)}, http.StatusOK)
}

// handleGetModel binds GET /models/{id}.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}
	model, err := s.registry.GetModel(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, model, http.StatusOK)
}

// handleActivateModel binds POST /models/{id}/activate, spec.md §4.6's
// single-active-model transaction.
func (s *Server) handleActivateModel(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}
	if err := s.registry.ActivateModel(r.Context(), id); err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"activated": true}, http.StatusOK)
}

// handleDeleteModel binds DELETE /models/{id}.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}
	deleted, err := s.registry.DeleteModel(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	if !deleted {
		respondError(w, s.logger, "not found", http.StatusNotFound)
		return
	}
	respondJSON(w, s.logger, map[string]any{"deleted": true}, http.StatusOK)
}
