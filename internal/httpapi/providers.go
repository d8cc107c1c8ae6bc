package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createProviderRequest struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	BaseURL  string          `json:"base_url"`
	APIKey   string          `json:"api_key"`
	Metadata json.RawMessage `json:"metadata"`
}

// handleCreateProvider binds POST /providers (spec.md §6's "Provider CRUD
// under /providers").
func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	var req createProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	var apiKey *string
	if req.APIKey != "" {
		apiKey = &req.APIKey
	}
	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	id, err := s.registry.CreateProvider(r.Context(), req.Name, req.Type, req.BaseURL, apiKey, metadata)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"id": id}, http.StatusOK)
}

// handleListProviders binds GET /providers.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	providers, err := s.registry.ListProviders(r.Context())
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, map[string]any{"items": providers, "count": len(providers)}, http.StatusOK)
}

// handleGetProvider binds GET /providers/{id}.
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}
	provider, err := s.registry.GetProvider(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	respondJSON(w, s.logger, provider, http.StatusOK)
}

// handleDeleteProvider binds DELETE /providers/{id}.
func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		unavailable(w, s.logger, "model registry")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}
	deleted, err := s.registry.DeleteProvider(r.Context(), id)
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
