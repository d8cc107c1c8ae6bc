package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/repository"
	"github.com/eeslabs/embedding-core/internal/service"
)

type createEmbeddingRequest struct {
	URI       string   `json:"uri"`
	Text      string   `json:"text"`
	ModelName string   `json:"model_name"`
	TaskTypes []string `json:"task_types"`
	Title     string   `json:"title"`
}

// handleCreateEmbedding binds POST /embeddings (spec.md §6).
func (s *Server) handleCreateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req createEmbeddingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.service.CreateEmbedding(r.Context(), req.URI, req.Text, req.ModelName)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	respondJSON(w, s.logger, map[string]any{
		"id":         res.ID,
		"uri":        res.URI,
		"model_name": res.ResolvedModelName,
		"message":    res.Message,
	}, http.StatusOK)
}

type createBatchEmbeddingsRequest struct {
	Texts []struct {
		URI   string `json:"uri"`
		Text  string `json:"text"`
		Title string `json:"title"`
	} `json:"texts"`
	ModelName string `json:"model_name"`
}

// handleCreateBatchEmbeddings binds POST /embeddings/batch.
func (s *Server) handleCreateBatchEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req createBatchEmbeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	items := make([]service.BatchItem, len(req.Texts))
	for i, t := range req.Texts {
		items[i] = service.BatchItem{URI: t.URI, Text: t.Text}
	}

	res, err := s.service.CreateBatchEmbeddings(r.Context(), items, req.ModelName)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	respondJSON(w, s.logger, map[string]any{
		"results":    res.Results,
		"total":      res.Total,
		"successful": res.Successful,
		"failed":     res.Failed,
	}, http.StatusOK)
}

// handleListEmbeddings binds GET /embeddings.
func (s *Server) handleListEmbeddings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.FindAllParams{
		URI:       q.Get("uri"),
		ModelName: q.Get("model_name"),
		Page:      parseIntOr(q.Get("page"), 1),
		Limit:     parseIntOr(q.Get("limit"), 20),
	}

	page, err := s.repo.FindAll(r.Context(), params)
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	respondJSON(w, s.logger, map[string]any{
		"items":       page.Items,
		"total":       page.Total,
		"page":        page.PageNum,
		"limit":       page.Limit,
		"total_pages": page.TotalPages,
		"has_next":    page.HasNext,
		"has_prev":    page.HasPrev,
	}, http.StatusOK)
}

// handleGetEmbeddingByURI binds GET /embeddings/{uri}. The route (spec.md
// §6) carries only a uri, but repository.FindByURI requires an exact
// match on both uri and model_name; an optional ?model_name= query
// parameter resolves that when the caller knows which model's row they
// want, otherwise the first row whose uri matches exactly is returned
// (see the "GET /embeddings/{uri} model resolution" Open Question
// Decision).
func (s *Server) handleGetEmbeddingByURI(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	modelName := r.URL.Query().Get("model_name")

	if modelName != "" {
		e, err := s.repo.FindByURI(r.Context(), uri, modelName)
		if err != nil {
			respondErr(w, s.logger, err)
			return
		}
		respondJSON(w, s.logger, e, http.StatusOK)
		return
	}

	page, err := s.repo.FindAll(r.Context(), repository.FindAllParams{URI: uri, Page: 1, Limit: 100})
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}
	for _, e := range page.Items {
		if e.URI == uri {
			respondJSON(w, s.logger, e, http.StatusOK)
			return
		}
	}
	respondErr(w, s.logger, eeserrors.ErrNotFound)
}

// handleDeleteEmbedding binds DELETE /embeddings/{id}.
func (s *Server) handleDeleteEmbedding(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(w, s.logger, "id must be an integer", http.StatusBadRequest)
		return
	}

	deleted, err := s.repo.DeleteByID(r.Context(), id)
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

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
