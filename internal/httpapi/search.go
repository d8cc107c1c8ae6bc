package httpapi

import (
	"net/http"

	"github.com/eeslabs/embedding-core/internal/service"
)

type searchRequest struct {
	Query     string   `json:"query"`
	ModelName string   `json:"model_name"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
	Metric    string   `json:"metric"`
}

// handleSearch binds POST /search (spec.md §6).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.service.SearchEmbeddings(r.Context(), service.SearchRequest{
		Query:     req.Query,
		ModelName: req.ModelName,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Metric:    req.Metric,
	})
	if err != nil {
		respondErr(w, s.logger, err)
		return
	}

	respondJSON(w, s.logger, map[string]any{
		"results":         res.Results,
		"query":           res.Query,
		"effective_model": res.EffectiveModel,
		"metric":          res.Metric,
		"count":           res.Count,
		"threshold":       res.Threshold,
	}, http.StatusOK)
}
