// Package httpapi provides the thin chi-routed HTTP binding described in
// SPEC_FULL.md §6: it maps the routes spec.md §6 names directly onto the
// Application Service, Embedding Repository, Model Registry, and
// Directory Sync Engine operations, following the teacher's handler
// struct plus JSON response helper pattern (apps/rag-loader/internal/api/handler.go).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
)

func respondJSON(w http.ResponseWriter, logger observability.Logger, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httpapi: failed to encode response", observability.Fields{"error": err.Error()})
	}
}

func respondError(w http.ResponseWriter, logger observability.Logger, message string, statusCode int) {
	respondJSON(w, logger, map[string]any{"error": message}, statusCode)
}

// respondErr dispatches on eeserrors' taxonomy to pick the right status
// code, per spec.md §7's HTTP mapping (restated in SPEC_FULL.md §7):
// Validation -> 400; Provider.Authentication -> 401; Provider.Model -> 404;
// Provider.RateLimit -> 429 with Retry-After echoed; Provider.Connection
// and Database.* -> 500.
func respondErr(w http.ResponseWriter, logger observability.Logger, err error) {
	var validationErr *eeserrors.ValidationError
	var providerErr *eeserrors.ProviderError
	var dbErr *eeserrors.DatabaseError
	var parseErr *eeserrors.ParseError

	switch {
	case errors.Is(err, eeserrors.ErrNotFound):
		respondError(w, logger, "not found", http.StatusNotFound)
	case errors.As(err, &validationErr):
		respondError(w, logger, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &providerErr):
		respondProviderErr(w, logger, providerErr)
	case errors.As(err, &dbErr):
		respondError(w, logger, "internal error", http.StatusInternalServerError)
	case errors.As(err, &parseErr):
		respondError(w, logger, "internal error", http.StatusInternalServerError)
	default:
		respondError(w, logger, err.Error(), http.StatusInternalServerError)
	}
}

// respondProviderErr maps a ProviderError's Kind to its distinct status
// code per spec.md §7, echoing RetryAfter as a Retry-After header on
// rate-limit responses.
func respondProviderErr(w http.ResponseWriter, logger observability.Logger, providerErr *eeserrors.ProviderError) {
	switch providerErr.Kind {
	case eeserrors.ProviderAuthentication:
		respondError(w, logger, providerErr.Error(), http.StatusUnauthorized)
	case eeserrors.ProviderModel:
		respondError(w, logger, providerErr.Error(), http.StatusNotFound)
	case eeserrors.ProviderRateLimit:
		if providerErr.RetryAfter != nil {
			seconds := int(providerErr.RetryAfter.Round(1e9).Seconds())
			if seconds < 0 {
				seconds = 0
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
		respondError(w, logger, providerErr.Error(), http.StatusTooManyRequests)
	default: // ProviderConnection
		respondError(w, logger, providerErr.Error(), http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
