package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"conti/internal/core"
	"conti/internal/parse"
	"conti/internal/services"
	"conti/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps domain and collaborator errors onto HTTP statuses. The
// parser's failure taxonomy keeps its machine-readable codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, parse.ErrNotAnExpense):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "not_an_expense"})
	case errors.Is(err, parse.ErrInvalidAmount):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "invalid_amount"})
	case errors.Is(err, parse.ErrParse):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "parse_error"})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrEmptyCategory,
		core.ErrEmptyUID,
		core.ErrEmptyGroupName,
		core.ErrNoSplits,
		core.ErrSplitMismatch,
		core.ErrSelfSettlement,
		core.ErrZeroDate,
		core.ErrDescriptionLong,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
