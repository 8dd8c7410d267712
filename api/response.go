package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/capacity"
)

// Commit outcomes reported in the "outcome" field.
const (
	OutcomeCommitted         = "committed"
	OutcomeConflict          = "conflict"
	OutcomeInsufficientLimit = "insufficient_limit"
)

type errorResponse struct {
	Error string      `json:"error"`
	Items []itemError `json:"items,omitempty"`
}

type itemError struct {
	Index      int    `json:"index"`
	ResourceID string `json:"resource_id"`
	Error      string `json:"error"`
}

type commitResponse struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps an engine error to a status code and body.
func writeEngineError(w http.ResponseWriter, err error) {
	var multi *capacity.MultiError
	if errors.As(err, &multi) {
		body := errorResponse{Error: "quota batch rejected"}
		for _, e := range multi.Errors {
			var item *capacity.ItemError
			if errors.As(e, &item) {
				body.Items = append(body.Items, itemError{
					Index:      item.Index,
					ResourceID: item.ResourceID,
					Error:      item.Err.Error(),
				})
			}
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}

	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, capacity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, capacity.ErrInsufficientLimit):
		return http.StatusUnprocessableEntity
	case capacity.IsNotFound(err):
		return http.StatusNotFound
	case capacity.IsInputError(err):
		return http.StatusBadRequest
	case capacity.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
