// Package respond writes the JSON envelopes shared by every console handler.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/upstream"
)

// Log receives encoding failures. Tests swap it for an observer.
var Log = logger.NewLogger("respond")

const (
	CodeInvalidRequest      = "invalid_request"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInternal            = "internal_error"
)

// ErrorBody is the error envelope. Retryable tells the console to render
// a retry button next to the alert.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
	Redirect  string `json:"redirect,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		Log.Error("Error marshaling JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: message, Code: code})
}

// Upstream maps an API client error onto the console's error envelope.
func Upstream(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, CodeUnauthorized, "Session expired")
	case errors.Is(err, upstream.ErrNotFound):
		Error(w, http.StatusNotFound, CodeNotFound, "Not found")
	default:
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
			Error(w, http.StatusForbidden, CodeForbidden, "You don't have access to this resource")
			return
		}
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			Error(w, apiErr.Status, CodeInvalidRequest, apiErr.Message)
			return
		}
		JSON(w, http.StatusBadGateway, ErrorBody{
			Error:     "The Calcutta API could not be reached",
			Code:      CodeUpstreamUnavailable,
			Retryable: true,
		})
	}
}
