package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kkkkikiki/referral/internal/service"
)

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a service error to its HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	var storeErr *service.StoreError
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &storeErr) && storeErr.Retryable:
		return http.StatusInternalServerError, "store temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// fail writes the JSON error for err and logs it at a level matching its kind.
// attrs identify the pair or resource the request was about.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...any) {
	status, msg := statusFor(err)
	attrs = append(attrs, "op", op, "error", err, "request_id", RequestIDFromContext(r.Context()))

	switch status {
	case http.StatusBadRequest:
		s.logger.DebugContext(r.Context(), "rejected request", attrs...)
	case http.StatusNotFound:
		s.logger.DebugContext(r.Context(), "resource not found", attrs...)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", attrs...)
	}

	resp := errorResponse{Error: msg}
	if service.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
		resp.Retryable = true
	}
	writeJSON(w, status, resp)
}

// flexID accepts a JSON number or a numeric string.
type flexID int64

func (id *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.New("id must be an integer")
		}
		*id = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be an integer")
	}
	*id = flexID(n)
	return nil
}

// parseID reads a positive integer id from a query or path value.
func parseID(name, raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", service.ErrValidation, name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", service.ErrValidation, name)
	}
	return n, nil
}
