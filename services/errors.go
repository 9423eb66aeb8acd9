package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Domain errors. Endpoints map these to HTTP statuses with stable,
// machine-readable reason strings; anything unrecognized becomes a 500.
var (
	ErrUserExists         = errors.New("user_exists")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrOAuthOnly          = errors.New("oauth_only")
	ErrTokenInvalid       = errors.New("invalid_token")
	ErrTokenExpired       = errors.New("token_expired")
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation_error")
	ErrUpstream           = errors.New("upstream_error")
)

// writeJSON writes v as a JSON response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a machine-readable error body
func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// writeDomainError maps a domain error to its HTTP status. Unknown errors are
// logged and reported as a generic 500 without leaking internal detail.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserExists),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrOAuthOnly),
		errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusForbidden, ErrTokenInvalid.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrUpstream):
		writeError(w, http.StatusBadGateway, ErrUpstream.Error())
	default:
		slog.Error("Unexpected error", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
