// Package api wires the HTTP surface of spec.md §6 onto the engine
// packages (record, permission, pathresolve, ratelimit, cache, blob,
// host, auth): one mux, one handler per route family, errors mapped from
// internal/corerr codes to HTTP status at this layer only.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/webpods-org/webpods/internal/corerr"
)

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type ReadinessFunc func(r *http.Request) error

func ReadyHandler(check ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := check(r); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not-ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// writeError maps a corerr.Code to an HTTP status and writes the standard
// {error, message} body, per spec.md §7's propagation rule: internal
// layers return a tagged result, only the HTTP layer maps it to a status.
func writeError(w http.ResponseWriter, err error) {
	code := corerr.CodeOf(err)
	status := statusForCode(code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}

func statusForCode(code corerr.Code) int {
	switch code {
	case corerr.Unauthorized, corerr.InvalidToken, corerr.TokenExpired, corerr.PodMismatch:
		return http.StatusUnauthorized
	case corerr.Forbidden:
		return http.StatusForbidden
	case corerr.NotFound, corerr.PodNotFound, corerr.StreamNotFound, corerr.RecordNotFound:
		return http.StatusNotFound
	case corerr.PodExists, corerr.StreamExists, corerr.NameExists, corerr.NameConflict:
		return http.StatusConflict
	case corerr.InvalidInput, corerr.InvalidName, corerr.InvalidPodID, corerr.InvalidIndex,
		corerr.InvalidContent, corerr.ValidationError:
		return http.StatusBadRequest
	case corerr.ContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case corerr.RateLimited:
		return http.StatusTooManyRequests
	case corerr.Database, corerr.Storage, corerr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
