package httpapi

import (
	"encoding/json"
	"net/http"

	"kopiad/internal/bridge"
	"kopiad/internal/engine"
	"kopiad/internal/engineapi"
	"kopiad/pkg/types"
)

// HTTPError allows lower layers to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps domain error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case engine.IsAlreadyRunning(err), bridge.IsAlreadyConnected(err):
		return http.StatusConflict
	case engine.IsNotRunning(err), bridge.IsNotConnected(err):
		return http.StatusNotFound
	case engine.IsNoPortAvailable(err):
		return http.StatusServiceUnavailable
	case engine.IsNotReady(err):
		return http.StatusGatewayTimeout
	case engine.IsSpawnFailed(err), bridge.IsHandshakeFailed(err), engineapi.IsParseError(err):
		return http.StatusBadGateway
	}
	if st := engineapi.HTTPStatus(err); st != 0 {
		return st
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and writes the JSON error payload.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
