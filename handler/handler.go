// Package handler holds response helpers shared by the HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mager/cochlea/apperr"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its status and writes it as JSON. Server side
// failures are logged.
func WriteError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "kind", apperr.KindOf(err), "error", err)
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Kind: apperr.KindOf(err)})
}
