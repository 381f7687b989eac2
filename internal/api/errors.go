// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mesaops/mesad/internal/domain/session/manager"
	"github.com/mesaops/mesad/internal/token"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorMsg writes a JSON error body with the given status code.
func writeErrorMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, "session not found")
	case errors.Is(err, manager.ErrTerminal):
		writeErrorMsg(w, http.StatusConflict, "session is no longer active")
	case errors.Is(err, token.ErrInvalidToken):
		writeErrorMsg(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, token.ErrTokenExpired):
		writeErrorMsg(w, http.StatusGone, "token expired")
	default:
		writeErrorMsg(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
