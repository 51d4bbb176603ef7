// Package api implements the HTTP handlers for the alert service.
//
// All routes expect an x-user-id header forwarded by the gateway; the
// collection-session routes additionally accept x-operator-email.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tenderwatch/alert-service/internal/alert"
	"tenderwatch/alert-service/internal/collect"
	"tenderwatch/alert-service/internal/detection"
)

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeDomainError maps engine errors onto HTTP status codes: validation
// to 400, missing rows to 404, invalid transitions and live-session
// conflicts to 409, everything else to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve  *alert.ValidationError
		cve *collect.ValidationError
		se  *collect.StateError
		ase *collect.AlreadyActiveSessionError
	)
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.As(err, &cve):
		jsonError(w, cve.Msg, http.StatusBadRequest)
	case errors.As(err, &se):
		jsonError(w, se.Msg, http.StatusConflict)
	case errors.As(err, &ase):
		jsonError(w, ase.Error(), http.StatusConflict)
	case errors.Is(err, alert.ErrNotFound),
		errors.Is(err, detection.ErrNotFound),
		errors.Is(err, collect.ErrNotFound),
		errors.Is(err, collect.ErrNoActiveSession):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// userID extracts the authenticated user forwarded by the gateway.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("x-user-id")
	if id == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}
