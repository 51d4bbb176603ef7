package api

// Alert routes:
//
//	GET    /alerts        → list the caller's alerts
//	POST   /alerts        → create an alert
//	PUT    /alerts/{id}   → update an alert
//	DELETE /alerts/{id}   → delete an alert

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"tenderwatch/alert-service/internal/alert"
	"tenderwatch/alert-service/internal/model"
)

// AlertHandler serves the alert CRUD surface.
type AlertHandler struct {
	svc *alert.Service
}

// NewAlertHandler returns a configured AlertHandler.
func NewAlertHandler(svc *alert.Service) *AlertHandler {
	return &AlertHandler{svc: svc}
}

// RegisterRoutes mounts the alert routes on mux.
func (h *AlertHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/alerts", h.handleCollection)
	mux.HandleFunc("/alerts/", h.handleItem)
}

func (h *AlertHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		alerts, err := h.svc.List(r.Context(), uid)
		if err != nil {
			log.Printf("[api] list alerts error: %v", err)
			writeDomainError(w, err)
			return
		}
		jsonOK(w, alerts)

	case http.MethodPost:
		var body model.Alert
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		created, err := h.svc.Create(r.Context(), uid, body)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, created)

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AlertHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	alertID := parts[1]

	switch r.Method {
	case http.MethodPut:
		var body model.Alert
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		updated, err := h.svc.Update(r.Context(), uid, alertID, body)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, updated)

	case http.MethodDelete:
		if err := h.svc.Delete(r.Context(), uid, alertID); err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, map[string]bool{"deleted": true})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
