package api

// Collection-session routes:
//
//	POST /sessions                                      → start a session
//	POST /sessions/resume                               → resume the operator's live session
//	GET  /sessions/{id}                                 → session snapshot (any state)
//	POST /sessions/{id}/pause
//	POST /sessions/{id}/sources/{dsId}/start
//	POST /sessions/{id}/sources/{dsId}/complete         → body: {notes}
//	POST /sessions/{id}/sources/{dsId}/skip             → body: {notes, confirmed}
//	POST /sessions/{id}/sources/{dsId}/listings         → duplicate-checked submit
//	POST /listings/check                                → duplicate pre-check only

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"tenderwatch/alert-service/internal/collect"
	"tenderwatch/alert-service/internal/model"
)

// SessionHandler serves the collection-session surface.
type SessionHandler struct {
	svc *collect.Service
}

// NewSessionHandler returns a configured SessionHandler.
func NewSessionHandler(svc *collect.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes mounts the session routes on mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.start)
	mux.HandleFunc("/sessions/resume", h.resume)
	mux.HandleFunc("/sessions/", h.handleSession)
	mux.HandleFunc("/listings/check", h.checkListing)
}

// operatorEmail extracts the operator identity for session routes.
func operatorEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := r.Header.Get("x-operator-email")
	if email == "" {
		jsonError(w, "missing x-operator-email header", http.StatusUnauthorized)
		return "", false
	}
	return email, true
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email, ok := operatorEmail(w, r)
	if !ok {
		return
	}

	snap, err := h.svc.Start(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonOK(w, snap)
}

func (h *SessionHandler) resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email, ok := operatorEmail(w, r)
	if !ok {
		return
	}

	snap, err := h.svc.Resume(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonOK(w, snap)
}

func (h *SessionHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		snap, err := h.svc.Get(r.Context(), parts[1])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, snap)

	case len(parts) == 3 && parts[2] == "pause" && r.Method == http.MethodPost:
		snap, err := h.svc.Pause(r.Context(), parts[1])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, snap)

	case len(parts) == 5 && parts[2] == "sources" && r.Method == http.MethodPost:
		h.sourceAction(w, r, parts[1], parts[3], parts[4])

	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

func (h *SessionHandler) sourceAction(w http.ResponseWriter, r *http.Request, sessionID, dataSourceID, action string) {
	switch action {
	case "start":
		snap, err := h.svc.StartDataSource(r.Context(), sessionID, dataSourceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, snap)

	case "complete":
		var body struct {
			Notes string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		snap, err := h.svc.CompleteDataSource(r.Context(), sessionID, dataSourceID, body.Notes)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, snap)

	case "skip":
		var body struct {
			Notes     string `json:"notes"`
			Confirmed bool   `json:"confirmed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		// Skipping throws away any listings already counted for the
		// source, so the client must confirm explicitly.
		if !body.Confirmed {
			jsonError(w, "skip requires confirmed=true", http.StatusBadRequest)
			return
		}
		snap, err := h.svc.SkipDataSource(r.Context(), sessionID, dataSourceID, body.Notes)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, snap)

	case "listings":
		h.submitListing(w, r, sessionID, dataSourceID)

	default:
		jsonError(w, "unknown action "+action, http.StatusNotFound)
	}
}

type listingBody struct {
	Listing model.ListingCandidate `json:"listing"`
	Force   bool                   `json:"force"`
}

func (h *SessionHandler) submitListing(w http.ResponseWriter, r *http.Request, sessionID, dataSourceID string) {
	var body listingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SubmitListing(r.Context(), sessionID, dataSourceID, body.Listing, body.Force)
	if err != nil {
		if errors.Is(err, collect.ErrDuplicateCheckUnavailable) {
			log.Printf("[api] %v", err)
			jsonError(w, "duplicate check unavailable, retry", http.StatusServiceUnavailable)
			return
		}
		writeDomainError(w, err)
		return
	}
	jsonOK(w, res)
}

// checkListing runs the duplicate check without inserting anything. Used
// by the entry form to warn the operator as they type.
func (h *SessionHandler) checkListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Listing model.ListingCandidate `json:"listing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	matches, err := h.svc.CheckDuplicates(r.Context(), body.Listing)
	if err != nil {
		log.Printf("[api] %v", err)
		jsonError(w, "duplicate check unavailable, retry", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, map[string]any{"duplicates": matches})
}
