package api

// Detection routes:
//
//	GET    /detections                → list, filterable by alertId/unread/favorited
//	GET    /detections/stats          → per-owner counters
//	POST   /detections/{id}/read      → mark read
//	POST   /detections/{id}/favorite  → set/clear favorite
//	POST   /detections/{id}/score     → fetch a relevance opinion (best-effort)
//	DELETE /detections/{id}

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"tenderwatch/alert-service/internal/detection"
	"tenderwatch/alert-service/internal/scoring"
)

// DetectionHandler serves the detections surface.
type DetectionHandler struct {
	store  *detection.Store
	scorer scoring.Scorer
}

// NewDetectionHandler returns a configured DetectionHandler.
func NewDetectionHandler(store *detection.Store, scorer scoring.Scorer) *DetectionHandler {
	return &DetectionHandler{store: store, scorer: scorer}
}

// RegisterRoutes mounts the detection routes on mux.
func (h *DetectionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/detections", h.list)
	mux.HandleFunc("/detections/stats", h.stats)
	mux.HandleFunc("/detections/", h.handleItem)
}

func (h *DetectionHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := detection.ListFilter{
		AlertID:     q.Get("alertId"),
		OnlyUnread:  q.Get("unread") == "true",
		OnlyStarred: q.Get("favorited") == "true",
	}
	out, err := h.store.List(r.Context(), uid, filter)
	if err != nil {
		log.Printf("[api] list detections error: %v", err)
		writeDomainError(w, err)
		return
	}
	jsonOK(w, out)
}

func (h *DetectionHandler) stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := h.store.OwnerStats(r.Context(), uid)
	if err != nil {
		log.Printf("[api] detection stats error: %v", err)
		writeDomainError(w, err)
		return
	}
	jsonOK(w, st)
}

func (h *DetectionHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	// Parse /detections/{id} or /detections/{id}/{action}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if r.Method == http.MethodDelete && len(parts) == 2 {
		if err := h.store.Delete(r.Context(), uid, parts[1]); err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, map[string]bool{"deleted": true})
		return
	}

	if r.Method != http.MethodPost || len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	detectionID, action := parts[1], parts[2]

	switch action {
	case "read":
		d, err := h.store.MarkRead(r.Context(), uid, detectionID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, d)

	case "favorite":
		var body struct {
			Favorited bool `json:"favorited"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		d, err := h.store.SetFavorite(r.Context(), uid, detectionID, body.Favorited)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonOK(w, d)

	case "score":
		h.score(w, r, uid, detectionID)

	default:
		jsonError(w, "unknown action "+action, http.StatusNotFound)
	}
}

// score asks the external scoring service for an opinion on a detection.
// A scoring failure is surfaced as 502 but changes nothing server side:
// the detection (and its listing) stay exactly as they were.
func (h *DetectionHandler) score(w http.ResponseWriter, r *http.Request, uid, detectionID string) {
	d, err := h.store.Get(r.Context(), uid, detectionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	op, err := h.scorer.Score(r.Context(), *d)
	if err != nil {
		log.Printf("[api] scoring failed for detection %s: %v", detectionID, err)
		jsonError(w, "scoring service unavailable, retry later", http.StatusBadGateway)
		return
	}
	if op == nil {
		jsonError(w, "scoring is not configured", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, op)
}
