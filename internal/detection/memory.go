package detection

import (
	"context"
	"sync"
	"time"

	"tenderwatch/alert-service/internal/model"
)

// MemoryRecorder is an in-process Recorder with the same idempotence
// semantics as the SQL store. It backs the digest runner's tests and any
// feed-less deployment mode.
type MemoryRecorder struct {
	mu   sync.Mutex
	seen map[string]struct{} // ownerID + "\x00" + dedupe key
	rows []model.Detection
}

// NewMemoryRecorder returns an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{seen: make(map[string]struct{})}
}

// RecordIfNew inserts unless the (owner, reference) pair was seen before.
func (m *MemoryRecorder) RecordIfNew(_ context.Context, ownerID, alertID string, l model.ListingCandidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ownerID + "\x00" + DedupeKey(l)
	if _, dup := m.seen[key]; dup {
		return false, nil
	}
	m.seen[key] = struct{}{}
	m.rows = append(m.rows, model.Detection{
		UserID:      ownerID,
		AlertID:     alertID,
		ListingID:   l.ID,
		Reference:   DedupeKey(l),
		Title:       l.Title,
		Client:      l.Client,
		Amount:      l.Amount,
		Location:    l.Location,
		Deadline:    l.Deadline,
		ServiceType: l.ServiceType,
		SourceURL:   l.SourceURL,
		DetectedAt:  time.Now().UTC(),
	})
	return true, nil
}

// Detections returns a copy of everything recorded so far.
func (m *MemoryRecorder) Detections() []model.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Detection, len(m.rows))
	copy(out, m.rows)
	return out
}
