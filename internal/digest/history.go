package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SendRecord is one digest send-history entry.
type SendRecord struct {
	SentAt          time.Time
	DigestType      string // MORNING | EVENING
	AlertsTriggered int
	MarketsIncluded int
	Recipient       string
}

// HistoryStore persists send-history entries.
type HistoryStore interface {
	RecordSend(ctx context.Context, r SendRecord) error
}

// PGHistory is the PostgreSQL HistoryStore.
type PGHistory struct {
	pool *pgxpool.Pool
}

// NewPGHistory returns a configured PGHistory.
func NewPGHistory(pool *pgxpool.Pool) *PGHistory {
	return &PGHistory{pool: pool}
}

// RecordSend implements HistoryStore.
func (h *PGHistory) RecordSend(ctx context.Context, r SendRecord) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO digest_history
		   (sent_at, digest_type, alerts_triggered, markets_included, recipient)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.SentAt, r.DigestType, r.AlertsTriggered, r.MarketsIncluded, r.Recipient,
	)
	if err != nil {
		return fmt.Errorf("insert digest history: %w", err)
	}
	return nil
}
