// Package detection persists alert matches. The store enforces the
// at-most-one-detection-per-(owner, reference) invariant: a listing is only
// ever surfaced once to a given owner, first alert wins.
package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tenderwatch/alert-service/internal/model"
)

// Recorder is the idempotent-insert contract the digest runner depends on.
// Implementations must suppress a second insert for the same (owner,
// dedupe-key) pair, including later candidates inside the same batch.
type Recorder interface {
	RecordIfNew(ctx context.Context, ownerID, alertID string, listing model.ListingCandidate) (inserted bool, err error)
}

// DedupeKey returns the value the owner-level uniqueness is keyed on: the
// listing's official reference when it has one, otherwise its id (a listing
// without a reference can only ever collide with itself).
func DedupeKey(l model.ListingCandidate) string {
	if l.Reference != "" {
		return l.Reference
	}
	return l.ID
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the PostgreSQL-backed Recorder plus the read/flag surface used
// by the detections API.
type Store struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewStore returns a configured Store.
func NewStore(pool *pgxpool.Pool, rdb *redis.Client) *Store {
	return &Store{pool: pool, rdb: rdb}
}

// RecordIfNew inserts a detection unless the owner already has one for the
// listing's reference. Uniqueness is enforced by the detections
// (user_id, reference) unique constraint, so losing a race to a concurrent
// alert is not an error — the insert simply reports inserted=false.
func (s *Store) RecordIfNew(ctx context.Context, ownerID, alertID string, l model.ListingCandidate) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO detections
		   (user_id, alert_id, listing_id, reference, title, client, amount,
		    location, deadline, service_type, source_url, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::service_type, $11, NOW())
		 ON CONFLICT (user_id, reference) DO NOTHING`,
		ownerID, alertID, l.ID, DedupeKey(l), l.Title, l.Client, l.Amount,
		l.Location, l.Deadline, string(l.ServiceType), l.SourceURL,
	)
	if err != nil {
		return false, fmt.Errorf("recordIfNew insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	// Notify listeners (non-fatal).
	event, _ := json.Marshal(map[string]string{
		"type":      "EVENT_DETECTION_CREATED",
		"userId":    ownerID,
		"alertId":   alertID,
		"listingId": l.ID,
		"reference": DedupeKey(l),
	})
	if err := s.rdb.Publish(ctx, "EVENT_DETECTION_CREATED", event).Err(); err != nil {
		slog.Warn("publish EVENT_DETECTION_CREATED failed", "err", err)
	}

	return true, nil
}

// ListFilter narrows List results. Nil fields are not applied.
type ListFilter struct {
	AlertID     string
	OnlyUnread  bool
	OnlyStarred bool
}

const detectionColumns = `id, user_id, COALESCE(alert_id::text, ''), COALESCE(listing_id::text, ''), reference,
	 title, client, amount, location, deadline, COALESCE(service_type::text, ''),
	 COALESCE(source_url, ''), detected_at, is_read, is_favorited`

// List returns the owner's detections, newest first.
func (s *Store) List(ctx context.Context, ownerID string, f ListFilter) ([]model.Detection, error) {
	q := `SELECT ` + detectionColumns + ` FROM detections WHERE user_id = $1`
	args := []any{ownerID}
	if f.AlertID != "" {
		args = append(args, f.AlertID)
		q += fmt.Sprintf(" AND alert_id = $%d", len(args))
	}
	if f.OnlyUnread {
		q += " AND is_read = false"
	}
	if f.OnlyStarred {
		q += " AND is_favorited = true"
	}
	q += " ORDER BY detected_at DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

// Get returns one detection by id, validating ownership.
func (s *Store) Get(ctx context.Context, ownerID, detectionID string) (*model.Detection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+detectionColumns+` FROM detections WHERE id = $1 AND user_id = $2`,
		detectionID, ownerID,
	)
	d, err := scanDetection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get detection: %w", err)
	}
	return d, nil
}

// MarkRead flags a detection as read.
func (s *Store) MarkRead(ctx context.Context, ownerID, detectionID string) (*model.Detection, error) {
	return s.setFlag(ctx, ownerID, detectionID, "is_read", true)
}

// SetFavorite sets or clears the favorite flag.
func (s *Store) SetFavorite(ctx context.Context, ownerID, detectionID string, favorited bool) (*model.Detection, error) {
	return s.setFlag(ctx, ownerID, detectionID, "is_favorited", favorited)
}

func (s *Store) setFlag(ctx context.Context, ownerID, detectionID, column string, v bool) (*model.Detection, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE detections SET `+column+` = $1
		 WHERE id = $2 AND user_id = $3
		 RETURNING `+detectionColumns,
		v, detectionID, ownerID,
	)
	d, err := scanDetection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update detection flag: %w", err)
	}
	return d, nil
}

// Delete removes a detection. Returns ErrNotFound when the row is missing
// or owned by someone else.
func (s *Store) Delete(ctx context.Context, ownerID, detectionID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM detections WHERE id = $1 AND user_id = $2`,
		detectionID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete detection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats is the per-owner read-only summary.
type Stats struct {
	Total     int `json:"total"`
	Unread    int `json:"unread"`
	Favorited int `json:"favorited"`
}

// OwnerStats aggregates the owner's detection counts.
func (s *Store) OwnerStats(ctx context.Context, ownerID string) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE is_read = false),
		        COUNT(*) FILTER (WHERE is_favorited = true)
		 FROM detections WHERE user_id = $1`,
		ownerID,
	).Scan(&st.Total, &st.Unread, &st.Favorited)
	if err != nil {
		return nil, fmt.Errorf("detection stats: %w", err)
	}
	return &st, nil
}

// ─── Scan helpers ────────────────────────────────────────────────────────────

func scanDetections(rows pgx.Rows) ([]model.Detection, error) {
	out := make([]model.Detection, 0)
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDetection(row pgx.Row) (*model.Detection, error) {
	var d model.Detection
	var serviceType string
	if err := row.Scan(
		&d.ID, &d.UserID, &d.AlertID, &d.ListingID, &d.Reference,
		&d.Title, &d.Client, &d.Amount, &d.Location, &d.Deadline, &serviceType,
		&d.SourceURL, &d.DetectedAt, &d.IsRead, &d.IsFavorited,
	); err != nil {
		return nil, err
	}
	d.ServiceType = model.ServiceType(serviceType)
	return &d, nil
}

// ErrNotFound is returned when a detection is missing or does not belong
// to the caller.
var ErrNotFound = fmt.Errorf("detection not found")
