package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tenderwatch/alert-service/internal/dedup"
	"tenderwatch/alert-service/internal/feed"
	"tenderwatch/alert-service/internal/model"
)

const (
	// dedupWindow bounds how many recent listings one duplicate check
	// scans. Covers the union of feed and manual entries.
	dedupWindow = 500

	// dupCheckTimeout bounds the wait on the duplicate-check query so a
	// slow store never blocks manual entry indefinitely; the operator
	// retries on failure.
	dupCheckTimeout = 5 * time.Second
)

// Snapshot is a session with its progress rows, ordered by display order.
type Snapshot struct {
	Session  model.CollectionSession `json:"session"`
	Progress []model.SessionProgress `json:"progress"`
}

// SubmitResult is the outcome of one listing submission. When Inserted is
// false and Duplicates is non-empty, the operator must confirm ("insert
// anyway") and resubmit with force.
type SubmitResult struct {
	Inserted   bool                    `json:"inserted"`
	Listing    *model.ListingCandidate `json:"listing,omitempty"`
	Duplicates []model.DuplicateMatch  `json:"duplicates"`
}

// Service drives collection sessions. All state lives on the session and
// progress rows, never in process memory, so any instance can resume any
// session.
type Service struct {
	pool     *pgxpool.Pool
	rdb      *redis.Client
	listings *feed.PGProvider
}

// NewService returns a configured Service.
func NewService(pool *pgxpool.Pool, rdb *redis.Client, listings *feed.PGProvider) *Service {
	return &Service{pool: pool, rdb: rdb, listings: listings}
}

// ─── Session lifecycle ───────────────────────────────────────────────────────

// Start creates a new session for the operator with one not_started row per
// active data source in display order. At most one live session per
// operator: an existing paused or in-progress session is reported as a
// typed AlreadyActiveSessionError rather than silently reused.
func (s *Service) Start(ctx context.Context, operatorEmail string) (*Snapshot, error) {
	if operatorEmail == "" {
		return nil, &StateError{Msg: "operator email is required"}
	}

	var existingID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM collection_sessions
		 WHERE operator_email = $1 AND status IN ('in_progress', 'paused')
		 ORDER BY started_at
		 LIMIT 1`,
		operatorEmail,
	).Scan(&existingID)
	if err == nil {
		return nil, &AlreadyActiveSessionError{SessionID: existingID}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check active session: %w", err)
	}

	sources, err := s.activeDataSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &StateError{Msg: "no active data source to collect from"}
	}

	sessionID := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin start session: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO collection_sessions
		   (id, operator_email, status, started_at, total_data_sources, current_data_source_id)
		 VALUES ($1, $2, 'in_progress', $3, $4, $5)`,
		sessionID, operatorEmail, now, len(sources), sources[0].ID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	for _, ds := range sources {
		_, err = tx.Exec(ctx,
			`INSERT INTO session_progress (session_id, data_source_id, status)
			 VALUES ($1, $2, 'not_started')`,
			sessionID, ds.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert progress row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit start session: %w", err)
	}

	log.Printf("[collect] Session %s started by %s with %d data source(s)", sessionID, operatorEmail, len(sources))
	return s.Get(ctx, sessionID)
}

// Resume looks up the operator's paused or in-progress session and puts it
// back in progress. ErrNoActiveSession when the operator has none.
func (s *Service) Resume(ctx context.Context, operatorEmail string) (*Snapshot, error) {
	var sessionID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM collection_sessions
		 WHERE operator_email = $1 AND status IN ('in_progress', 'paused')
		 ORDER BY started_at
		 LIMIT 1`,
		operatorEmail,
	).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("find resumable session: %w", err)
	}

	return s.transition(ctx, sessionID, "", func(sess *model.CollectionSession, _ []model.SessionProgress) error {
		return Resume(sess)
	})
}

// Pause suspends an in-progress session.
func (s *Service) Pause(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.transition(ctx, sessionID, "", func(sess *model.CollectionSession, _ []model.SessionProgress) error {
		return Pause(sess)
	})
}

// Get returns the session snapshot for read-only consumption. Valid in any
// state, including completed.
func (s *Service) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, rows, err := s.load(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: *sess, Progress: rows}, nil
}

// ─── Data source transitions ─────────────────────────────────────────────────

// StartDataSource marks a data source as being worked on.
func (s *Service) StartDataSource(ctx context.Context, sessionID, dataSourceID string) (*Snapshot, error) {
	now := time.Now().UTC()
	return s.transition(ctx, sessionID, dataSourceID, func(sess *model.CollectionSession, rows []model.SessionProgress) error {
		return StartDataSource(sess, rows, dataSourceID, now)
	})
}

// CompleteDataSource closes out a data source with optional notes.
func (s *Service) CompleteDataSource(ctx context.Context, sessionID, dataSourceID, notes string) (*Snapshot, error) {
	now := time.Now().UTC()
	return s.transition(ctx, sessionID, dataSourceID, func(sess *model.CollectionSession, rows []model.SessionProgress) error {
		return CompleteDataSource(sess, rows, dataSourceID, notes, now)
	})
}

// SkipDataSource closes out a data source without collecting from it. The
// handler requires an explicit confirmation flag before calling this.
func (s *Service) SkipDataSource(ctx context.Context, sessionID, dataSourceID, notes string) (*Snapshot, error) {
	now := time.Now().UTC()
	return s.transition(ctx, sessionID, dataSourceID, func(sess *model.CollectionSession, rows []model.SessionProgress) error {
		return SkipDataSource(sess, rows, dataSourceID, notes, now)
	})
}

// ─── Listing submission ──────────────────────────────────────────────────────

// SubmitListing runs the duplicate check for a proposed listing and, when
// it is safe (no duplicates) or the operator confirmed (force), persists
// the listing and counts it on the session in one transaction. The
// duplicate set never blocks insertion by itself; it only demands
// confirmation.
func (s *Service) SubmitListing(ctx context.Context, sessionID, dataSourceID string, l model.ListingCandidate, force bool) (*SubmitResult, error) {
	if strings.TrimSpace(l.Title) == "" {
		return nil, &ValidationError{Msg: "listing title is required"}
	}
	if strings.TrimSpace(l.Client) == "" {
		return nil, &ValidationError{Msg: "listing client is required"}
	}
	if l.ServiceType != "" {
		if _, err := model.ParseServiceType(string(l.ServiceType)); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
	}

	duplicates, err := s.CheckDuplicates(ctx, l)
	if err != nil {
		return nil, err
	}
	if len(duplicates) > 0 && !force {
		return &SubmitResult{Inserted: false, Duplicates: duplicates}, nil
	}

	l.SourceType = model.SourceManual

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin submit listing: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, rows, err := s.load(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	// The transition is validated before the listing is written: a
	// rejected submission must leave no orphan listing behind.
	if err := RecordListingAdded(sess, rows, dataSourceID); err != nil {
		return nil, err
	}

	inserted, err := s.listings.Insert(ctx, tx, l)
	if err != nil {
		return nil, fmt.Errorf("persist listing: %w", err)
	}
	if err := s.persist(ctx, tx, sessionID, dataSourceID, sess, rows); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit listing: %w", err)
	}

	return &SubmitResult{Inserted: true, Listing: inserted, Duplicates: duplicates}, nil
}

// CheckDuplicates scores a proposed listing against the recent listing
// window (feed and manual entries alike) under a bounded wait.
func (s *Service) CheckDuplicates(ctx context.Context, l model.ListingCandidate) ([]model.DuplicateMatch, error) {
	checkCtx, cancel := context.WithTimeout(ctx, dupCheckTimeout)
	defer cancel()

	existing, err := s.listings.Recent(checkCtx, dedupWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateCheckUnavailable, err)
	}
	return dedup.FindDuplicates(l, existing), nil
}

// ─── Internals ───────────────────────────────────────────────────────────────

// transition loads the session under a row lock, applies apply, persists
// the session and (when dataSourceID is set) the affected progress row,
// and publishes the completion event when the session just finished.
func (s *Service) transition(ctx context.Context, sessionID, dataSourceID string, apply func(*model.CollectionSession, []model.SessionProgress) error) (*Snapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, rows, err := s.load(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	wasCompleted := sess.Status == model.SessionCompleted

	if err := apply(sess, rows); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, tx, sessionID, dataSourceID, sess, rows); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	if !wasCompleted && sess.Status == model.SessionCompleted {
		s.publishCompleted(ctx, sess)
	}

	return &Snapshot{Session: *sess, Progress: rows}, nil
}

// persist writes the applied session state and (when dataSourceID is set)
// the affected progress row inside the caller's transaction.
func (s *Service) persist(ctx context.Context, tx pgx.Tx, sessionID, dataSourceID string, sess *model.CollectionSession, rows []model.SessionProgress) error {
	_, err := tx.Exec(ctx,
		`UPDATE collection_sessions
		 SET status = $1::session_status, completed_at = $2, total_listings_added = $3,
		     current_data_source_id = $4
		 WHERE id = $5`,
		string(sess.Status), sess.CompletedAt, sess.TotalListingsAdded,
		sess.CurrentDataSourceID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if dataSourceID != "" {
		row := findRow(rows, dataSourceID)
		_, err = tx.Exec(ctx,
			`UPDATE session_progress
			 SET status = $1::progress_status, listings_added_count = $2, notes = $3,
			     started_at = $4, completed_at = $5
			 WHERE session_id = $6 AND data_source_id = $7`,
			string(row.Status), row.ListingsAddedCount, row.Notes,
			row.StartedAt, row.CompletedAt, sessionID, dataSourceID,
		)
		if err != nil {
			return fmt.Errorf("update progress row: %w", err)
		}
	}
	return nil
}

// load reads the session and its progress rows (with data source names,
// ordered by display order). Uses FOR UPDATE when q is a transaction so
// concurrent transitions on the same session serialize.
func (s *Service) load(ctx context.Context, q querier, sessionID string) (*model.CollectionSession, []model.SessionProgress, error) {
	lock := ""
	if _, inTx := q.(pgx.Tx); inTx {
		lock = " FOR UPDATE"
	}

	var sess model.CollectionSession
	var status string
	err := q.QueryRow(ctx,
		`SELECT id, operator_email, status, started_at, completed_at,
		        total_data_sources, total_listings_added,
		        current_data_source_id
		 FROM collection_sessions WHERE id = $1`+lock,
		sessionID,
	).Scan(
		&sess.ID, &sess.OperatorEmail, &status, &sess.StartedAt, &sess.CompletedAt,
		&sess.TotalDataSources, &sess.TotalListingsAdded, &sess.CurrentDataSourceID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	sess.Status = model.SessionStatus(status)

	rows, err := q.Query(ctx,
		`SELECT sp.session_id, sp.data_source_id, ds.name, ds.display_order,
		        sp.status, sp.listings_added_count, COALESCE(sp.notes, ''),
		        sp.started_at, sp.completed_at
		 FROM session_progress sp
		 JOIN data_sources ds ON ds.id = sp.data_source_id
		 WHERE sp.session_id = $1
		 ORDER BY ds.display_order`,
		sessionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load progress rows: %w", err)
	}
	defer rows.Close()

	progress := make([]model.SessionProgress, 0)
	for rows.Next() {
		var p model.SessionProgress
		var pStatus string
		if err := rows.Scan(
			&p.SessionID, &p.DataSourceID, &p.DataSourceName, &p.DisplayOrder,
			&pStatus, &p.ListingsAddedCount, &p.Notes, &p.StartedAt, &p.CompletedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("scan progress row: %w", err)
		}
		p.Status = model.ProgressStatus(pStatus)
		progress = append(progress, p)
	}

	sess.CompletedDataSources = CompletedCount(progress)
	return &sess, progress, rows.Err()
}

// activeDataSources returns the active sources in display order.
func (s *Service) activeDataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(url, ''), COALESCE(notes, ''), display_order, is_active
		 FROM data_sources
		 WHERE is_active = true
		 ORDER BY display_order`,
	)
	if err != nil {
		return nil, fmt.Errorf("load data sources: %w", err)
	}
	defer rows.Close()

	out := make([]model.DataSource, 0)
	for rows.Next() {
		var ds model.DataSource
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.URL, &ds.Notes, &ds.DisplayOrder, &ds.IsActive); err != nil {
			return nil, fmt.Errorf("scan data source: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// publishCompleted notifies listeners that a session finished (non-fatal).
func (s *Service) publishCompleted(ctx context.Context, sess *model.CollectionSession) {
	event, _ := json.Marshal(map[string]any{
		"type":               "EVENT_SESSION_COMPLETED",
		"sessionId":          sess.ID,
		"operatorEmail":      sess.OperatorEmail,
		"totalListingsAdded": sess.TotalListingsAdded,
	})
	if err := s.rdb.Publish(ctx, "EVENT_SESSION_COMPLETED", event).Err(); err != nil {
		slog.Warn("publish EVENT_SESSION_COMPLETED failed", "sessionId", sess.ID, "err", err)
	}
}

// querier abstracts pool vs transaction for load.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = fmt.Errorf("session not found")

// ErrNoActiveSession is returned by Resume when the operator has no paused
// or in-progress session to pick up.
var ErrNoActiveSession = fmt.Errorf("no active session for operator")

// ErrDuplicateCheckUnavailable marks a duplicate check that could not run
// (store unreachable or too slow). The caller retries; entry is never
// silently allowed through without a check.
var ErrDuplicateCheckUnavailable = fmt.Errorf("duplicate check unavailable")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
