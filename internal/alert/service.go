// Package alert contains the saved-search (alert) business logic. It is
// transport-agnostic: the HTTP surface lives in internal/api.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenderwatch/alert-service/internal/model"
	"tenderwatch/alert-service/internal/textnorm"
)

// Service encapsulates alert CRUD and cursor bookkeeping.
type Service struct {
	pool *pgxpool.Pool
}

// NewService returns a configured Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ─── Validation ──────────────────────────────────────────────────────────────

// Validate enforces the alert preconditions at creation/update time, before
// anything reaches the matcher: a non-empty keyword set and a coherent
// structured filter set.
func Validate(a model.Alert) error {
	// A keyword must survive normalization: bare combining marks or
	// whitespace normalize to the empty string and would never match.
	hasKeyword := false
	for _, k := range a.Keywords {
		if textnorm.Fold(k) != "" {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return &ValidationError{Msg: "alert must carry at least one keyword"}
	}
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Msg: "alert name is required"}
	}
	f := a.Filters
	if f.MinAmount != nil && *f.MinAmount < 0 {
		return &ValidationError{Msg: "minAmount must not be negative"}
	}
	if f.MinAmount != nil && f.MaxAmount != nil && *f.MinAmount > *f.MaxAmount {
		return &ValidationError{Msg: "minAmount must not exceed maxAmount"}
	}
	if f.ServiceType != nil {
		if _, err := model.ParseServiceType(string(*f.ServiceType)); err != nil {
			return &ValidationError{Msg: err.Error()}
		}
	}
	return nil
}

// ─── CRUD ────────────────────────────────────────────────────────────────────

const alertColumns = `id, user_id, name, keywords, match_all_keywords,
	 location_filter, min_amount, max_amount, service_type_filter, min_deadline,
	 is_active, notifications_enabled,
	 COALESCE(last_checked_listing_id::text, ''), last_checked_at,
	 created_at, updated_at`

// Create validates and inserts a new alert for the owner.
func (s *Service) Create(ctx context.Context, ownerID string, a model.Alert) (*model.Alert, error) {
	a.UserID = ownerID
	if err := Validate(a); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO alerts
		   (user_id, name, keywords, match_all_keywords, location_filter,
		    min_amount, max_amount, service_type_filter, min_deadline,
		    is_active, notifications_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::service_type, $9, $10, $11)
		 RETURNING `+alertColumns,
		ownerID, a.Name, a.Keywords, a.MatchAllKeywords, a.Filters.Location,
		a.Filters.MinAmount, a.Filters.MaxAmount, serviceTypeArg(a.Filters.ServiceType),
		a.Filters.MinDeadline, a.IsActive, a.NotificationsEnabled,
	)
	out, err := scanAlert(row)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return out, nil
}

// Update validates and rewrites an existing alert. Ownership is checked by
// the WHERE clause; a vanished row surfaces as ErrNotFound.
func (s *Service) Update(ctx context.Context, ownerID, alertID string, a model.Alert) (*model.Alert, error) {
	a.UserID = ownerID
	if err := Validate(a); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE alerts
		 SET name = $1, keywords = $2, match_all_keywords = $3,
		     location_filter = $4, min_amount = $5, max_amount = $6,
		     service_type_filter = $7::service_type, min_deadline = $8,
		     is_active = $9, notifications_enabled = $10, updated_at = NOW()
		 WHERE id = $11 AND user_id = $12
		 RETURNING `+alertColumns,
		a.Name, a.Keywords, a.MatchAllKeywords, a.Filters.Location,
		a.Filters.MinAmount, a.Filters.MaxAmount, serviceTypeArg(a.Filters.ServiceType),
		a.Filters.MinDeadline, a.IsActive, a.NotificationsEnabled,
		alertID, ownerID,
	)
	out, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return out, nil
}

// Delete removes an alert and its cursor state. Detections it produced are
// kept — they belong to the owner, not the alert.
func (s *Service) Delete(ctx context.Context, ownerID, alertID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE id = $1 AND user_id = $2`,
		alertID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all of the owner's alerts, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]model.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListEvaluable returns every active, notification-enabled alert across all
// owners. This is the set one digest run evaluates.
func (s *Service) ListEvaluable(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE is_active = true AND notifications_enabled = true
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list evaluable alerts: %w", err)
	}
	defer rows.Close()

	out := make([]model.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AdvanceCursor moves the alert's last-checked marker forward. The cursor
// only bounds future scans; it is never rewound, and a stale write (older
// than what is stored) is a no-op.
func (s *Service) AdvanceCursor(ctx context.Context, alertID, newestListingID string, checkedAt time.Time) error {
	if newestListingID == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE alerts
		 SET last_checked_listing_id = $1, last_checked_at = $2
		 WHERE id = $3
		   AND (last_checked_at IS NULL OR last_checked_at <= $2)`,
		newestListingID, checkedAt, alertID,
	)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func serviceTypeArg(st *model.ServiceType) *string {
	if st == nil {
		return nil
	}
	s := string(*st)
	return &s
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var (
		a           model.Alert
		cursor      string
		serviceType *string
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Keywords, &a.MatchAllKeywords,
		&a.Filters.Location, &a.Filters.MinAmount, &a.Filters.MaxAmount,
		&serviceType, &a.Filters.MinDeadline,
		&a.IsActive, &a.NotificationsEnabled,
		&cursor, &a.LastCheckedAt,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if cursor != "" {
		a.LastCheckedListingID = &cursor
	}
	if serviceType != nil && *serviceType != "" {
		st := model.ServiceType(*serviceType)
		a.Filters.ServiceType = &st
	}
	return &a, nil
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when an alert is missing or does not belong to
// the caller.
var ErrNotFound = fmt.Errorf("alert not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
