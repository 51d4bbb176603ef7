// Package collect implements the manual-collection session workflow: one
// operator working through the full list of data sources ("donneurs
// d'ordre"), with per-source progress tracking and duplicate-checked
// listing entry.
//
// Per data source within a session:
//
//	not_started ──► in_progress ──► completed
//	     │                              ▲
//	     └──────────── skip ────────────┘
//
// The session itself is in_progress ⇄ paused until every progress row is
// completed, then completed, which is terminal.
package collect

import (
	"fmt"
	"time"

	"tenderwatch/alert-service/internal/model"
)

// StateError reports a transition not valid from the current state. It has
// no side effects: the session is left untouched.
type StateError struct{ Msg string }

func (e *StateError) Error() string { return e.Msg }

func stateErrf(format string, args ...any) *StateError {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// AlreadyActiveSessionError is returned when an operator tries to start a
// new session while a paused or in-progress one exists. The caller should
// resume that session instead.
type AlreadyActiveSessionError struct{ SessionID string }

func (e *AlreadyActiveSessionError) Error() string {
	return fmt.Sprintf("operator already has an active session %s", e.SessionID)
}

// ─── Pure transition rules ───────────────────────────────────────────────────
//
// These operate on an in-memory snapshot of a session and its progress
// rows; the service loads the snapshot, applies a rule and persists the
// result. Keeping the rules pure keeps every invariant testable without a
// database.

// findRow returns the progress row for dataSourceID, or nil.
func findRow(rows []model.SessionProgress, dataSourceID string) *model.SessionProgress {
	for i := range rows {
		if rows[i].DataSourceID == dataSourceID {
			return &rows[i]
		}
	}
	return nil
}

// checkLive rejects transitions on paused or completed sessions.
func checkLive(s *model.CollectionSession) error {
	switch s.Status {
	case model.SessionInProgress:
		return nil
	case model.SessionPaused:
		return stateErrf("session %s is paused; resume it first", s.ID)
	default:
		return stateErrf("session %s is completed; no further transitions are valid", s.ID)
	}
}

// StartDataSource moves a data source from not_started to in_progress and
// stamps its start time.
func StartDataSource(s *model.CollectionSession, rows []model.SessionProgress, dataSourceID string, now time.Time) error {
	if err := checkLive(s); err != nil {
		return err
	}
	row := findRow(rows, dataSourceID)
	if row == nil {
		return stateErrf("data source %s is not part of session %s", dataSourceID, s.ID)
	}
	if row.Status != model.ProgressNotStarted {
		return stateErrf("data source %s is already %s", dataSourceID, row.Status)
	}
	row.Status = model.ProgressInProgress
	row.StartedAt = &now
	s.CurrentDataSourceID = &row.DataSourceID
	return nil
}

// RecordListingAdded increments the data source's running counter and the
// session aggregate. It does not change state.
func RecordListingAdded(s *model.CollectionSession, rows []model.SessionProgress, dataSourceID string) error {
	if err := checkLive(s); err != nil {
		return err
	}
	row := findRow(rows, dataSourceID)
	if row == nil {
		return stateErrf("data source %s is not part of session %s", dataSourceID, s.ID)
	}
	if row.Status == model.ProgressCompleted {
		return stateErrf("data source %s is already completed", dataSourceID)
	}
	row.ListingsAddedCount++
	s.TotalListingsAdded++
	return nil
}

// CompleteDataSource moves an in-progress data source to completed. The
// running counter is already reflected in the session aggregate by
// RecordListingAdded, so completing folds in nothing — it must not double
// count. The "current" pointer advances to the next not_started source in
// display order, or the whole session completes when none remain.
func CompleteDataSource(s *model.CollectionSession, rows []model.SessionProgress, dataSourceID, notes string, now time.Time) error {
	if err := checkLive(s); err != nil {
		return err
	}
	row := findRow(rows, dataSourceID)
	if row == nil {
		return stateErrf("data source %s is not part of session %s", dataSourceID, s.ID)
	}
	if row.Status != model.ProgressInProgress {
		return stateErrf("cannot complete data source %s from state %s", dataSourceID, row.Status)
	}
	row.Status = model.ProgressCompleted
	row.Notes = notes
	row.CompletedAt = &now
	finishRow(s, rows, now)
	return nil
}

// SkipDataSource completes a data source without visiting it: allowed from
// not_started or in_progress, forces the row counter to zero regardless of
// prior increments (the session aggregate is adjusted accordingly) and
// records the skip reason. Caller-side confirmation is a precondition.
func SkipDataSource(s *model.CollectionSession, rows []model.SessionProgress, dataSourceID, notes string, now time.Time) error {
	if err := checkLive(s); err != nil {
		return err
	}
	row := findRow(rows, dataSourceID)
	if row == nil {
		return stateErrf("data source %s is not part of session %s", dataSourceID, s.ID)
	}
	if row.Status == model.ProgressCompleted {
		return stateErrf("data source %s is already completed", dataSourceID)
	}
	s.TotalListingsAdded -= row.ListingsAddedCount
	row.ListingsAddedCount = 0
	row.Status = model.ProgressCompleted
	row.Notes = notes
	row.CompletedAt = &now
	finishRow(s, rows, now)
	return nil
}

// Pause moves an in-progress session to paused.
func Pause(s *model.CollectionSession) error {
	if err := checkLive(s); err != nil {
		return err
	}
	s.Status = model.SessionPaused
	return nil
}

// Resume moves a paused session back to in_progress. Resuming a session
// that is already in progress is a no-op, not an error.
func Resume(s *model.CollectionSession) error {
	switch s.Status {
	case model.SessionCompleted:
		return stateErrf("session %s is completed; it cannot be resumed", s.ID)
	default:
		s.Status = model.SessionInProgress
		return nil
	}
}

// finishRow refreshes the derived fields after a row reaches completed:
// the completed count, the current pointer, and the terminal transition
// when every row is done.
func finishRow(s *model.CollectionSession, rows []model.SessionProgress, now time.Time) {
	s.CompletedDataSources = CompletedCount(rows)
	if next := NextDataSource(rows); next != nil {
		s.CurrentDataSourceID = &next.DataSourceID
		return
	}
	s.CurrentDataSourceID = nil
	if s.CompletedDataSources == len(rows) {
		s.Status = model.SessionCompleted
		s.CompletedAt = &now
	}
}

// NextDataSource returns the first not_started row in display order, or
// nil when none remain.
func NextDataSource(rows []model.SessionProgress) *model.SessionProgress {
	var next *model.SessionProgress
	for i := range rows {
		r := &rows[i]
		if r.Status != model.ProgressNotStarted {
			continue
		}
		if next == nil || r.DisplayOrder < next.DisplayOrder {
			next = r
		}
	}
	return next
}

// CompletedCount counts completed rows. Never exceeds len(rows).
func CompletedCount(rows []model.SessionProgress) int {
	n := 0
	for i := range rows {
		if rows[i].Status == model.ProgressCompleted {
			n++
		}
	}
	return n
}

// SumListings sums the per-row counters. After any transition sequence it
// equals the session's TotalListingsAdded.
func SumListings(rows []model.SessionProgress) int {
	n := 0
	for i := range rows {
		n += rows[i].ListingsAddedCount
	}
	return n
}
