// Package digest implements the twice-daily alert pass: evaluate every
// active, notification-enabled alert over the recent listing window, record
// new detections idempotently, and consolidate everything new per owner
// into a single outbound email.
package digest

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"time"

	"tenderwatch/alert-service/internal/detection"
	"tenderwatch/alert-service/internal/feed"
	"tenderwatch/alert-service/internal/matcher"
	"tenderwatch/alert-service/internal/model"
)

// AlertSource is the slice of the alert service the runner needs.
type AlertSource interface {
	ListEvaluable(ctx context.Context) ([]model.Alert, error)
	AdvanceCursor(ctx context.Context, alertID, newestListingID string, checkedAt time.Time) error
}

// Digest is one owner's consolidated batch of new detections.
type Digest struct {
	OwnerID         string
	AlertsTriggered int
	Detections      []model.Detection
}

// Report summarizes one run.
type Report struct {
	AlertsEvaluated    int
	DetectionsInserted int
	OwnersNotified     int
}

// Runner executes one digest pass. It holds no state between runs: cursors
// live on the alert records, dedup state in the detection store.
type Runner struct {
	alerts   AlertSource
	listings feed.Provider
	recorder detection.Recorder
	mailer   Mailer
	history  HistoryStore
	window   int
}

// NewRunner wires a Runner. history and mailer may be nil-ops but not nil.
func NewRunner(alerts AlertSource, listings feed.Provider, recorder detection.Recorder, mailer Mailer, history HistoryStore, window int) *Runner {
	return &Runner{
		alerts:   alerts,
		listings: listings,
		recorder: recorder,
		mailer:   mailer,
		history:  history,
		window:   window,
	}
}

// Run performs one full digest pass. Failures on individual alerts are
// logged and skipped; the pass itself only fails when the alert list
// cannot be loaded at all.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	alerts, err := r.alerts.ListEvaluable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load evaluable alerts: %w", err)
	}

	report := &Report{AlertsEvaluated: len(alerts)}
	fresh := make([]model.Detection, 0)
	now := time.Now().UTC()

	for _, a := range alerts {
		inserted, err := r.runAlert(ctx, a, now)
		if err != nil {
			slog.Warn("alert evaluation failed", "alertId", a.ID, "err", err)
			continue
		}
		fresh = append(fresh, inserted...)
	}
	report.DetectionsInserted = len(fresh)

	for _, d := range Consolidate(fresh) {
		if err := r.mailer.SendDigest(ctx, d); err != nil {
			slog.Warn("digest send failed", "ownerId", d.OwnerID, "err", err)
			continue
		}
		report.OwnersNotified++
		entry := SendRecord{
			SentAt: now,
			// The cron scheduler fires in the server's local zone, so
			// the slot label follows the local wall clock.
			DigestType: TypeForTime(now.Local()),
			AlertsTriggered: d.AlertsTriggered,
			MarketsIncluded: len(d.Detections),
			Recipient:       d.OwnerID,
		}
		if err := r.history.RecordSend(ctx, entry); err != nil {
			slog.Warn("digest history insert failed", "ownerId", d.OwnerID, "err", err)
		}
	}

	log.Printf("[digest] Pass complete — alerts=%d inserted=%d notified=%d",
		report.AlertsEvaluated, report.DetectionsInserted, report.OwnersNotified)
	return report, nil
}

// runAlert evaluates one alert over its window and records matches. The
// cursor advances even on a no-match pass so the next run scans less.
func (r *Runner) runAlert(ctx context.Context, a model.Alert, now time.Time) ([]model.Detection, error) {
	cursor := ""
	if a.LastCheckedListingID != nil {
		cursor = *a.LastCheckedListingID
	}
	window, err := r.listings.NewerThan(ctx, cursor, r.window)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}

	res := matcher.Evaluate(a, window)

	fresh := make([]model.Detection, 0, len(res.Matched))
	for _, l := range res.Matched {
		inserted, err := r.recorder.RecordIfNew(ctx, a.UserID, a.ID, l)
		if err != nil {
			slog.Warn("recordIfNew failed", "alertId", a.ID, "listingId", l.ID, "err", err)
			continue
		}
		if inserted {
			fresh = append(fresh, model.Detection{
				UserID:      a.UserID,
				AlertID:     a.ID,
				ListingID:   l.ID,
				Reference:   detection.DedupeKey(l),
				Title:       l.Title,
				Client:      l.Client,
				Amount:      l.Amount,
				Location:    l.Location,
				Deadline:    l.Deadline,
				ServiceType: l.ServiceType,
				SourceURL:   l.SourceURL,
				DetectedAt:  now,
			})
		}
	}

	if err := r.alerts.AdvanceCursor(ctx, a.ID, res.NewestListingID, now); err != nil {
		slog.Warn("cursor advance failed", "alertId", a.ID, "err", err)
	}
	return fresh, nil
}

// Consolidate groups freshly inserted detections per owner, one digest per
// owner, ordered by owner id for deterministic sends.
func Consolidate(fresh []model.Detection) []Digest {
	byOwner := make(map[string][]model.Detection)
	for _, d := range fresh {
		byOwner[d.UserID] = append(byOwner[d.UserID], d)
	}

	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	out := make([]Digest, 0, len(owners))
	for _, o := range owners {
		ds := byOwner[o]
		alerts := make(map[string]struct{})
		for _, d := range ds {
			alerts[d.AlertID] = struct{}{}
		}
		out = append(out, Digest{OwnerID: o, AlertsTriggered: len(alerts), Detections: ds})
	}
	return out
}

// TypeForTime labels a send slot by the wall-clock hour of t in its own
// zone. Callers pass the run time in the zone the scheduler fires in.
func TypeForTime(t time.Time) string {
	if t.Hour() < 12 {
		return "MORNING"
	}
	return "EVENING"
}
