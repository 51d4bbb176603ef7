package digest_test

import (
	"context"
	"testing"
	"time"

	"tenderwatch/alert-service/internal/detection"
	"tenderwatch/alert-service/internal/digest"
	"tenderwatch/alert-service/internal/model"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeAlerts struct {
	alerts  []model.Alert
	cursors map[string]string
}

func (f *fakeAlerts) ListEvaluable(context.Context) ([]model.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlerts) AdvanceCursor(_ context.Context, alertID, newestListingID string, _ time.Time) error {
	if f.cursors == nil {
		f.cursors = make(map[string]string)
	}
	if newestListingID != "" {
		f.cursors[alertID] = newestListingID
	}
	return nil
}

type fakeFeed struct {
	listings []model.ListingCandidate // newest first
}

func (f *fakeFeed) Recent(_ context.Context, limit int) ([]model.ListingCandidate, error) {
	if len(f.listings) > limit {
		return f.listings[:limit], nil
	}
	return f.listings, nil
}

func (f *fakeFeed) NewerThan(ctx context.Context, afterListingID string, limit int) ([]model.ListingCandidate, error) {
	if afterListingID == "" {
		return f.Recent(ctx, limit)
	}
	for i, l := range f.listings {
		if l.ID == afterListingID {
			return f.listings[:i], nil
		}
	}
	return f.Recent(ctx, limit)
}

type fakeMailer struct {
	sent []digest.Digest
}

func (m *fakeMailer) SendDigest(_ context.Context, d digest.Digest) error {
	m.sent = append(m.sent, d)
	return nil
}

type fakeHistory struct {
	records []digest.SendRecord
}

func (h *fakeHistory) RecordSend(_ context.Context, r digest.SendRecord) error {
	h.records = append(h.records, r)
	return nil
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func newRunner(alerts *fakeAlerts, f *fakeFeed) (*digest.Runner, *detection.MemoryRecorder, *fakeMailer, *fakeHistory) {
	rec := detection.NewMemoryRecorder()
	mailer := &fakeMailer{}
	history := &fakeHistory{}
	return digest.NewRunner(alerts, f, rec, mailer, history, 100), rec, mailer, history
}

func TestRun_RecordsMatchesAndSendsOneDigestPerOwner(t *testing.T) {
	alerts := &fakeAlerts{alerts: []model.Alert{
		{ID: "a1", UserID: "owner-1", Keywords: []string{"voirie"}},
		{ID: "a2", UserID: "owner-2", Keywords: []string{"école"}},
	}}
	f := &fakeFeed{listings: []model.ListingCandidate{
		{ID: "l2", Reference: "R-2", Title: "Construction d'une école"},
		{ID: "l1", Reference: "R-1", Title: "Réfection voirie"},
	}}
	runner, rec, mailer, history := newRunner(alerts, f)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.AlertsEvaluated != 2 || report.DetectionsInserted != 2 || report.OwnersNotified != 2 {
		t.Fatalf("report = %+v, want 2/2/2", report)
	}
	if n := len(rec.Detections()); n != 2 {
		t.Fatalf("recorded detections = %d, want 2", n)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("digests sent = %d, want 2", len(mailer.sent))
	}
	if len(history.records) != 2 {
		t.Fatalf("history records = %d, want 2", len(history.records))
	}
	for _, r := range history.records {
		if r.MarketsIncluded != 1 || r.AlertsTriggered != 1 {
			t.Errorf("history record %+v, want 1 market / 1 alert", r)
		}
	}
}

func TestRun_CrossAlertSameOwnerYieldsOneDetection(t *testing.T) {
	// Two alerts of the same owner match the same listing in the same
	// pass: the detection store invariant makes the first alert win.
	alerts := &fakeAlerts{alerts: []model.Alert{
		{ID: "a1", UserID: "owner-1", Keywords: []string{"voirie"}},
		{ID: "a2", UserID: "owner-1", Keywords: []string{"réfection"}},
	}}
	f := &fakeFeed{listings: []model.ListingCandidate{
		{ID: "l1", Reference: "R-1", Title: "Réfection voirie"},
	}}
	runner, rec, mailer, _ := newRunner(alerts, f)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DetectionsInserted != 1 {
		t.Fatalf("inserted = %d, want 1 (first alert wins)", report.DetectionsInserted)
	}
	got := rec.Detections()
	if len(got) != 1 || got[0].AlertID != "a1" {
		t.Fatalf("detections = %+v, want one row owned by a1", got)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("digests = %d, want 1", len(mailer.sent))
	}
}

func TestRun_SecondPassIsIdempotent(t *testing.T) {
	alerts := &fakeAlerts{alerts: []model.Alert{
		{ID: "a1", UserID: "owner-1", Keywords: []string{"voirie"}},
	}}
	f := &fakeFeed{listings: []model.ListingCandidate{
		{ID: "l1", Reference: "R-1", Title: "Réfection voirie"},
	}}
	runner, rec, mailer, _ := newRunner(alerts, f)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Simulate a cursor that did not persist: the whole window is
	// rescanned. The detection store must still suppress re-inserts.
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.DetectionsInserted != 0 {
		t.Fatalf("second pass inserted %d, want 0", report.DetectionsInserted)
	}
	if n := len(rec.Detections()); n != 1 {
		t.Fatalf("total detections = %d, want 1", n)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("an empty pass must not send digests, sent = %d", len(mailer.sent))
	}
}

func TestRun_AdvancesCursorEvenWithoutMatch(t *testing.T) {
	alerts := &fakeAlerts{alerts: []model.Alert{
		{ID: "a1", UserID: "owner-1", Keywords: []string{"introuvable-partout"}},
	}}
	f := &fakeFeed{listings: []model.ListingCandidate{
		{ID: "l9", Title: "Sans rapport"},
	}}
	runner, _, _, _ := newRunner(alerts, f)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if alerts.cursors["a1"] != "l9" {
		t.Errorf("cursor = %q, want l9 (newest seen)", alerts.cursors["a1"])
	}
}

func TestConsolidate_GroupsPerOwnerAndCountsDistinctAlerts(t *testing.T) {
	fresh := []model.Detection{
		{UserID: "owner-2", AlertID: "a3", Reference: "R-4"},
		{UserID: "owner-1", AlertID: "a1", Reference: "R-1"},
		{UserID: "owner-1", AlertID: "a2", Reference: "R-2"},
		{UserID: "owner-1", AlertID: "a1", Reference: "R-3"},
	}

	got := digest.Consolidate(fresh)
	if len(got) != 2 {
		t.Fatalf("digests = %d, want 2", len(got))
	}
	if got[0].OwnerID != "owner-1" || got[1].OwnerID != "owner-2" {
		t.Fatalf("owners out of order: %s, %s", got[0].OwnerID, got[1].OwnerID)
	}
	if len(got[0].Detections) != 3 || got[0].AlertsTriggered != 2 {
		t.Errorf("owner-1 digest: %d detections / %d alerts, want 3 / 2",
			len(got[0].Detections), got[0].AlertsTriggered)
	}
}

func TestTypeForTime(t *testing.T) {
	morning := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)
	if digest.TypeForTime(morning) != "MORNING" {
		t.Error("08:00 should be MORNING")
	}
	if digest.TypeForTime(evening) != "EVENING" {
		t.Error("18:00 should be EVENING")
	}
}

func TestTypeForTime_UsesWallClockOfZone(t *testing.T) {
	// 13:00 in a UTC+2 zone is 11:00 UTC; the slot label follows the
	// zone's own wall clock, not the UTC hour.
	paris := time.FixedZone("UTC+2", 2*3600)
	afternoon := time.Date(2026, 8, 31, 13, 0, 0, 0, paris)
	if digest.TypeForTime(afternoon) != "EVENING" {
		t.Error("13:00 local should be EVENING regardless of the UTC hour")
	}
	if digest.TypeForTime(afternoon.UTC()) != "MORNING" {
		t.Error("the same instant read as 11:00 UTC is MORNING; callers pick the zone")
	}
}
