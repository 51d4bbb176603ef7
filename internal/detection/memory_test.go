package detection_test

import (
	"context"
	"testing"

	"tenderwatch/alert-service/internal/detection"
	"tenderwatch/alert-service/internal/model"
)

func TestRecordIfNew_Idempotent(t *testing.T) {
	rec := detection.NewMemoryRecorder()
	ctx := context.Background()
	l := model.ListingCandidate{ID: "l1", Reference: "2024-001", Title: "Réfection voirie"}

	ins, err := rec.RecordIfNew(ctx, "owner-1", "alert-a", l)
	if err != nil || !ins {
		t.Fatalf("first insert: inserted=%v err=%v", ins, err)
	}

	ins, err = rec.RecordIfNew(ctx, "owner-1", "alert-a", l)
	if err != nil || ins {
		t.Fatalf("second insert must be suppressed: inserted=%v err=%v", ins, err)
	}

	if n := len(rec.Detections()); n != 1 {
		t.Fatalf("want exactly 1 detection, got %d", n)
	}
}

func TestRecordIfNew_FirstAlertWins(t *testing.T) {
	rec := detection.NewMemoryRecorder()
	ctx := context.Background()
	l := model.ListingCandidate{ID: "l1", Reference: "2024-001", Title: "Réfection voirie"}

	if ins, _ := rec.RecordIfNew(ctx, "owner-1", "alert-a", l); !ins {
		t.Fatal("first alert should insert")
	}
	// A different alert of the same owner matching the same reference must
	// not surface the listing a second time.
	if ins, _ := rec.RecordIfNew(ctx, "owner-1", "alert-b", l); ins {
		t.Fatal("second alert for the same owner+reference must be suppressed")
	}

	got := rec.Detections()
	if len(got) != 1 || got[0].AlertID != "alert-a" {
		t.Fatalf("first alert must win, got %+v", got)
	}
}

func TestRecordIfNew_ScopedPerOwner(t *testing.T) {
	rec := detection.NewMemoryRecorder()
	ctx := context.Background()
	l := model.ListingCandidate{ID: "l1", Reference: "2024-001", Title: "Réfection voirie"}

	if ins, _ := rec.RecordIfNew(ctx, "owner-1", "alert-a", l); !ins {
		t.Fatal("owner-1 insert should succeed")
	}
	if ins, _ := rec.RecordIfNew(ctx, "owner-2", "alert-c", l); !ins {
		t.Fatal("owner-2 must get their own detection for the same listing")
	}
}

func TestDedupeKey_FallsBackToListingID(t *testing.T) {
	withRef := model.ListingCandidate{ID: "l1", Reference: "2024-001"}
	if got := detection.DedupeKey(withRef); got != "2024-001" {
		t.Errorf("DedupeKey = %q, want reference", got)
	}

	noRef := model.ListingCandidate{ID: "l2"}
	if got := detection.DedupeKey(noRef); got != "l2" {
		t.Errorf("DedupeKey = %q, want listing id fallback", got)
	}
}
