package dedup_test

import (
	"testing"
	"time"

	"tenderwatch/alert-service/internal/dedup"
	"tenderwatch/alert-service/internal/model"
)

func timePtr(t time.Time) *time.Time { return &t }

// ── Match types ────────────────────────────────────────────────────────────

func TestFindDuplicates_ExactReference(t *testing.T) {
	proposed := model.ListingCandidate{Reference: "2024-001", Title: "Réfection voirie"}
	existing := []model.ListingCandidate{
		{ID: "e1", Reference: "2024-001", Title: "Refection Voirie", SourceType: model.SourceFeed},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 {
		t.Fatalf("want 1 match, got %d", len(got))
	}
	m := got[0]
	if m.MatchType != model.MatchExactReference {
		t.Errorf("MatchType = %s, want exact_reference", m.MatchType)
	}
	if m.Score != 100 {
		t.Errorf("Score = %d, want 100", m.Score)
	}
	if m.SourceType != model.SourceFeed {
		t.Errorf("SourceType = %s, want FEED", m.SourceType)
	}
}

func TestFindDuplicates_ReferenceCaseAndWhitespaceInsensitive(t *testing.T) {
	proposed := model.ListingCandidate{Reference: "  ao-2024/17 ", Title: "Lot 3"}
	existing := []model.ListingCandidate{{ID: "e1", Reference: "AO-2024/17", Title: "Autre"}}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchType != model.MatchExactReference {
		t.Fatalf("reference comparison must ignore case and whitespace, got %+v", got)
	}
}

func TestFindDuplicates_SameURL(t *testing.T) {
	proposed := model.ListingCandidate{Title: "Travaux A", SourceURL: "https://boamp.fr/avis/123"}
	existing := []model.ListingCandidate{
		{ID: "e1", Title: "Travaux B totalement différents", SourceURL: "https://boamp.fr/avis/123"},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchType != model.MatchSameURL || got[0].Score != 100 {
		t.Fatalf("verbatim URL equality must report same_url at 100, got %+v", got)
	}
}

func TestFindDuplicates_SameTitleDate(t *testing.T) {
	d := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	proposed := model.ListingCandidate{Title: "Entretien des Espaces Verts", Deadline: timePtr(d)}
	existing := []model.ListingCandidate{
		{ID: "e1", Title: "entretien des espaces verts", Deadline: timePtr(d)},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchType != model.MatchSameTitleDate {
		t.Fatalf("equal normalized titles + equal deadlines must be same_title_date, got %+v", got)
	}
}

func TestFindDuplicates_SameTitleDifferentDateFallsToFuzzy(t *testing.T) {
	proposed := model.ListingCandidate{
		Title:    "Entretien des espaces verts",
		Deadline: timePtr(time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)),
	}
	existing := []model.ListingCandidate{{
		ID: "e1", Title: "Entretien des espaces verts",
		Deadline: timePtr(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)),
	}}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchType != model.MatchFuzzy {
		t.Fatalf("identical titles with different deadlines should be fuzzy, got %+v", got)
	}
	if got[0].Score != 100 {
		t.Errorf("identical titles score = %d, want 100", got[0].Score)
	}
}

func TestFindDuplicates_FuzzyAboveThreshold(t *testing.T) {
	proposed := model.ListingCandidate{Title: "Réfection de la voirie communale"}
	existing := []model.ListingCandidate{
		{ID: "e1", Title: "Refection de la voirie communale 2026", SourceType: model.SourceManual},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchType != model.MatchFuzzy {
		t.Fatalf("near-identical titles must report a fuzzy match, got %+v", got)
	}
	if got[0].Score < dedup.FuzzyThreshold || got[0].Score > 100 {
		t.Errorf("fuzzy score %d out of [%d,100]", got[0].Score, dedup.FuzzyThreshold)
	}
	if got[0].SourceType != model.SourceManual {
		t.Errorf("SourceType = %s, want MANUAL", got[0].SourceType)
	}
}

func TestFindDuplicates_BelowThresholdNoMatch(t *testing.T) {
	proposed := model.ListingCandidate{Title: "Fourniture de mobilier scolaire"}
	existing := []model.ListingCandidate{
		{ID: "e1", Title: "Maintenance des ascenseurs du CHU"},
	}

	if got := dedup.FindDuplicates(proposed, existing); len(got) != 0 {
		t.Fatalf("unrelated titles must yield an empty set, got %+v", got)
	}
}

// ── Ordering ───────────────────────────────────────────────────────────────

func TestFindDuplicates_ExactClassAlwaysOutranksFuzzy(t *testing.T) {
	proposed := model.ListingCandidate{Reference: "REF-9", Title: "Construction du groupe scolaire"}
	existing := []model.ListingCandidate{
		// Fuzzy candidate with a near-perfect title.
		{ID: "fuzzy", Title: "Construction du groupe scolaires"},
		// Exact-reference candidate with an unrelated title.
		{ID: "exact", Reference: "ref-9", Title: "Autre chose"},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 2 {
		t.Fatalf("want 2 matches, got %d", len(got))
	}
	if got[0].MatchedListingID != "exact" {
		t.Errorf("exact-class match must rank first, got order %s, %s",
			got[0].MatchedListingID, got[1].MatchedListingID)
	}
	if got[0].MatchType.ClassRank() >= got[1].MatchType.ClassRank() &&
		got[1].MatchType != model.MatchFuzzy {
		t.Errorf("second entry should be the fuzzy match, got %s", got[1].MatchType)
	}
}

func TestFindDuplicates_FuzzySortedByScoreDescending(t *testing.T) {
	proposed := model.ListingCandidate{Title: "Aménagement du centre bourg"}
	existing := []model.ListingCandidate{
		{ID: "far", Title: "Aménagement du centre bourg tranche 2"},
		{ID: "near", Title: "Aménagement du centre bourg."},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) < 2 {
		t.Fatalf("want 2 fuzzy matches, got %d", len(got))
	}
	if got[0].Score < got[1].Score {
		t.Errorf("fuzzy matches must sort by score descending: %d then %d", got[0].Score, got[1].Score)
	}
	if got[0].MatchedListingID != "near" {
		t.Errorf("closest title must rank first, got %s", got[0].MatchedListingID)
	}
}

// ── Edge policy ────────────────────────────────────────────────────────────

func TestFindDuplicates_MissingFieldsNeverCrash(t *testing.T) {
	proposed := model.ListingCandidate{} // no title, no reference, no URL
	existing := []model.ListingCandidate{
		{ID: "e1", Title: "Quelconque"},
		{ID: "e2"}, // no title either
	}

	if got := dedup.FindDuplicates(proposed, existing); len(got) != 0 {
		t.Fatalf("empty proposed fields must exclude tests, not match: %+v", got)
	}
}

func TestFindDuplicates_EmptyReferencesDoNotMatchEachOther(t *testing.T) {
	proposed := model.ListingCandidate{Title: "Titre unique un"}
	existing := []model.ListingCandidate{{ID: "e1", Title: "Totalement autre chose ici"}}

	for _, m := range dedup.FindDuplicates(proposed, existing) {
		if m.MatchType == model.MatchExactReference {
			t.Fatal("two empty references must not count as exact_reference")
		}
	}
}

func TestFindDuplicates_SkipsOwnID(t *testing.T) {
	proposed := model.ListingCandidate{ID: "self", Reference: "2024-007", Title: "Édition"}
	existing := []model.ListingCandidate{
		{ID: "self", Reference: "2024-007", Title: "Édition"},
		{ID: "other", Reference: "2024-007", Title: "Édition"},
	}

	got := dedup.FindDuplicates(proposed, existing)
	if len(got) != 1 || got[0].MatchedListingID != "other" {
		t.Fatalf("re-checking an edit must skip the record's own id, got %+v", got)
	}
}

func TestFindDuplicates_NoMatchesMeansEmptySet(t *testing.T) {
	proposed := model.ListingCandidate{Reference: "X-1", Title: "Unique"}
	got := dedup.FindDuplicates(proposed, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("zero matches must return an empty, non-nil set, got %#v", got)
	}
}

// ── Similarity helper ──────────────────────────────────────────────────────

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abcd", "abcd", 100},
		{"", "", 100},
		{"abcd", "abcx", 75},
		{"abcd", "wxyz", 0},
	}
	for _, c := range cases {
		if got := dedup.Similarity(c.a, c.b); got != c.want {
			t.Errorf("Similarity(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
