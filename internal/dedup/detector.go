// Package dedup scores a proposed listing against the listings already
// visible to the operator (automated feed and manual entries alike) and
// returns ranked duplicate candidates.
//
// Match types, in descending trust order:
//
//	exact_reference  — normalized references equal
//	same_url         — source URLs equal verbatim
//	same_title_date  — normalized titles equal AND deadlines equal
//	fuzzy            — normalized-title similarity ≥ 70%
//
// The first three are exact-class and always outrank fuzzy-class matches,
// whatever the fuzzy score. The detector never blocks insertion; it only
// surfaces risk for the operator to confirm.
package dedup

import (
	"sort"
	"time"

	"github.com/agnivade/levenshtein"

	"tenderwatch/alert-service/internal/model"
	"tenderwatch/alert-service/internal/textnorm"
)

// FuzzyThreshold is the minimum title similarity (percent) reported as a
// fuzzy duplicate.
const FuzzyThreshold = 70

// FindDuplicates evaluates proposed against existing and returns the
// duplicate candidate set ordered by confidence: exact-class first, then by
// score descending. An empty set means the listing is safe to insert
// immediately.
//
// The proposed listing's own id is skipped, so re-checking an edit does not
// report the record as a duplicate of itself. Empty titles, references or
// URLs simply exclude the corresponding test; they never fail the check.
func FindDuplicates(proposed model.ListingCandidate, existing []model.ListingCandidate) []model.DuplicateMatch {
	ref := textnorm.Fold(proposed.Reference)
	title := textnorm.Fold(proposed.Title)

	matches := make([]model.DuplicateMatch, 0)
	for _, e := range existing {
		if e.ID != "" && e.ID == proposed.ID {
			continue
		}
		if m, ok := matchOne(proposed, ref, title, e); ok {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := matches[i].MatchType.ClassRank(), matches[j].MatchType.ClassRank()
		if ri != rj {
			return ri < rj
		}
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// matchOne tests proposed against a single existing listing, returning the
// highest-trust match type that fires.
func matchOne(proposed model.ListingCandidate, ref, title string, e model.ListingCandidate) (model.DuplicateMatch, bool) {
	m := model.DuplicateMatch{
		MatchedListingID: e.ID,
		SourceType:       e.SourceType,
		Title:            e.Title,
		Reference:        e.Reference,
	}

	if ref != "" && ref == textnorm.Fold(e.Reference) {
		m.MatchType, m.Score = model.MatchExactReference, 100
		return m, true
	}
	if proposed.SourceURL != "" && proposed.SourceURL == e.SourceURL {
		m.MatchType, m.Score = model.MatchSameURL, 100
		return m, true
	}

	existingTitle := textnorm.Fold(e.Title)
	if title == "" || existingTitle == "" {
		return model.DuplicateMatch{}, false
	}

	if title == existingTitle && sameDeadline(proposed.Deadline, e.Deadline) {
		m.MatchType, m.Score = model.MatchSameTitleDate, 100
		return m, true
	}

	if sim := Similarity(title, existingTitle); sim >= FuzzyThreshold {
		m.MatchType, m.Score = model.MatchFuzzy, sim
		return m, true
	}
	return model.DuplicateMatch{}, false
}

// sameDeadline requires both deadlines to be present and equal; a missing
// deadline on either side excludes the same_title_date test.
func sameDeadline(a, b *time.Time) bool {
	return a != nil && b != nil && a.Equal(*b)
}

// Similarity returns the levenshtein similarity of two already-normalized
// strings as a percentage in [0,100].
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 100 - (100*dist)/maxLen
	if sim < 0 {
		return 0
	}
	return sim
}
