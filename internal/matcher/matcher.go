// Package matcher implements pure alert evaluation over a batch of listing
// candidates. It has no side effects: persistence of matches is the
// detection store's job, cursor advancement is the caller's.
package matcher

import (
	"strings"

	"tenderwatch/alert-service/internal/model"
	"tenderwatch/alert-service/internal/textnorm"
)

// Result is the outcome of one alert evaluation over a batch.
// NewestListingID is the id of the newest candidate seen (batches arrive
// newest-first, so this is the first element) and is what the caller uses
// to advance the alert's cursor.
type Result struct {
	Matched         []model.ListingCandidate
	NewestListingID string
}

// Evaluate returns the subset of candidates matching the alert.
//
// Per candidate: every populated structured filter is applied as a hard
// pre-filter first (cheap checks before keyword scans), then keywords are
// tested by substring containment on the normalized concatenated text,
// combined per MatchAllKeywords (AND) or any-of (OR, the default).
//
// An alert with no keywords and no populated filters matches nothing; the
// non-empty-keywords precondition is enforced at alert creation, not here.
func Evaluate(alert model.Alert, candidates []model.ListingCandidate) Result {
	res := Result{Matched: make([]model.ListingCandidate, 0)}
	if len(candidates) > 0 {
		res.NewestListingID = candidates[0].ID
	}
	// Judged on the normalized set: keywords that normalize away must
	// not degrade the alert into a match-everything filter.
	keywords := normalizeKeywords(alert.Keywords)
	if len(keywords) == 0 && alert.Filters.Empty() {
		return res
	}

	for _, c := range candidates {
		if !passesFilters(alert.Filters, c) {
			continue
		}
		if len(keywords) > 0 && !matchesKeywords(keywords, alert.MatchAllKeywords, c) {
			continue
		}
		res.Matched = append(res.Matched, c)
	}
	return res
}

// normalizeKeywords normalizes and drops empty entries. Order is preserved
// but irrelevant for matching.
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = textnorm.Fold(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// passesFilters applies every populated structured filter; a candidate
// failing any one of them is excluded before keyword evaluation.
func passesFilters(f model.AlertFilters, c model.ListingCandidate) bool {
	if f.Location != nil {
		want := textnorm.Fold(*f.Location)
		if want != "" && !strings.Contains(textnorm.Normalize(c.Location), want) {
			return false
		}
	}
	if f.MinAmount != nil {
		if c.Amount == nil || *c.Amount < *f.MinAmount {
			return false
		}
	}
	if f.MaxAmount != nil {
		if c.Amount == nil || *c.Amount > *f.MaxAmount {
			return false
		}
	}
	if f.ServiceType != nil {
		if c.ServiceType != *f.ServiceType {
			return false
		}
	}
	if f.MinDeadline != nil {
		if c.Deadline == nil || c.Deadline.Before(*f.MinDeadline) {
			return false
		}
	}
	return true
}

// matchesKeywords tests normalized substring containment of each keyword in
// the candidate's concatenated title + description + client text.
func matchesKeywords(keywords []string, matchAll bool, c model.ListingCandidate) bool {
	text := textnorm.Normalize(c.SearchText())
	for _, k := range keywords {
		hit := strings.Contains(text, k)
		if matchAll && !hit {
			return false
		}
		if !matchAll && hit {
			return true
		}
	}
	return matchAll
}
