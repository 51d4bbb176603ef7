// Package model defines shared data structures for the alert service.
package model

import (
	"fmt"
	"time"
)

// ServiceType values mirror the service_type enum in PostgreSQL.
// They follow the standard public-procurement categories.
type ServiceType string

const (
	ServiceTravaux     ServiceType = "TRAVAUX"
	ServiceServices    ServiceType = "SERVICES"
	ServiceFournitures ServiceType = "FOURNITURES"
)

// ParseServiceType converts a raw string to a ServiceType, returning an
// error for unknown values.
func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(s)
	switch st {
	case ServiceTravaux, ServiceServices, ServiceFournitures:
		return st, nil
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

// SourceType tags where a listing came from. Feed listings arrive through
// the automated ingestion pipeline; manual listings are typed in by an
// operator during a collection session.
type SourceType string

const (
	SourceFeed   SourceType = "FEED"
	SourceManual SourceType = "MANUAL"
)

// AlertFilters is the closed set of structured filters an alert may carry.
// Every field is optional; a nil field is simply not applied.
type AlertFilters struct {
	Location    *string      `json:"location,omitempty"`
	MinAmount   *float64     `json:"minAmount,omitempty"`
	MaxAmount   *float64     `json:"maxAmount,omitempty"`
	ServiceType *ServiceType `json:"serviceType,omitempty"`
	MinDeadline *time.Time   `json:"minDeadline,omitempty"`
}

// Empty reports whether no structured filter is populated.
func (f AlertFilters) Empty() bool {
	return f.Location == nil && f.MinAmount == nil && f.MaxAmount == nil &&
		f.ServiceType == nil && f.MinDeadline == nil
}

// Alert is a saved search evaluated against new listings.
// LastCheckedListingID is the matcher cursor: it only moves forward and
// exists to bound scans, not to gate correctness (the detection store's
// idempotent insert is what prevents double-surfacing).
type Alert struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"userId"`
	Name                 string       `json:"name"`
	Keywords             []string     `json:"keywords"`
	MatchAllKeywords     bool         `json:"matchAllKeywords"`
	Filters              AlertFilters `json:"filters"`
	IsActive             bool         `json:"isActive"`
	NotificationsEnabled bool         `json:"notificationsEnabled"`
	LastCheckedListingID *string      `json:"lastCheckedListingId"`
	LastCheckedAt        *time.Time   `json:"lastCheckedAt"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// ListingCandidate is a public-tender record, from the automated feed or
// from manual entry. Reference may be empty for hand-entered listings that
// are still waiting for an official reference.
type ListingCandidate struct {
	ID          string      `json:"id"`
	Reference   string      `json:"reference,omitempty"`
	Title       string      `json:"title"`
	Client      string      `json:"client"`
	Description string      `json:"description"`
	Amount      *float64    `json:"amount,omitempty"`
	Location    string      `json:"location"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	ServiceType ServiceType `json:"serviceType,omitempty"`
	SourceURL   string      `json:"sourceUrl,omitempty"`
	SourceType  SourceType  `json:"sourceType"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// SearchText returns the concatenated text the matcher runs keyword
// containment against. Callers normalize it before comparing.
func (l ListingCandidate) SearchText() string {
	return l.Title + " " + l.Description + " " + l.Client
}

// Detection is a persisted record that a listing matched an alert for a
// given owner. Listing fields are denormalized at match time so the
// detection survives feed churn.
type Detection struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	AlertID     string      `json:"alertId"`
	ListingID   string      `json:"listingId"`
	Reference   string      `json:"reference"`
	Title       string      `json:"title"`
	Client      string      `json:"client"`
	Amount      *float64    `json:"amount,omitempty"`
	Location    string      `json:"location"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	ServiceType ServiceType `json:"serviceType,omitempty"`
	SourceURL   string      `json:"sourceUrl,omitempty"`
	DetectedAt  time.Time   `json:"detectedAt"`
	IsRead      bool        `json:"isRead"`
	IsFavorited bool        `json:"isFavorited"`
}

// MatchType identifies which duplicate test fired.
type MatchType string

const (
	MatchExactReference MatchType = "exact_reference"
	MatchSameURL        MatchType = "same_url"
	MatchSameTitleDate  MatchType = "same_title_date"
	MatchFuzzy          MatchType = "fuzzy"
)

// Match-class ranks: exact-class matches always outrank fuzzy-class ones
// regardless of the numeric score, so ordering is a two-part sort key
// (ClassRank ascending, Score descending).
const (
	ClassExact = 0
	ClassFuzzy = 1
)

// ClassRank returns the sort class for a match type.
func (m MatchType) ClassRank() int {
	if m == MatchFuzzy {
		return ClassFuzzy
	}
	return ClassExact
}

// DuplicateMatch is one entry of the duplicate candidate set returned for a
// proposed listing. Score is the displayed confidence, 0–100.
type DuplicateMatch struct {
	MatchedListingID string     `json:"matchedListingId"`
	MatchType        MatchType  `json:"matchType"`
	Score            int        `json:"matchScore"`
	SourceType       SourceType `json:"sourceType"`
	Title            string     `json:"title"`
	Reference        string     `json:"reference,omitempty"`
}

// DataSource ("donneur d'ordre") is an organisation whose tenders must be
// checked by hand because no automated feed exists for it. Static reference
// data, never mutated by the engine.
type DataSource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Notes        string `json:"notes"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`
}

// SessionStatus values mirror the session_status enum in PostgreSQL.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
)

// ProgressStatus values mirror the progress_status enum in PostgreSQL.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// CollectionSession is one operator's work pass across the full list of
// data sources. CurrentDataSourceID lives on the record (not in process
// memory) so any stateless instance can resume it.
type CollectionSession struct {
	ID                   string        `json:"id"`
	OperatorEmail        string        `json:"operatorEmail"`
	Status               SessionStatus `json:"status"`
	StartedAt            time.Time     `json:"startedAt"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	TotalDataSources     int           `json:"totalDataSources"`
	CompletedDataSources int           `json:"completedDataSources"`
	TotalListingsAdded   int           `json:"totalListingsAdded"`
	CurrentDataSourceID  *string       `json:"currentDataSourceId,omitempty"`
}

// SessionProgress tracks one (session, data source) pair.
type SessionProgress struct {
	SessionID          string         `json:"sessionId"`
	DataSourceID       string         `json:"dataSourceId"`
	DataSourceName     string         `json:"dataSourceName"`
	DisplayOrder       int            `json:"displayOrder"`
	Status             ProgressStatus `json:"status"`
	ListingsAddedCount int            `json:"listingsAddedCount"`
	Notes              string         `json:"notes"`
	StartedAt          *time.Time     `json:"startedAt,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
}
