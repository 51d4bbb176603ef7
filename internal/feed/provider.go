// Package feed exposes the listing store: the automated ingestion feed
// populates it out of process, manual entry adds rows through Insert, and
// the matcher and duplicate detector read bounded windows from it.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenderwatch/alert-service/internal/model"
)

// Provider is the read side consumed by the digest runner and the
// duplicate checker. Listings come back newest-first.
type Provider interface {
	// Recent returns up to limit listings, newest first.
	Recent(ctx context.Context, limit int) ([]model.ListingCandidate, error)
	// NewerThan returns up to limit listings created after the listing
	// identified by afterListingID (all of the newest when the cursor is
	// empty or points at a vanished row), newest first.
	NewerThan(ctx context.Context, afterListingID string, limit int) ([]model.ListingCandidate, error)
}

// PGProvider is the PostgreSQL-backed Provider plus the manual-entry
// insert used by collection sessions.
type PGProvider struct {
	pool *pgxpool.Pool
}

// NewPGProvider returns a configured PGProvider.
func NewPGProvider(pool *pgxpool.Pool) *PGProvider {
	return &PGProvider{pool: pool}
}

const listingColumns = `id, COALESCE(reference, ''), title, client, COALESCE(description, ''),
	 amount, COALESCE(location, ''), deadline, COALESCE(service_type::text, ''),
	 COALESCE(source_url, ''), source_type, created_at`

// Recent implements Provider.
func (p *PGProvider) Recent(ctx context.Context, limit int) ([]model.ListingCandidate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent listings: %w", err)
	}
	defer rows.Close()
	return scanListings(rows)
}

// NewerThan implements Provider. The cursor subquery resolves the cursor
// listing's creation time; a missing cursor row degrades to Recent, which
// is safe because the detection store suppresses re-surfacing anyway.
func (p *PGProvider) NewerThan(ctx context.Context, afterListingID string, limit int) ([]model.ListingCandidate, error) {
	if afterListingID == "" {
		return p.Recent(ctx, limit)
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE created_at > COALESCE(
		   (SELECT created_at FROM listings WHERE id = $1), 'epoch'::timestamptz)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		afterListingID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listings newer than %s: %w", afterListingID, err)
	}
	defer rows.Close()
	return scanListings(rows)
}

// Insert stores a manually entered listing inside the caller's
// transaction, so session accounting and the listing row commit or roll
// back together. The id is generated client side so the caller can
// reference the row before the insert completes.
func (p *PGProvider) Insert(ctx context.Context, tx pgx.Tx, l model.ListingCandidate) (*model.ListingCandidate, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.SourceType == "" {
		l.SourceType = model.SourceManual
	}
	l.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx,
		`INSERT INTO listings
		   (id, reference, title, client, description, amount, location,
		    deadline, service_type, source_url, source_type, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, '')::service_type, NULLIF($10, ''), $11::source_type, $12)`,
		l.ID, l.Reference, l.Title, l.Client, l.Description, l.Amount,
		l.Location, l.Deadline, string(l.ServiceType), l.SourceURL,
		string(l.SourceType), l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return &l, nil
}

func scanListings(rows pgx.Rows) ([]model.ListingCandidate, error) {
	out := make([]model.ListingCandidate, 0)
	for rows.Next() {
		var (
			l           model.ListingCandidate
			serviceType string
			sourceType  string
		)
		if err := rows.Scan(
			&l.ID, &l.Reference, &l.Title, &l.Client, &l.Description,
			&l.Amount, &l.Location, &l.Deadline, &serviceType,
			&l.SourceURL, &sourceType, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.ServiceType = model.ServiceType(serviceType)
		l.SourceType = model.SourceType(sourceType)
		out = append(out, l)
	}
	return out, rows.Err()
}
