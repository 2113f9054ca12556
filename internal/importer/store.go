// Package importer persists canonical venues idempotently and records
// scrape run audit rows. Two backends are provided: Postgres (pgx) and
// SQLite (modernc).
package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-cli/internal/venue"
)

// ImportResult summarizes a bulk import: how many observations arrived and
// how many were written.
type ImportResult struct {
	Found    int `json:"found"`
	Imported int `json:"imported"`
}

// Store is the persistence interface for the venue import pipeline.
// Upsert must be atomic per record: the backing uniqueness constraints, not
// an application lock, guarantee that racing writers never create two rows
// for the same identity.
type Store interface {
	// Upsert writes a canonical record, matching an existing row by any
	// populated per-source external ID first and the normalized
	// (name, address) pair second. Returns whether a new row was created.
	Upsert(ctx context.Context, v *venue.Venue) (created bool, err error)

	// BulkImport builds each observation against whatever existing row
	// identity resolution finds and upserts it. Failures on individual
	// records are logged and skipped; the count reflects records actually
	// written.
	BulkImport(ctx context.Context, obs []venue.RawObservation) (ImportResult, error)

	// GetVenueByExternalID loads the venue holding the given provider ID,
	// or nil if none.
	GetVenueByExternalID(ctx context.Context, src venue.Source, externalID string) (*venue.Venue, error)

	// GetVenueByIdentity loads the venue with the given normalized
	// identity keys, or nil if none.
	GetVenueByIdentity(ctx context.Context, nameKey, addressKey string) (*venue.Venue, error)

	// RecordRun writes one scrape run audit row.
	RecordRun(ctx context.Context, run *venue.ScrapeRun) error

	// ListRuns returns the most recent scrape runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]venue.ScrapeRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// bulkImport is the backend-independent import loop shared by both stores.
func bulkImport(ctx context.Context, s Store, b *venue.Builder, obs []venue.RawObservation) (ImportResult, error) {
	log := zap.L().With(zap.String("component", "importer"))
	res := ImportResult{Found: len(obs)}

	for _, raw := range obs {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "importer: bulk import interrupted")
		}

		existing, err := findExisting(ctx, s, raw)
		if err != nil {
			log.Warn("identity lookup failed",
				zap.String("source", string(raw.Source)),
				zap.String("source_id", raw.SourceID),
				zap.Error(err),
			)
			continue
		}

		built, err := b.Build(raw, existing)
		if err != nil {
			log.Warn("observation rejected",
				zap.String("source", string(raw.Source)),
				zap.String("source_id", raw.SourceID),
				zap.Error(err),
			)
			continue
		}

		if _, err := s.Upsert(ctx, built); err != nil {
			log.Warn("upsert failed",
				zap.String("name", built.Name),
				zap.String("source", string(raw.Source)),
				zap.Error(err),
			)
			continue
		}

		res.Imported++
	}

	return res, nil
}

// findExisting resolves the row an observation should fold into: its own
// source's external ID first, then the normalized (name, address) pair.
func findExisting(ctx context.Context, s Store, raw venue.RawObservation) (*venue.Venue, error) {
	if raw.SourceID != "" && raw.Source.Valid() {
		v, err := s.GetVenueByExternalID(ctx, raw.Source, raw.SourceID)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}

	nameKey := venue.IdentityKey(raw.Name)
	addressKey := venue.IdentityKey(raw.Address)
	if nameKey == "" || addressKey == "" {
		return nil, nil
	}
	return s.GetVenueByIdentity(ctx, nameKey, addressKey)
}
