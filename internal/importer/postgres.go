package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-cli/internal/db"
	"github.com/sells-group/venue-cli/internal/venue"
)

// PostgresStore implements Store on a pgx pool. Identity races are settled
// by the unique constraints in the migration below, not by application
// locks: a loser of an insert race retries once as an update against the
// row that won.
type PostgresStore struct {
	pool    db.Pool
	builder *venue.Builder
}

// NewPostgres creates a PostgresStore.
func NewPostgres(pool db.Pool, builder *venue.Builder) *PostgresStore {
	return &PostgresStore{pool: pool, builder: builder}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id                 BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name               TEXT NOT NULL,
	address            TEXT NOT NULL,
	name_key           TEXT NOT NULL,
	address_key        TEXT NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	zip                TEXT NOT NULL DEFAULT '',
	latitude           DOUBLE PRECISION NOT NULL,
	longitude          DOUBLE PRECISION NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	subcategory        TEXT NOT NULL DEFAULT '',
	cuisine_type       TEXT NOT NULL DEFAULT '',
	price_range        SMALLINT CHECK (price_range BETWEEN 1 AND 4),
	google_maps_id     TEXT,
	yelp_id            TEXT,
	tripadvisor_id     TEXT,
	foursquare_id      TEXT,
	opentable_id       TEXT,
	google_rating      DOUBLE PRECISION CHECK (google_rating BETWEEN 0 AND 5),
	google_review_count      INT CHECK (google_review_count >= 0),
	yelp_rating        DOUBLE PRECISION CHECK (yelp_rating BETWEEN 0 AND 5),
	yelp_review_count        INT CHECK (yelp_review_count >= 0),
	tripadvisor_rating DOUBLE PRECISION CHECK (tripadvisor_rating BETWEEN 0 AND 5),
	tripadvisor_review_count INT CHECK (tripadvisor_review_count >= 0),
	foursquare_rating  DOUBLE PRECISION CHECK (foursquare_rating BETWEEN 0 AND 5),
	foursquare_review_count  INT CHECK (foursquare_review_count >= 0),
	opentable_rating   DOUBLE PRECISION CHECK (opentable_rating BETWEEN 0 AND 5),
	opentable_review_count   INT CHECK (opentable_review_count >= 0),
	aggregate_rating   DOUBLE PRECISION,
	total_review_count INT NOT NULL DEFAULT 0,
	popularity_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	hours              JSONB,
	amenities          JSONB,
	tags               JSONB,
	photos             JSONB,
	last_updated       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name_key, address_key)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_google_maps_id ON venues (google_maps_id) WHERE google_maps_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_yelp_id ON venues (yelp_id) WHERE yelp_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_tripadvisor_id ON venues (tripadvisor_id) WHERE tripadvisor_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_foursquare_id ON venues (foursquare_id) WHERE foursquare_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_opentable_id ON venues (opentable_id) WHERE opentable_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_venues_popularity ON venues (popularity_score DESC);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	region          TEXT NOT NULL,
	category        TEXT NOT NULL,
	source          TEXT NOT NULL,
	venues_found    INT NOT NULL DEFAULT 0,
	venues_imported INT NOT NULL DEFAULT 0,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	error_message   TEXT
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_completed_at ON scrape_runs (completed_at DESC);
`

var (
	venueSelectSQL = "SELECT id, " + strings.Join(venueColumns, ", ") + " FROM venues"
	venueInsertSQL = buildInsertSQL()
	venueUpdateSQL = buildUpdateSQL()
)

func buildInsertSQL() string {
	placeholders := make([]string, len(venueColumns))
	for i := range venueColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO venues (%s) VALUES (%s) RETURNING id",
		strings.Join(venueColumns, ", "),
		strings.Join(placeholders, ", "),
	)
}

func buildUpdateSQL() string {
	// Everything except created_at, which is set once at insert.
	cols := venueColumns[:len(venueColumns)-1]
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	return fmt.Sprintf(
		"UPDATE venues SET %s WHERE id = $%d",
		strings.Join(sets, ", "),
		len(cols)+1,
	)
}

// Migrate creates the venues and scrape_runs tables. The statements run in
// one transaction so a failed migration leaves no half-built schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, postgresMigration)
		return execErr
	})
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Upsert writes one canonical record. See Store for the identity contract.
func (s *PostgresStore) Upsert(ctx context.Context, v *venue.Venue) (bool, error) {
	id, err := s.resolveID(ctx, v)
	if err != nil {
		return false, err
	}

	if id != 0 {
		return false, s.update(ctx, id, v)
	}

	insertErr := s.insert(ctx, v)
	if insertErr == nil {
		return true, nil
	}

	// A concurrent writer may have won the insert race; fold into the row
	// that now exists rather than surfacing the conflict.
	if !isUniqueViolation(insertErr) {
		return false, insertErr
	}

	id, err = s.resolveID(ctx, v)
	if err != nil {
		return false, err
	}
	if id == 0 {
		return false, insertErr
	}
	return false, s.update(ctx, id, v)
}

// BulkImport builds and upserts each observation, skipping failures.
func (s *PostgresStore) BulkImport(ctx context.Context, obs []venue.RawObservation) (ImportResult, error) {
	return bulkImport(ctx, s, s.builder, obs)
}

// resolveID finds the row matching the record's identity: per-source
// external IDs in canonical source order first, then the normalized
// (name, address) pair. Returns 0 when no row matches.
func (s *PostgresStore) resolveID(ctx context.Context, v *venue.Venue) (int64, error) {
	for _, src := range venue.Sources {
		extID, ok := v.SourceIDs[src]
		if !ok || extID == "" {
			continue
		}

		var id int64
		err := s.pool.QueryRow(ctx,
			fmt.Sprintf("SELECT id FROM venues WHERE %s = $1", sourceIDColumns[src]),
			extID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(err, "postgres: resolve by %s", sourceIDColumns[src])
		}
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM venues WHERE name_key = $1 AND address_key = $2",
		v.NameKey, v.AddressKey,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return 0, eris.Wrap(err, "postgres: resolve by identity")
}

func (s *PostgresStore) insert(ctx context.Context, v *venue.Venue) error {
	args, err := encodeVenue(v)
	if err != nil {
		return err
	}

	if err := s.pool.QueryRow(ctx, venueInsertSQL, args...).Scan(&v.ID); err != nil {
		return eris.Wrapf(err, "postgres: insert venue %q", v.Name)
	}
	return nil
}

func (s *PostgresStore) update(ctx context.Context, id int64, v *venue.Venue) error {
	args, err := encodeVenue(v)
	if err != nil {
		return err
	}

	// Drop created_at and append the row id.
	args = append(args[:len(args)-1], id)
	if _, err := s.pool.Exec(ctx, venueUpdateSQL, args...); err != nil {
		return eris.Wrapf(err, "postgres: update venue %d", id)
	}
	v.ID = id
	return nil
}

// GetVenueByExternalID loads a venue by provider ID, nil if absent.
func (s *PostgresStore) GetVenueByExternalID(ctx context.Context, src venue.Source, externalID string) (*venue.Venue, error) {
	col, ok := sourceIDColumns[src]
	if !ok {
		return nil, eris.Errorf("postgres: unknown source %q", src)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf("%s WHERE %s = $1", venueSelectSQL, col), externalID)
	v, err := scanVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get venue by %s", col)
	}
	return v, nil
}

// GetVenueByIdentity loads a venue by normalized identity keys, nil if absent.
func (s *PostgresStore) GetVenueByIdentity(ctx context.Context, nameKey, addressKey string) (*venue.Venue, error) {
	row := s.pool.QueryRow(ctx,
		venueSelectSQL+" WHERE name_key = $1 AND address_key = $2",
		nameKey, addressKey,
	)
	v, err := scanVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get venue by identity")
	}
	return v, nil
}

// RecordRun writes one scrape run audit row.
func (s *PostgresStore) RecordRun(ctx context.Context, run *venue.ScrapeRun) error {
	started, completed := runTimes(run)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (region, category, source, venues_found, venues_imported,
			started_at, completed_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		run.Region, run.Category, run.Source, run.VenuesFound, run.VenuesImported,
		started, completed, string(run.Status), nullableString(run.ErrorMessage),
	).Scan(&run.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: record run %s/%s", run.Region, run.Category)
	}
	return nil
}

// ListRuns returns recent scrape runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]venue.ScrapeRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, region, category, source, venues_found, venues_imported,
			started_at, completed_at, status, COALESCE(error_message, '')
		FROM scrape_runs
		ORDER BY completed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []venue.ScrapeRun
	for rows.Next() {
		var r venue.ScrapeRun
		if err := rows.Scan(&r.ID, &r.Region, &r.Category, &r.Source,
			&r.VenuesFound, &r.VenuesImported, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
