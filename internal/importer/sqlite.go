package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/venue-cli/internal/venue"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-host
// deployments and tests. The schema mirrors the Postgres one; SQLite's
// writer lock plus the same unique indexes keep upserts race-free.
type SQLiteStore struct {
	db      *sql.DB
	builder *venue.Builder
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string, builder *venue.Builder) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB, builder: builder}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	address            TEXT NOT NULL,
	name_key           TEXT NOT NULL,
	address_key        TEXT NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	zip                TEXT NOT NULL DEFAULT '',
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	subcategory        TEXT NOT NULL DEFAULT '',
	cuisine_type       TEXT NOT NULL DEFAULT '',
	price_range        INTEGER CHECK (price_range BETWEEN 1 AND 4),
	google_maps_id     TEXT,
	yelp_id            TEXT,
	tripadvisor_id     TEXT,
	foursquare_id      TEXT,
	opentable_id       TEXT,
	google_rating      REAL CHECK (google_rating BETWEEN 0 AND 5),
	google_review_count      INTEGER CHECK (google_review_count >= 0),
	yelp_rating        REAL CHECK (yelp_rating BETWEEN 0 AND 5),
	yelp_review_count        INTEGER CHECK (yelp_review_count >= 0),
	tripadvisor_rating REAL CHECK (tripadvisor_rating BETWEEN 0 AND 5),
	tripadvisor_review_count INTEGER CHECK (tripadvisor_review_count >= 0),
	foursquare_rating  REAL CHECK (foursquare_rating BETWEEN 0 AND 5),
	foursquare_review_count  INTEGER CHECK (foursquare_review_count >= 0),
	opentable_rating   REAL CHECK (opentable_rating BETWEEN 0 AND 5),
	opentable_review_count   INTEGER CHECK (opentable_review_count >= 0),
	aggregate_rating   REAL,
	total_review_count INTEGER NOT NULL DEFAULT 0,
	popularity_score   REAL NOT NULL DEFAULT 0,
	quality_score      REAL NOT NULL DEFAULT 0,
	hours              TEXT,
	amenities          TEXT,
	tags               TEXT,
	photos             TEXT,
	last_updated       DATETIME NOT NULL,
	created_at         DATETIME NOT NULL,
	UNIQUE (name_key, address_key)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_google_maps_id ON venues (google_maps_id) WHERE google_maps_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_yelp_id ON venues (yelp_id) WHERE yelp_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_tripadvisor_id ON venues (tripadvisor_id) WHERE tripadvisor_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_foursquare_id ON venues (foursquare_id) WHERE foursquare_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_opentable_id ON venues (opentable_id) WHERE opentable_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS scrape_runs (
	id              TEXT PRIMARY KEY,
	region          TEXT NOT NULL,
	category        TEXT NOT NULL,
	source          TEXT NOT NULL,
	venues_found    INTEGER NOT NULL DEFAULT 0,
	venues_imported INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME NOT NULL,
	status          TEXT NOT NULL,
	error_message   TEXT
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_completed_at ON scrape_runs (completed_at DESC);
`

// Migrate creates the venues and scrape_runs tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var (
	sqliteVenueSelect = "SELECT id, " + strings.Join(venueColumns, ", ") + " FROM venues"
	sqliteVenueInsert = fmt.Sprintf(
		"INSERT INTO venues (%s) VALUES (%s)",
		strings.Join(venueColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(venueColumns)), ", "),
	)
	sqliteVenueUpdate = buildSQLiteUpdate()
)

func buildSQLiteUpdate() string {
	cols := venueColumns[:len(venueColumns)-1]
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	return fmt.Sprintf("UPDATE venues SET %s WHERE id = ?", strings.Join(sets, ", "))
}

// Upsert writes one canonical record. See Store for the identity contract.
func (s *SQLiteStore) Upsert(ctx context.Context, v *venue.Venue) (bool, error) {
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

	if !isSQLiteUniqueViolation(insertErr) {
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
func (s *SQLiteStore) BulkImport(ctx context.Context, obs []venue.RawObservation) (ImportResult, error) {
	return bulkImport(ctx, s, s.builder, obs)
}

func (s *SQLiteStore) resolveID(ctx context.Context, v *venue.Venue) (int64, error) {
	for _, src := range venue.Sources {
		extID, ok := v.SourceIDs[src]
		if !ok || extID == "" {
			continue
		}

		var id int64
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT id FROM venues WHERE %s = ?", sourceIDColumns[src]),
			extID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, eris.Wrapf(err, "sqlite: resolve by %s", sourceIDColumns[src])
		}
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM venues WHERE name_key = ? AND address_key = ?",
		v.NameKey, v.AddressKey,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return 0, eris.Wrap(err, "sqlite: resolve by identity")
}

func (s *SQLiteStore) insert(ctx context.Context, v *venue.Venue) error {
	args, err := encodeVenue(v)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, sqliteVenueInsert, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert venue %q", v.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	v.ID = id
	return nil
}

func (s *SQLiteStore) update(ctx context.Context, id int64, v *venue.Venue) error {
	args, err := encodeVenue(v)
	if err != nil {
		return err
	}

	args = append(args[:len(args)-1], id)
	if _, err := s.db.ExecContext(ctx, sqliteVenueUpdate, args...); err != nil {
		return eris.Wrapf(err, "sqlite: update venue %d", id)
	}
	v.ID = id
	return nil
}

// GetVenueByExternalID loads a venue by provider ID, nil if absent.
func (s *SQLiteStore) GetVenueByExternalID(ctx context.Context, src venue.Source, externalID string) (*venue.Venue, error) {
	col, ok := sourceIDColumns[src]
	if !ok {
		return nil, eris.Errorf("sqlite: unknown source %q", src)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf("%s WHERE %s = ?", sqliteVenueSelect, col), externalID)
	v, err := scanVenue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get venue by %s", col)
	}
	return v, nil
}

// GetVenueByIdentity loads a venue by normalized identity keys, nil if absent.
func (s *SQLiteStore) GetVenueByIdentity(ctx context.Context, nameKey, addressKey string) (*venue.Venue, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteVenueSelect+" WHERE name_key = ? AND address_key = ?",
		nameKey, addressKey,
	)
	v, err := scanVenue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get venue by identity")
	}
	return v, nil
}

// RecordRun writes one scrape run audit row.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *venue.ScrapeRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	started, completed := runTimes(run)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, region, category, source, venues_found, venues_imported,
			started_at, completed_at, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Region, run.Category, run.Source, run.VenuesFound, run.VenuesImported,
		started, completed, string(run.Status), nullableString(run.ErrorMessage),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record run %s/%s", run.Region, run.Category)
	}
	return nil
}

// ListRuns returns recent scrape runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]venue.ScrapeRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, region, category, source, venues_found, venues_imported,
			started_at, completed_at, status, COALESCE(error_message, '')
		FROM scrape_runs
		ORDER BY completed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []venue.ScrapeRun
	for rows.Next() {
		var r venue.ScrapeRun
		if err := rows.Scan(&r.ID, &r.Region, &r.Category, &r.Source,
			&r.VenuesFound, &r.VenuesImported, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
