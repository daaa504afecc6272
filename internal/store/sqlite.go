package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db           *sql.DB
	cacheTTLDays int
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	o := applyOptions(opts)
	return &SQLiteStore{db: db, cacheTTLDays: o.cacheTTLDays}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS codes (
	code       TEXT PRIMARY KEY,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	source     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS build_state (
	key        TEXT PRIMARY KEY,
	cursor     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS builds (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	scanned     INTEGER NOT NULL DEFAULT 0,
	accepted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	quality      TEXT NOT NULL,
	matched      INTEGER NOT NULL,
	exact        INTEGER NOT NULL,
	source       TEXT NOT NULL,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_codes_source ON codes(source);
`

const cursorKey = "universe"

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCodes(ctx context.Context, records []model.CodeRecord, source string) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert codes")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO codes (code, latitude, longitude, source, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (code) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert codes")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return eris.Wrap(err, "sqlite: upsert codes")
		}
		if _, err := stmt.ExecContext(ctx, rec.Code, rec.Latitude, rec.Longitude, source); err != nil {
			return eris.Wrapf(err, "sqlite: upsert code %s", rec.Code)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert codes")
}

func (s *SQLiteStore) Codes(ctx context.Context) ([]model.CodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, latitude, longitude FROM codes ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list codes")
	}
	defer rows.Close()

	var out []model.CodeRecord
	for rows.Next() {
		var rec model.CodeRecord
		if err := rows.Scan(&rec.Code, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan code")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate codes")
}

func (s *SQLiteStore) CountCodes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM codes`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count codes")
}

func (s *SQLiteStore) Cursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM build_state WHERE key = ?`, cursorKey).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, eris.Wrap(err, "sqlite: get cursor")
}

func (s *SQLiteStore) SetCursor(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO build_state (key, cursor, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT (key) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		cursorKey, code)
	return eris.Wrap(err, "sqlite: set cursor")
}

func (s *SQLiteStore) ClearCursor(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM build_state WHERE key = ?`, cursorKey)
	return eris.Wrap(err, "sqlite: clear cursor")
}

func (s *SQLiteStore) StartBuild(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, started_at) VALUES (?, ?)`, id, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: start build")
	}
	return id, nil
}

func (s *SQLiteStore) FinishBuild(ctx context.Context, buildID string, scanned, accepted int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET finished_at = ?, scanned = ?, accepted = ? WHERE id = ?`,
		time.Now().UTC(), scanned, accepted, buildID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish build %s", buildID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: build not found: %s", buildID)
	}
	return nil
}

func (s *SQLiteStore) CachedLookup(ctx context.Context, key string) (*geocode.Result, bool, error) {
	query := `
		SELECT latitude, longitude, quality, matched, exact, source
		FROM geocode_cache WHERE address_hash = ?`
	if s.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > datetime('now', '-%d days')", s.cacheTTLDays)
	}
	row := s.db.QueryRowContext(ctx, query, key)

	var r geocode.Result
	var matched, exact int
	err := row.Scan(&r.Latitude, &r.Longitude, &r.Quality, &matched, &exact, &r.Source)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: cached lookup")
	}
	r.Matched = matched != 0
	r.Exact = exact != 0
	return &r, true, nil
}

func (s *SQLiteStore) StoreLookup(ctx context.Context, key string, r *geocode.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, quality, matched, exact, source, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			quality = excluded.quality,
			matched = excluded.matched,
			exact = excluded.exact,
			source = excluded.source,
			cached_at = excluded.cached_at`,
		key, r.Latitude, r.Longitude, r.Quality, boolToInt(r.Matched), boolToInt(r.Exact), r.Source)
	return eris.Wrap(err, "sqlite: store lookup")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
