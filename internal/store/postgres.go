package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/radius-cli/internal/model"
	"github.com/sells-group/radius-cli/pkg/geocode"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool         Pool
	cacheTTLDays int
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	o := applyOptions(opts)
	return &PostgresStore{pool: pool, cacheTTLDays: o.cacheTTLDays}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool Pool, opts ...Option) *PostgresStore {
	o := applyOptions(opts)
	return &PostgresStore{pool: pool, cacheTTLDays: o.cacheTTLDays}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS codes (
	code       TEXT PRIMARY KEY,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	source     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS build_state (
	key        TEXT PRIMARY KEY,
	cursor     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS builds (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	scanned     INTEGER NOT NULL DEFAULT 0,
	accepted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	quality      TEXT NOT NULL,
	matched      BOOLEAN NOT NULL,
	exact        BOOLEAN NOT NULL,
	source       TEXT NOT NULL,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_codes_source ON codes(source);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertCodes(ctx context.Context, records []model.CodeRecord, source string) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return eris.Wrap(err, "postgres: upsert codes")
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO codes (code, latitude, longitude, source, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (code) DO UPDATE SET
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				source = EXCLUDED.source,
				updated_at = EXCLUDED.updated_at`,
			rec.Code, rec.Latitude, rec.Longitude, source)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert code %s", rec.Code)
		}
	}
	return nil
}

func (s *PostgresStore) Codes(ctx context.Context) ([]model.CodeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, latitude, longitude FROM codes ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list codes")
	}
	defer rows.Close()

	var out []model.CodeRecord
	for rows.Next() {
		var rec model.CodeRecord
		if err := rows.Scan(&rec.Code, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan code")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate codes")
}

func (s *PostgresStore) CountCodes(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM codes`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count codes")
}

func (s *PostgresStore) Cursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.pool.QueryRow(ctx,
		`SELECT cursor FROM build_state WHERE key = $1`, cursorKey).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return cursor, eris.Wrap(err, "postgres: get cursor")
}

func (s *PostgresStore) SetCursor(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO build_state (key, cursor, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at`,
		cursorKey, code)
	return eris.Wrap(err, "postgres: set cursor")
}

func (s *PostgresStore) ClearCursor(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM build_state WHERE key = $1`, cursorKey)
	return eris.Wrap(err, "postgres: clear cursor")
}

func (s *PostgresStore) StartBuild(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO builds (id, started_at) VALUES ($1, $2)`, id, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "postgres: start build")
	}
	return id, nil
}

func (s *PostgresStore) FinishBuild(ctx context.Context, buildID string, scanned, accepted int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE builds SET finished_at = $1, scanned = $2, accepted = $3 WHERE id = $4`,
		time.Now().UTC(), scanned, accepted, buildID)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish build %s", buildID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: build not found: %s", buildID)
	}
	return nil
}

func (s *PostgresStore) CachedLookup(ctx context.Context, key string) (*geocode.Result, bool, error) {
	query := `
		SELECT latitude, longitude, quality, matched, exact, source
		FROM geocode_cache WHERE address_hash = $1`
	if s.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", s.cacheTTLDays)
	}
	row := s.pool.QueryRow(ctx, query, key)

	var r geocode.Result
	err := row.Scan(&r.Latitude, &r.Longitude, &r.Quality, &r.Matched, &r.Exact, &r.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: cached lookup")
	}
	return &r, true, nil
}

func (s *PostgresStore) StoreLookup(ctx context.Context, key string, r *geocode.Result) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, quality, matched, exact, source, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			exact = EXCLUDED.exact,
			source = EXCLUDED.source,
			cached_at = EXCLUDED.cached_at`,
		key, r.Latitude, r.Longitude, r.Quality, r.Matched, r.Exact, r.Source)
	return eris.Wrap(err, "postgres: store lookup")
}
