package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// DefaultCacheSize is the record cache size when none is configured.
const DefaultCacheSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS sketch_sessions (
  id TEXT PRIMARY KEY,
  snapshot JSONB NOT NULL,
  stopped BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sketch_sessions_updated_at ON sketch_sessions (updated_at DESC);
`

// PostgresStore keeps sessions in Postgres with an LRU read cache.
type PostgresStore struct {
	db    *sql.DB
	cache *lru.Cache[string, Record]

	schemaOnce sync.Once
	schemaErr  error
}

// NewPostgresStore connects to dsn and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string, cacheSize int) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Record](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &PostgresStore{db: db, cache: cache}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			s.schemaErr = fmt.Errorf("creating schema: %w", err)
		}
	})
	return s.schemaErr
}

// Save upserts rec.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}
	stamp(&rec)
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", rec.ID, err)
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO sketch_sessions (id, snapshot, stopped, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id)
DO UPDATE SET snapshot=EXCLUDED.snapshot,
  stopped=EXCLUDED.stopped,
  updated_at=EXCLUDED.updated_at
RETURNING created_at`,
		rec.ID, data, rec.Stopped, rec.CreatedAt, rec.UpdatedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		s.cache.Remove(rec.ID)
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	s.cache.Add(rec.ID, rec)
	return nil
}

// Load reads one session, from the cache when possible.
func (s *PostgresStore) Load(ctx context.Context, id string) (Record, error) {
	if err := ValidateID(id); err != nil {
		return Record{}, err
	}
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}

	var (
		rec  = Record{ID: id}
		data []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT snapshot, stopped, created_at, updated_at
FROM sketch_sessions WHERE id = $1`, id).Scan(&data, &rec.Stopped, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &rec.Snapshot); err != nil {
		return Record{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	s.cache.Add(id, rec)
	return rec, nil
}

// Delete removes a session.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.cache.Remove(id)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sketch_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// List returns stored sessions, most recently updated first.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,
  COALESCE(jsonb_array_length(CASE WHEN jsonb_typeof(snapshot->'strokes') = 'array' THEN snapshot->'strokes' END), 0),
  updated_at
FROM sketch_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Strokes, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
