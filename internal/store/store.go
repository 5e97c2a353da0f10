package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidID      = errors.New("invalid session id")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Record is a persisted session.
type Record struct {
	ID        string          `json:"id"`
	Snapshot  memory.Snapshot `json:"snapshot"`
	Stopped   bool            `json:"stopped"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Summary describes a stored session without its geometry.
type Summary struct {
	ID        string    `json:"id"`
	Strokes   int       `json:"strokes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store saves and loads session records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateID rejects ids that are empty, too long or could escape a
// directory.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Config selects and configures a backend.
type Config struct {
	Backend   string `koanf:"backend"`
	Dir       string `koanf:"dir"`
	DSN       string `koanf:"dsn"`
	CacheSize int    `koanf:"cache_size"`
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, cfg.CacheSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func stamp(rec *Record) {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}
