// Package store persists the card collection locally. The collection is
// written as a whole snapshot on every mutation and read back once at
// startup, so the interface is a snapshot pair rather than row-level CRUD.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/slabworks/gradepipe/internal/model"
)

// Store is the local persistence interface for the card collection.
type Store interface {
	// SaveSnapshot atomically replaces the stored collection.
	SaveSnapshot(ctx context.Context, cards []model.Card) error

	// LoadSnapshot returns the stored collection, newest first. An empty
	// store yields an empty slice, not an error.
	LoadSnapshot(ctx context.Context) ([]model.Card, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	// Backend is "sqlite" (default) or "postgres".
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`

	// ConnString is the PostgreSQL connection string.
	ConnString string `yaml:"conn_string" mapstructure:"conn_string"`

	Pool PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open constructs the configured backend and runs migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "gradepipe.db"
		}
		s, err = NewSQLite(path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.ConnString, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
