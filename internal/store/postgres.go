package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/slabworks/gradepipe/internal/db"
	"github.com/slabworks/gradepipe/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cards (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_created_at ON cards(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveSnapshot replaces the stored collection in one transaction, bulk
// loading the rows over the COPY protocol.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, cards []model.Card) error {
	rows := make([][]any, 0, len(cards))
	for i := range cards {
		payload, err := json.Marshal(cards[i])
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal card %s", cards[i].ID)
		}
		rows = append(rows, []any{cards[i].ID, cards[i].CreatedAt.UTC(), payload})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cards`); err != nil {
		return eris.Wrap(err, "postgres: clear snapshot")
	}
	if _, err := db.CopyInto(ctx, tx, "cards", []string{"id", "created_at", "payload"}, rows); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit snapshot")
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) ([]model.Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM cards ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshot")
	}
	defer rows.Close()

	cards := []model.Card{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan card")
		}
		var card model.Card
		if err := json.Unmarshal(payload, &card); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal card")
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshot iterate")
	}

	model.SortCards(cards)
	return cards, nil
}
