package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/slabworks/gradepipe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cards (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_created_at ON cards(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored collection in one transaction so a crash
// mid-write never leaves a half-written snapshot behind.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, cards []model.Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards`); err != nil {
		return eris.Wrap(err, "sqlite: clear snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cards (id, created_at, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for i := range cards {
		payload, err := json.Marshal(cards[i])
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal card %s", cards[i].ID)
		}
		if _, err := stmt.ExecContext(ctx, cards[i].ID, cards[i].CreatedAt.UTC(), string(payload)); err != nil {
			return eris.Wrapf(err, "sqlite: insert card %s", cards[i].ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]model.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM cards ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshot")
	}
	defer rows.Close()

	cards := []model.Card{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan card")
		}
		var card model.Card
		if err := json.Unmarshal([]byte(payload), &card); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal card")
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshot iterate")
	}

	model.SortCards(cards)
	return cards, nil
}
