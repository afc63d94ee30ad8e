package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slabworks/gradepipe/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_SaveSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cards`).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"cards"}, []string{"id", "created_at", "payload"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	cards := []model.Card{
		model.NewCard("a-front.jpg", "a-back.jpg"),
		model.NewCard("b-front.jpg", ""),
	}
	err := s.SaveSnapshot(context.Background(), cards)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	err := s.SaveSnapshot(context.Background(), []model.Card{model.NewCard("a.jpg", "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot_EmptyCollection(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// An empty snapshot still clears the table; COPY is skipped.
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cards`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	err := s.SaveSnapshot(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	card := model.NewCard("a-front.jpg", "a-back.jpg")
	card.Status = model.StatusReviewed
	card.PlayerName = "Nolan Ryan"
	payload, err := json.Marshal(card)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM cards`).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, card.ID, got[0].ID)
	assert.Equal(t, "Nolan Ryan", got[0].PlayerName)
	assert.Equal(t, model.StatusReviewed, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSnapshot_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM cards`).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	got, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSnapshot_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM cards`).
		WillReturnError(errors.New("connection reset"))

	_, err := s.LoadSnapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}
