package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"voto-alerts/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockHistoryDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresHistoryStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewPostgresHistoryStore(db, zap.NewNop())
	return db, mock, store
}

func TestPostgresHistoryStore_Append(t *testing.T) {
	db, mock, store := setupMockHistoryDB(t)
	defer db.Close()

	rec := testRecord("SEA063", models.ChannelCall, models.RoleSupervisor)
	mock.ExpectExec(`INSERT INTO alarm_history`).
		WithArgs(rec.SentAt, "SEA063", 63, 48, 120, 2, "call", "supervisor", models.SourceCommLog).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryStore_AppendError(t *testing.T) {
	db, mock, store := setupMockHistoryDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO alarm_history`).WillReturnError(errors.New("connection reset"))

	err := store.Append(context.Background(), testRecord("SEA063", models.ChannelText, models.RolePilot))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresHistoryStore_List(t *testing.T) {
	db, mock, store := setupMockHistoryDB(t)
	defer db.Close()

	rec := testRecord("SEA063", models.ChannelText, models.RoleSelfVolunteered)
	rows := sqlmock.NewRows([]string{
		"sent_at", "platform_id", "glider", "mission", "cycle",
		"security_level", "channel", "role", "alarm_source",
	}).AddRow(
		rec.SentAt, "SEA063", 63, 48, 120,
		2, "text", "self-volunteered", models.SourceCommLog,
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs("SEA063").
		WillReturnRows(rows)

	records, err := store.List(context.Background(), "SEA063")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryStore_EnsureSchema(t *testing.T) {
	db, mock, store := setupMockHistoryDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS alarm_history`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistoryStore_RequiresPlatform(t *testing.T) {
	db, _, store := setupMockHistoryDB(t)
	defer db.Close()

	_, err := store.List(context.Background(), "")
	assert.Error(t, err)
}
