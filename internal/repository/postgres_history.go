package repository

import (
	"context"
	"database/sql"
	"fmt"

	"voto-alerts/internal/models"

	"go.uber.org/zap"
)

// PostgresHistoryStore keeps the alarm history in the alarm_history table.
type PostgresHistoryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresHistoryStore creates the store.
func NewPostgresHistoryStore(db *sql.DB, logger *zap.Logger) *PostgresHistoryStore {
	return &PostgresHistoryStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the table and index when missing.
func (r *PostgresHistoryStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS alarm_history (
			id             BIGSERIAL PRIMARY KEY,
			sent_at        TIMESTAMPTZ NOT NULL,
			platform_id    TEXT        NOT NULL,
			glider         INTEGER     NOT NULL,
			mission        INTEGER     NOT NULL,
			cycle          INTEGER     NOT NULL,
			security_level INTEGER     NOT NULL,
			channel        TEXT        NOT NULL,
			role           TEXT        NOT NULL,
			alarm_source   TEXT        NOT NULL
		);
		CREATE INDEX IF NOT EXISTS alarm_history_platform_idx ON alarm_history (platform_id, mission, cycle)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create alarm_history: %w", err)
	}
	return nil
}

// Append inserts one record.
func (r *PostgresHistoryStore) Append(ctx context.Context, record models.AlarmHistoryRecord) error {
	if record.PlatformID == "" {
		return fmt.Errorf("platform_id is required")
	}

	query := `
		INSERT INTO alarm_history (
			sent_at,
			platform_id,
			glider,
			mission,
			cycle,
			security_level,
			channel,
			role,
			alarm_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.SentAt,
		record.PlatformID,
		record.Glider,
		record.Mission,
		record.Cycle,
		record.SecurityLevel,
		string(record.Channel),
		string(record.Role),
		record.AlarmSource,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alarm history: %w", err)
	}
	return nil
}

// List returns every record of a platform ordered by insertion.
func (r *PostgresHistoryStore) List(ctx context.Context, platformID string) ([]models.AlarmHistoryRecord, error) {
	if platformID == "" {
		return nil, fmt.Errorf("platform_id is required")
	}

	query := `
		SELECT
			sent_at,
			platform_id,
			glider,
			mission,
			cycle,
			security_level,
			channel,
			role,
			alarm_source
		FROM alarm_history
		WHERE platform_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, platformID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm history: %w", err)
	}
	defer rows.Close()

	var records []models.AlarmHistoryRecord
	for rows.Next() {
		var rec models.AlarmHistoryRecord
		var channel, role string
		if err := rows.Scan(
			&rec.SentAt,
			&rec.PlatformID,
			&rec.Glider,
			&rec.Mission,
			&rec.Cycle,
			&rec.SecurityLevel,
			&channel,
			&role,
			&rec.AlarmSource,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alarm history: %w", err)
		}
		rec.Channel = models.Channel(channel)
		rec.Role = models.Role(role)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarm history: %w", err)
	}

	return records, nil
}
