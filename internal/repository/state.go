package repository

import (
	"context"
	"time"

	"voto-alerts/internal/models"
)

// StateStore holds the small pieces of state carried between runs.
// None of it is a ledger except the redial records.
type StateStore interface {
	// LoadMailAlarms returns the platform -> last mail alarm cache.
	LoadMailAlarms(ctx context.Context) (map[string]models.MailAlarmState, error)
	// SaveMailAlarms rewrites the whole cache.
	SaveMailAlarms(ctx context.Context, alarms map[string]models.MailAlarmState) error

	// LoadSurfacingCursor returns the zero time when no cursor was saved.
	LoadSurfacingCursor(ctx context.Context) (time.Time, error)
	SaveSurfacingCursor(ctx context.Context, cursor time.Time) error

	// LoadMailSentinel returns the newest subject seen by the last run.
	LoadMailSentinel(ctx context.Context) (subject string, ok bool, err error)
	SaveMailSentinel(ctx context.Context, subject string) error

	LoadFailCount(ctx context.Context) (int, error)
	SaveFailCount(ctx context.Context, count int) error

	// LoadRedials returns the ledger keyed by the original call id.
	LoadRedials(ctx context.Context) (map[string]models.RedialRecord, error)
	AppendRedial(ctx context.Context, record models.RedialRecord) error
}
