package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"voto-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memHistory is an in-memory HistoryStore.
type memHistory struct {
	records map[string][]models.AlarmHistoryRecord
	err     error
}

func newMemHistory(records ...models.AlarmHistoryRecord) *memHistory {
	h := &memHistory{records: make(map[string][]models.AlarmHistoryRecord)}
	for _, rec := range records {
		h.records[rec.PlatformID] = append(h.records[rec.PlatformID], rec)
	}
	return h
}

func (h *memHistory) Append(ctx context.Context, rec models.AlarmHistoryRecord) error {
	h.records[rec.PlatformID] = append(h.records[rec.PlatformID], rec)
	return nil
}

func (h *memHistory) List(ctx context.Context, platformID string) ([]models.AlarmHistoryRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.records[platformID], nil
}

var t0 = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func histRec(mission, cycle, level int, source string, sentAt time.Time) models.AlarmHistoryRecord {
	return models.AlarmHistoryRecord{
		SentAt:        sentAt,
		PlatformID:    "SEA063",
		Glider:        63,
		Mission:       mission,
		Cycle:         cycle,
		SecurityLevel: level,
		Channel:       models.ChannelText,
		Role:          models.RolePilot,
		AlarmSource:   source,
	}
}

func alarmEvent(mission, cycle, level int, source string) models.AlarmEvent {
	return models.AlarmEvent{
		PlatformID:    "SEA063",
		Glider:        63,
		Mission:       mission,
		Cycle:         cycle,
		SecurityLevel: level,
		AlarmSource:   source,
		DetectedAt:    t0,
		Alarm:         level > 0,
	}
}

func TestFindPreviousAction_MatchesMissionCycleLevel(t *testing.T) {
	history := []models.AlarmHistoryRecord{
		histRec(5, 3, 2, models.SourceCommLog, t0.Add(time.Minute)),
		histRec(5, 3, 2, models.SourceAlarmEmail, t0),
	}

	matches := FindPreviousAction(history, alarmEvent(5, 3, 2, models.SourceCommLog))
	require.Len(t, matches, 2)
	assert.Equal(t, t0, matches[0].SentAt)

	for _, ev := range []models.AlarmEvent{
		alarmEvent(6, 3, 2, models.SourceCommLog),
		alarmEvent(5, 4, 2, models.SourceCommLog),
		alarmEvent(5, 3, 1, models.SourceCommLog),
	} {
		assert.Empty(t, FindPreviousAction(history, ev))
	}
}

func TestFindPreviousAction_IgnoresSurfacing(t *testing.T) {
	history := []models.AlarmHistoryRecord{histRec(5, 3, 0, models.SourceSurfacingMail, t0)}
	assert.Empty(t, FindPreviousAction(history, alarmEvent(5, 3, 0, models.SourceCommLog)))

	history = []models.AlarmHistoryRecord{histRec(5, 3, 2, models.SourceCommLog, t0)}
	assert.Empty(t, FindPreviousAction(history, alarmEvent(5, 3, 2, models.SourceSurfacingMail)))
}

func TestMatcher_IsDuplicate(t *testing.T) {
	store := newMemHistory(histRec(5, 3, 2, models.SourceCommLog, t0))
	m := NewMatcher(store, zap.NewNop())
	ctx := context.Background()

	dup, matches, err := m.IsDuplicate(ctx, alarmEvent(5, 3, 2, models.SourceAlarmEmail))
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Len(t, matches, 1)

	dup, _, err = m.IsDuplicate(ctx, alarmEvent(5, 4, 2, models.SourceAlarmEmail))
	require.NoError(t, err)
	assert.False(t, dup)

	// the matcher never writes
	assert.Len(t, store.records["SEA063"], 1)
}

func TestMatcher_StoreError(t *testing.T) {
	store := newMemHistory()
	store.err = errors.New("disk gone")
	m := NewMatcher(store, zap.NewNop())

	_, _, err := m.IsDuplicate(context.Background(), alarmEvent(5, 3, 2, models.SourceCommLog))
	assert.ErrorIs(t, err, store.err)
}

func TestFindSailbuoyAction(t *testing.T) {
	rec := func(source string, sentAt time.Time) models.AlarmHistoryRecord {
		return models.AlarmHistoryRecord{SentAt: sentAt, PlatformID: "SB2120", Glider: 2120, Mission: 7, AlarmSource: source}
	}
	history := []models.AlarmHistoryRecord{
		rec(VarLeak, t0),
		rec(VarWithinTrackRadius, t0.Add(-4*time.Hour)),
	}

	assert.Len(t, FindSailbuoyAction(history, 2120, 7, VarLeak, time.Time{}), 1)
	assert.Empty(t, FindSailbuoyAction(history, 2120, 8, VarLeak, time.Time{}))
	assert.Empty(t, FindSailbuoyAction(history, 2120, 7, VarWarning, time.Time{}))
	assert.Empty(t, FindSailbuoyAction(history, 2120, 7, VarWithinTrackRadius, t0.Add(-3*time.Hour)))
	assert.Len(t, FindSailbuoyAction(history, 2120, 7, VarWithinTrackRadius, t0.Add(-5*time.Hour)), 1)
}
