package consumer

import (
	"context"
	"strings"
	"testing"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const cloudSender = "Glider Cloud <administrateur@alseamar-cloud.com>"

var senders = []string{"administrateur@alseamar-cloud.com", "calglider"}

// fakeMailbox serves messages whose SeqNum is their index + 1.
type fakeMailbox struct {
	messages []Message
	fetched  [][]uint32
}

func (m *fakeMailbox) add(from, subject string, date time.Time) {
	m.messages = append(m.messages, Message{
		SeqNum:  uint32(len(m.messages) + 1),
		From:    from,
		Subject: subject,
		Date:    date,
	})
}

func (m *fakeMailbox) Search(ctx context.Context, subject string) ([]uint32, error) {
	var ids []uint32
	for _, msg := range m.messages {
		if subject == "" || strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(subject)) {
			ids = append(ids, msg.SeqNum)
		}
	}
	return ids, nil
}

func (m *fakeMailbox) Fetch(ctx context.Context, ids []uint32) ([]Message, error) {
	m.fetched = append(m.fetched, ids)
	var out []Message
	for _, id := range ids {
		out = append(out, m.messages[id-1])
	}
	return out, nil
}

func (m *fakeMailbox) Close() error { return nil }

func newState(t *testing.T) repository.StateStore {
	store, err := repository.NewFileStateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

var mt0 = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func TestCheckNewMail(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{}
	mb.add(cloudSender, "[SEA063] M48 surfacing C120", mt0)
	state := newState(t)

	// no sentinel yet
	check, err := CheckNewMail(ctx, mb, state, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, check.Fresh)
	assert.Equal(t, "nothing", check.Sentinel)
	assert.Empty(t, mb.fetched, "the first run never opens the inbox")
	_, ok, err := state.LoadMailSentinel(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "checking alone persists nothing")
	require.NoError(t, CommitMailCheck(ctx, state, check))

	check, err = CheckNewMail(ctx, mb, state, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, check.Fresh)

	// not committed: the same mail is reported again
	check, err = CheckNewMail(ctx, mb, state, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, check.Fresh)
	require.NoError(t, CommitMailCheck(ctx, state, check))
	sentinel, ok, err := state.LoadMailSentinel(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[SEA063] M48 surfacing C120", sentinel)

	check, err = CheckNewMail(ctx, mb, state, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, check.Fresh)

	mb.add(cloudSender, "[SEA063] M48 surfacing C121", mt0.Add(time.Hour))
	check, err = CheckNewMail(ctx, mb, state, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, check.Fresh)
}

func TestAlarmWatcher_Poll(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{}
	mb.add(cloudSender, "[SEA055] M10 ALARM C1 (level:1)", mt0)
	mb.add(cloudSender, "[SEA063] M48 ALARM C119 (level:2)", mt0.Add(time.Minute))
	mb.add("someone@else.org", "[SEA066] M12 ALARM C5 (level:4)", mt0.Add(2*time.Minute))
	mb.add(cloudSender, "Fw: [SEA063] M48 ALARM C120 (level:3)", mt0.Add(3*time.Minute))
	mb.add(cloudSender, "[SEA067] ALARM garbage", mt0.Add(4*time.Minute))

	state := newState(t)
	require.NoError(t, state.SaveMailAlarms(ctx, map[string]models.MailAlarmState{
		"SEA070": {Mission: 1, Cycle: 1, SecurityLevel: 1},
	}))

	w := NewAlarmWatcher(mb, state, senders, zap.NewNop())
	events, err := w.Poll(ctx)
	require.NoError(t, err)

	// only the newest three alarm mails are read
	require.Len(t, events, 1)
	assert.Equal(t, "SEA063", events[0].PlatformID)
	assert.Equal(t, 120, events[0].Cycle)
	assert.Equal(t, 3, events[0].SecurityLevel)
	assert.Equal(t, models.SourceAlarmEmail, events[0].AlarmSource)
	assert.Equal(t, mt0.Add(3*time.Minute), events[0].DetectedAt)
	assert.True(t, events[0].Alarm)

	cache, err := state.LoadMailAlarms(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MailAlarmState{Mission: 48, Cycle: 120, SecurityLevel: 3}, cache["SEA063"])
	assert.NotContains(t, cache, "SEA066")
	assert.Contains(t, cache, "SEA070")
}

func TestSurfacingWatcher_CursorAndEvents(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{}
	mb.add(cloudSender, "[SEA063] M48 surfacing C118", mt0)
	mb.add(cloudSender, "[SEA063] M48 surfacing C119", mt0.Add(time.Minute))
	mb.add(cloudSender, "[SEA063] M48 ALARM C119 (level:2)", mt0.Add(2*time.Minute))
	mb.add(cloudSender, "[SEA063] M48 surfacing C120", mt0.Add(3*time.Minute))

	state := newState(t)
	w := NewSurfacingWatcher(mb, state, senders, zap.NewNop())

	events, err := w.Poll(ctx, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 119, events[0].Cycle)
	assert.Equal(t, 120, events[1].Cycle)
	for _, ev := range events {
		assert.Equal(t, 0, ev.SecurityLevel)
		assert.Equal(t, models.SourceSurfacingMail, ev.AlarmSource)
		assert.True(t, ev.IsSurfacing())
	}

	cursor, err := state.LoadSurfacingCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(mt0.Add(3*time.Minute)))

	// nothing new since the cursor: no events
	events, err = w.Poll(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSurfacingWatcher_CursorAdvancesOnNonMatching(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{}
	mb.add("newsletter@example.org", "Weekly digest", mt0)

	state := newState(t)
	w := NewSurfacingWatcher(mb, state, senders, zap.NewNop())

	events, err := w.Poll(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, events)

	cursor, err := state.LoadSurfacingCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(mt0))
}

func TestSurfacingWatcher_NoRecipientsStillMovesCursor(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{}
	mb.add(cloudSender, "[SEA063] M48 surfacing C118", mt0)

	state := newState(t)
	w := NewSurfacingWatcher(mb, state, senders, zap.NewNop())

	events, err := w.Poll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, events)

	cursor, err := state.LoadSurfacingCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(mt0))

	// the mail was consumed even though nobody was told
	events, err = w.Poll(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSenderFilter(t *testing.T) {
	f := SenderFilter(senders)
	assert.True(t, f.Allows("ADMINISTRATEUR@alseamar-cloud.com"))
	assert.True(t, f.Allows("Cal Glider <calglider@example.org>"))
	assert.False(t, f.Allows("friend@example.org"))
	assert.False(t, SenderFilter{""}.Allows("friend@example.org"))
}
