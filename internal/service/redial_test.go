package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/notifier"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var redialNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func newTestRedialer(t *testing.T, provider *fakeProvider, dryRun bool) (*Redialer, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := NewRedialer(RedialConfig{
		From:     "+46766862965",
		VoiceURL: "https://example.org/alert.mp3",
		Timeout:  60 * time.Second,
		Pause:    5 * time.Second,
		Window:   24 * time.Hour,
		DryRun:   dryRun,
	}, provider, f.state, f.metrics, zap.NewNop())
	r.now = func() time.Time { return redialNow }
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r, f
}

func TestRedialer_RedialsFailedCallsOnce(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{listed: []notifier.Call{
		{ID: "c1", To: "+46701111111", State: "failed", Created: redialNow.Add(-time.Hour)},
		{ID: "c2", To: "+46702222222", State: "success", Created: redialNow.Add(-time.Hour)},
		{ID: "c3", To: "+46703333333", State: "failed", Created: redialNow.Add(-25 * time.Hour)},
		{ID: "c4", To: "+46704444444", State: "failed", Created: redialNow.Add(-2 * time.Hour)},
	}}
	r, f := newTestRedialer(t, provider, false)
	require.NoError(t, f.state.AppendRedial(ctx, models.RedialRecord{
		OriginalID: "c4", CallID: "old", To: "+46704444444", State: "success", CreatedAt: redialNow,
	}))

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, provider.calls, 1)
	assert.Equal(t, "+46701111111", provider.calls[0].To)
	assert.Contains(t, provider.calls[0].VoiceStart, "alert.mp3")

	ledger, err := f.state.LoadRedials(ctx)
	require.NoError(t, err)
	require.Contains(t, ledger, "c1")
	assert.Equal(t, "redial-+46701111111", ledger["c1"].CallID)
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(`
# HELP voto_alerts_redials_total Failed calls placed again
# TYPE voto_alerts_redials_total counter
voto_alerts_redials_total 1
`), "voto_alerts_redials_total"))

	// a second pass finds everything in the ledger
	n, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, provider.calls, 1)
}

func TestRedialer_FailedRedialIsRetriedNextRun(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{
		listed:  []notifier.Call{{ID: "c1", To: "+46701111111", State: "failed", Created: redialNow.Add(-time.Hour)}},
		callErr: errors.New("elks down"),
	}
	r, f := newTestRedialer(t, provider, false)

	n, err := r.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	ledger, err := f.state.LoadRedials(ctx)
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestRedialer_DryRunPlacesNothing(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{
		listed: []notifier.Call{{ID: "c1", To: "+46701111111", State: "failed", Created: redialNow.Add(-time.Hour)}},
	}
	r, _ := newTestRedialer(t, provider, true)

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, provider.calls)
}
