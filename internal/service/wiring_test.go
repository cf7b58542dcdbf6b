package service

import (
	"context"
	"testing"
	"time"

	"voto-alerts/internal/config"
	"voto-alerts/internal/notifier"
	"voto-alerts/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Alerts.Mode = "dummy"
	cfg.Alerts.StateBackend = "file"
	cfg.Alerts.StateDir = t.TempDir()
	cfg.Alerts.HistoryBackend = "file"
	cfg.Alerts.HistoryDir = t.TempDir()
	cfg.Alerts.BaseDataDir = t.TempDir()
	cfg.Alerts.CommLogs = true
	cfg.Alerts.FailThreshold = 10
	cfg.Alerts.ScheduleZone = time.UTC
	cfg.Elks.BaseURL = "http://127.0.0.1:1"
	cfg.Redial.Window = 24 * time.Hour
	return cfg
}

func phaseNames(s *AlertService) []string {
	var names []string
	for _, p := range s.phases() {
		names = append(names, p.name)
	}
	return names
}

func TestOpenBackends_FileStores(t *testing.T) {
	cfg := testConfig(t)
	b, err := OpenBackends(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &repository.FileStateStore{}, b.State)
	assert.IsType(t, &repository.FileHistoryStore{}, b.History)
	assert.IsType(t, &notifier.LogMailer{}, b.Mailer)
	assert.True(t, b.Dispatcher.IsDummy())

	svc := NewAlertServiceFromConfig(cfg, b, zap.NewNop())
	assert.Equal(t, []string{"comm log alarms"}, phaseNames(svc))

	cfg.IMAP.Username = "alerts@example.org"
	cfg.Sailbuoy.Datasets = []string{"nrt_SEA077_M1"}
	svc = NewAlertServiceFromConfig(cfg, b, zap.NewNop())
	assert.Equal(t, []string{"mail alarms", "surfacing alerts", "comm log alarms", "sailbuoy alerts"}, phaseNames(svc))

	r := NewRedialerFromConfig(cfg, b, zap.NewNop())
	assert.True(t, r.cfg.DryRun)
}

func TestOpenBackends_RedisState(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Alerts.StateBackend = "redis"
	cfg.Alerts.StateKeyPrefix = "test:"
	cfg.Redis.Addr = mr.Addr()

	b, err := OpenBackends(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.State.SaveFailCount(context.Background(), 3))
	got, err := mr.Get("test:fail_count")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestOpenBackends_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Alerts.StateBackend = "redis"
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Timeout = 200 * time.Millisecond
	mr.Close()

	_, err := OpenBackends(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
