package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voto-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, "dummy", cfg.Alerts.Mode)
	assert.Equal(t, "file", cfg.Alerts.HistoryBackend)
	assert.Equal(t, "file", cfg.Alerts.StateBackend)
	assert.Equal(t, "*.com.raw.log", cfg.Alerts.CommLogPattern)
	assert.Equal(t, 10, cfg.Alerts.FailThreshold)
	assert.True(t, cfg.Alerts.CommLogs)

	assert.Equal(t, "VOTOalert", cfg.Elks.TextFrom)
	assert.Equal(t, "GliderAlert", cfg.Elks.DummyCallFrom)
	assert.Equal(t, 60*time.Second, cfg.Elks.CallTimeout)

	assert.Equal(t, []string{"administrateur@alseamar-cloud.com", "calglider"}, cfg.IMAP.Senders)
	assert.Equal(t, []string{"administrateur@alseamar-cloud.com"}, cfg.IMAP.SurfacingSenders)
	assert.False(t, cfg.Sailbuoy.TrackCheck)
	assert.Equal(t, 5*time.Second, cfg.Redial.Pause)
	assert.Equal(t, 24*time.Hour, cfg.Redial.Window)
	assert.False(t, cfg.Mirror.Enabled)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("ALERTS_MODE", "LIVE")
	t.Setenv("HISTORY_BACKEND", "postgres")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("FAIL_THRESHOLD", "3")
	t.Setenv("ELKS_CALL_TIMEOUT", "45")
	t.Setenv("REDIAL_PAUSE", "2s")
	t.Setenv("SAILBUOY_DATASETS", "sb2120_m7, sb2017_m3")
	t.Setenv("SAILBUOY_TRACK_CHECK", "true")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_QOS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Alerts.Mode)
	assert.Equal(t, "postgres", cfg.Alerts.HistoryBackend)
	assert.Equal(t, "redis", cfg.Alerts.StateBackend)
	assert.Equal(t, 3, cfg.Alerts.FailThreshold)
	assert.Equal(t, 45*time.Second, cfg.Elks.CallTimeout)
	assert.Equal(t, 2*time.Second, cfg.Redial.Pause)
	assert.Equal(t, []string{"sb2120_m7", "sb2017_m3"}, cfg.Sailbuoy.Datasets)
	assert.True(t, cfg.Sailbuoy.TrackCheck)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoad_InvalidMode(t *testing.T) {
	os.Clearenv()
	t.Setenv("ALERTS_MODE", "loud")

	_, err := Load()
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Msg, "ALERTS_MODE")
}

func TestLoad_Overlay(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
contacts:
  Ada: "+46700000001"
  Linus: "+46700000003"
volunteers:
  alarm: [Ada]
  surfacing: [Linus]
senders: [cloud@example.org]
surfacing_senders: [surface@example.org]
datasets: [sb2120_m7]
templates:
  alarm: "ALARM {{.PlatformID}}"
`), 0o644))
	t.Setenv("ALERTS_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "+46700000001", cfg.Contacts["Ada"])
	assert.Equal(t, []string{"Ada"}, cfg.Volunteers.Alarm)
	assert.Equal(t, []string{"Linus"}, cfg.Volunteers.Surfacing)
	assert.Equal(t, []string{"cloud@example.org"}, cfg.IMAP.Senders)
	assert.Equal(t, []string{"surface@example.org"}, cfg.IMAP.SurfacingSenders)
	assert.Equal(t, []string{"sb2120_m7"}, cfg.Sailbuoy.Datasets)
	assert.Equal(t, "ALARM {{.PlatformID}}", cfg.Templates.Alarm)
}

func TestLoad_BadOverlay(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contacts: [not, a, map]"), 0o644))
	t.Setenv("ALERTS_CONFIG", path)

	_, err := Load()
	var cfgErr *models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
