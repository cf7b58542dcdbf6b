package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"voto-alerts/common/config"
	"voto-alerts/internal/models"

	"gopkg.in/yaml.v3"
)

// Config is built once in main and passed down. Nothing reads the
// environment after Load returns.
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Alerts struct {
		Mode           string // dummy or live
		BaseDataDir    string // <base>/SEA<nnn>/... comm logs
		CommLogPattern string
		CommLogs       bool
		HistoryBackend string // file or postgres
		HistoryDir     string
		StateBackend   string // file or redis
		StateDir       string
		StateKeyPrefix string
		FailThreshold  int
		SchedulePath   string
		ScheduleZone   *time.Location
	}

	Elks struct {
		BaseURL        string
		Username       string
		Password       string
		TextFrom       string
		CallFrom       string
		DummyCallFrom  string
		VoiceURL       string
		CallTimeout    time.Duration
		RequestTimeout time.Duration
	}

	IMAP struct {
		Addr             string
		Username         string
		Password         string
		Folder           string
		Timeout          time.Duration
		Senders          []string // alarm mail senders
		SurfacingSenders []string // surfacing reports only come from the glider cloud
	}

	Mail struct {
		SMTPAddr   string // empty: meta mails are only logged
		Username   string
		Password   string
		From       string
		DefaultTo  string
		OffTrackTo string
	}

	Sailbuoy struct {
		ERDDAPURL  string
		Datasets   []string
		Timeout    time.Duration
		Lookback   time.Duration
		TrackCheck bool
	}

	Redial struct {
		StartDelay time.Duration
		Pause      time.Duration
		Window     time.Duration
	}

	Metrics struct {
		PushgatewayURL string
		Job            string
	}

	Mirror struct {
		Enabled     bool
		TopicPrefix string
	}

	Contacts   map[string]string
	Volunteers struct {
		Alarm     []string
		Surfacing []string
	}
	Templates struct {
		Sailbuoy  string
		Surfacing string
		Alarm     string
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// overlay is the optional YAML file named by ALERTS_CONFIG.
type overlay struct {
	Contacts   map[string]string `yaml:"contacts"`
	Volunteers struct {
		Alarm     []string `yaml:"alarm"`
		Surfacing []string `yaml:"surfacing"`
	} `yaml:"volunteers"`
	Senders          []string `yaml:"senders"`
	SurfacingSenders []string `yaml:"surfacing_senders"`
	Datasets  []string `yaml:"datasets"`
	Templates struct {
		Sailbuoy  string `yaml:"sailbuoy"`
		Surfacing string `yaml:"surfacing"`
		Alarm     string `yaml:"alarm"`
	} `yaml:"templates"`
}

// Load reads the environment and the optional YAML overlay.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "voto_alerts",
		SSLMode:  "disable",
		MaxConns: 2,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379", Timeout: 5 * time.Second}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.ClientID = "voto-alerts"
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Alerts.Mode = strings.ToLower(getEnv("ALERTS_MODE", "dummy"))
	cfg.Alerts.BaseDataDir = getEnv("BASE_DATA_DIR", "/data/data_raw/nrt")
	cfg.Alerts.CommLogPattern = getEnv("COMM_LOG_PATTERN", "*.com.raw.log")
	cfg.Alerts.CommLogs = getEnvBool("ALERTS_COMM_LOGS", true)
	cfg.Alerts.HistoryBackend = strings.ToLower(getEnv("HISTORY_BACKEND", "file"))
	cfg.Alerts.HistoryDir = getEnv("HISTORY_DIR", "/data/log/alarms")
	cfg.Alerts.StateBackend = strings.ToLower(getEnv("STATE_BACKEND", "file"))
	cfg.Alerts.StateDir = getEnv("STATE_DIR", "/data/log")
	cfg.Alerts.StateKeyPrefix = getEnv("STATE_KEY_PREFIX", "voto-alerts:")
	cfg.Alerts.FailThreshold = getEnvInt("FAIL_THRESHOLD", 10)
	cfg.Alerts.SchedulePath = getEnv("SCHEDULE_PATH", "/data/log/schedule.csv")

	zone := getEnv("SCHEDULE_TZ", "Local")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &models.ConfigError{Msg: fmt.Sprintf("SCHEDULE_TZ %q: %v", zone, err)}
	}
	cfg.Alerts.ScheduleZone = loc

	cfg.Elks.BaseURL = getEnv("ELKS_URL", "https://api.46elks.com")
	cfg.Elks.Username = getEnv("ELKS_USERNAME", "")
	cfg.Elks.Password = getEnv("ELKS_PASSWORD", "")
	cfg.Elks.TextFrom = getEnv("ELKS_TEXT_FROM", "VOTOalert")
	cfg.Elks.CallFrom = getEnv("ELKS_PHONE", "")
	cfg.Elks.DummyCallFrom = getEnv("ELKS_DUMMY_FROM", "GliderAlert")
	cfg.Elks.VoiceURL = getEnv("ELKS_VOICE_URL", "")
	cfg.Elks.CallTimeout = getEnvDuration("ELKS_CALL_TIMEOUT", 60*time.Second)
	cfg.Elks.RequestTimeout = getEnvDuration("ELKS_REQUEST_TIMEOUT", 15*time.Second)

	cfg.IMAP.Addr = getEnv("IMAP_ADDR", "imap.gmail.com:993")
	cfg.IMAP.Username = getEnv("IMAP_USERNAME", "")
	cfg.IMAP.Password = getEnv("IMAP_PASSWORD", "")
	cfg.IMAP.Folder = getEnv("IMAP_FOLDER", "INBOX")
	cfg.IMAP.Timeout = getEnvDuration("IMAP_TIMEOUT", 30*time.Second)
	cfg.IMAP.Senders = getEnvList("ALARM_SENDERS", []string{"administrateur@alseamar-cloud.com", "calglider"})
	cfg.IMAP.SurfacingSenders = getEnvList("SURFACING_SENDERS", []string{"administrateur@alseamar-cloud.com"})

	cfg.Mail.SMTPAddr = getEnv("SMTP_ADDR", "")
	cfg.Mail.Username = getEnv("SMTP_USERNAME", "")
	cfg.Mail.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Mail.From = getEnv("SMTP_FROM", "voto-alerts@localhost")
	cfg.Mail.DefaultTo = getEnv("ALERTS_MAIL_TO", "")
	cfg.Mail.OffTrackTo = getEnv("OFF_TRACK_MAIL_TO", "")

	cfg.Sailbuoy.ERDDAPURL = getEnv("ERDDAP_URL", "https://erddap.observations.voiceoftheocean.org/erddap")
	cfg.Sailbuoy.Datasets = getEnvList("SAILBUOY_DATASETS", nil)
	cfg.Sailbuoy.Timeout = getEnvDuration("ERDDAP_TIMEOUT", 60*time.Second)
	cfg.Sailbuoy.Lookback = getEnvDuration("SAILBUOY_LOOKBACK", 72*time.Hour)
	cfg.Sailbuoy.TrackCheck = getEnvBool("SAILBUOY_TRACK_CHECK", false)

	cfg.Redial.StartDelay = getEnvDuration("REDIAL_START_DELAY", 30*time.Second)
	cfg.Redial.Pause = getEnvDuration("REDIAL_PAUSE", 5*time.Second)
	cfg.Redial.Window = getEnvDuration("REDIAL_WINDOW", 24*time.Hour)

	cfg.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", "")
	cfg.Metrics.Job = getEnv("PUSHGATEWAY_JOB", "voto-alerts")

	cfg.Mirror.Enabled = cfg.MQTT.Broker != ""
	cfg.Mirror.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "voto-alerts/history")

	cfg.Contacts = map[string]string{}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	if path := os.Getenv("ALERTS_CONFIG"); path != "" {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &models.ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return &models.ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
	}

	for name, number := range o.Contacts {
		c.Contacts[name] = number
	}
	c.Volunteers.Alarm = o.Volunteers.Alarm
	c.Volunteers.Surfacing = o.Volunteers.Surfacing
	if len(o.Senders) > 0 {
		c.IMAP.Senders = o.Senders
	}
	if len(o.SurfacingSenders) > 0 {
		c.IMAP.SurfacingSenders = o.SurfacingSenders
	}
	if len(o.Datasets) > 0 {
		c.Sailbuoy.Datasets = o.Datasets
	}
	c.Templates.Sailbuoy = o.Templates.Sailbuoy
	c.Templates.Surfacing = o.Templates.Surfacing
	c.Templates.Alarm = o.Templates.Alarm
	return nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Alerts.Mode {
	case "dummy", "live":
	default:
		return &models.ConfigError{Msg: fmt.Sprintf("ALERTS_MODE must be dummy or live, got %q", c.Alerts.Mode)}
	}
	switch c.Alerts.HistoryBackend {
	case "file", "postgres":
	default:
		return &models.ConfigError{Msg: fmt.Sprintf("HISTORY_BACKEND must be file or postgres, got %q", c.Alerts.HistoryBackend)}
	}
	switch c.Alerts.StateBackend {
	case "file", "redis":
	default:
		return &models.ConfigError{Msg: fmt.Sprintf("STATE_BACKEND must be file or redis, got %q", c.Alerts.StateBackend)}
	}
	if c.Alerts.FailThreshold < 1 {
		return &models.ConfigError{Msg: "FAIL_THRESHOLD must be positive"}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma separated value.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
