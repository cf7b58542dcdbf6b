package service

import (
	"context"
	"time"

	"voto-alerts/common/database"
	"voto-alerts/common/mqtt"
	commonredis "voto-alerts/common/redis"
	"voto-alerts/internal/config"
	"voto-alerts/internal/consumer"
	"voto-alerts/internal/evaluator"
	"voto-alerts/internal/metrics"
	"voto-alerts/internal/notifier"
	"voto-alerts/internal/repository"
	"voto-alerts/internal/schedule"

	"go.uber.org/zap"
)

const mqttConnectTimeout = 10 * time.Second

// Backends are the stores and clients shared by the alert and redial commands.
type Backends struct {
	State      repository.StateStore
	History    repository.HistoryStore
	Mailer     notifier.Mailer
	Elks       *notifier.ElksClient
	Dispatcher *notifier.Dispatcher
	Metrics    *metrics.Metrics

	closers []func()
}

// OpenBackends connects the configured state and history backends, the
// optional MQTT mirror, the mailer and the 46elks client.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{Metrics: metrics.New()}

	switch cfg.Alerts.StateBackend {
	case "redis":
		client, err := commonredis.Connect(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { commonredis.Close(client) })
		b.State = repository.NewRedisStateStore(client, cfg.Alerts.StateKeyPrefix, logger)
	default:
		store, err := repository.NewFileStateStore(cfg.Alerts.StateDir, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.State = store
	}

	switch cfg.Alerts.HistoryBackend {
	case "postgres":
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { database.Close(db) })
		store := repository.NewPostgresHistoryStore(db, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.History = store
	default:
		store, err := repository.NewFileHistoryStore(cfg.Alerts.HistoryDir, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.History = store
	}

	var mirror notifier.Mirror
	if cfg.Mirror.Enabled {
		client, err := mqtt.NewClient(&cfg.MQTT, mqttConnectTimeout)
		if err != nil {
			logger.Warn("MQTT mirror disabled", zap.Error(err))
		} else {
			b.closers = append(b.closers, client.Disconnect)
			mirror = notifier.NewMQTTMirror(client, cfg.Mirror.TopicPrefix)
		}
	}

	if cfg.Mail.SMTPAddr != "" {
		b.Mailer = notifier.NewSMTPMailer(notifier.SMTPConfig{
			Addr:      cfg.Mail.SMTPAddr,
			Username:  cfg.Mail.Username,
			Password:  cfg.Mail.Password,
			From:      cfg.Mail.From,
			DefaultTo: cfg.Mail.DefaultTo,
		}, logger)
	} else {
		b.Mailer = notifier.NewLogMailer(logger)
	}

	templates, err := notifier.NewTemplates(cfg.Templates.Sailbuoy, cfg.Templates.Surfacing, cfg.Templates.Alarm)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Elks = notifier.NewElksClient(cfg.Elks.BaseURL, cfg.Elks.Username, cfg.Elks.Password, cfg.Elks.RequestTimeout, logger)
	b.Dispatcher = notifier.NewDispatcher(notifier.DispatcherConfig{
		Mode:          notifier.Mode(cfg.Alerts.Mode),
		TextFrom:      cfg.Elks.TextFrom,
		CallFrom:      cfg.Elks.CallFrom,
		DummyCallFrom: cfg.Elks.DummyCallFrom,
		VoiceURL:      cfg.Elks.VoiceURL,
		CallTimeout:   cfg.Elks.CallTimeout,
	}, b.Elks, b.History, mirror, templates, logger)

	return b, nil
}

// Close releases every connection, newest first.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// NewAlertServiceFromConfig builds the alert run from configuration.
func NewAlertServiceFromConfig(cfg *config.Config, b *Backends, logger *zap.Logger) *AlertService {
	c := Components{
		State:      b.State,
		History:    b.History,
		Dispatcher: b.Dispatcher,
		Mailer:     b.Mailer,
		Metrics:    b.Metrics,
		Resolver: schedule.NewFileResolver(
			cfg.Alerts.SchedulePath,
			cfg.Contacts,
			schedule.Volunteers{Alarm: cfg.Volunteers.Alarm, Surfacing: cfg.Volunteers.Surfacing},
			cfg.Alerts.ScheduleZone,
			b.Mailer,
			logger,
		),
		Senders:          cfg.IMAP.Senders,
		SurfacingSenders: cfg.IMAP.SurfacingSenders,
		SailbuoyCfg:      evaluator.DefaultSailbuoyConfig(),
		OffTrackTo:       cfg.Mail.OffTrackTo,
		FailThreshold:    cfg.Alerts.FailThreshold,
		PushgatewayURL:   cfg.Metrics.PushgatewayURL,
		PushJob:          cfg.Metrics.Job,
	}
	c.SailbuoyCfg.TrackCheck = cfg.Sailbuoy.TrackCheck

	if cfg.IMAP.Username != "" {
		imapCfg := consumer.IMAPConfig{
			Addr:     cfg.IMAP.Addr,
			Username: cfg.IMAP.Username,
			Password: cfg.IMAP.Password,
			Folder:   cfg.IMAP.Folder,
			Timeout:  cfg.IMAP.Timeout,
		}
		c.OpenMailbox = func(ctx context.Context) (consumer.Mailbox, error) {
			return consumer.DialIMAP(ctx, imapCfg, logger)
		}
	} else {
		logger.Warn("IMAP_USERNAME not set: mail alarms and surfacing reports are not checked")
	}

	if cfg.Alerts.CommLogs {
		c.CommLogs = consumer.NewCommLogScanner(cfg.Alerts.BaseDataDir, cfg.Alerts.CommLogPattern, logger)
	}

	if len(cfg.Sailbuoy.Datasets) > 0 {
		c.Sailbuoys = consumer.NewERDDAPSource(cfg.Sailbuoy.ERDDAPURL, cfg.Sailbuoy.Timeout, cfg.Sailbuoy.Lookback, logger)
		c.Datasets = cfg.Sailbuoy.Datasets
	}

	return NewAlertService(c, logger)
}

// NewRedialerFromConfig builds the redialer from configuration.
func NewRedialerFromConfig(cfg *config.Config, b *Backends, logger *zap.Logger) *Redialer {
	return NewRedialer(RedialConfig{
		From:     cfg.Elks.CallFrom,
		VoiceURL: cfg.Elks.VoiceURL,
		Timeout:  cfg.Elks.CallTimeout,
		Pause:    cfg.Redial.Pause,
		Window:   cfg.Redial.Window,
		DryRun:   cfg.Alerts.Mode != string(notifier.ModeLive),
	}, b.Elks, b.State, b.Metrics, logger)
}
