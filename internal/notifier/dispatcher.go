package notifier

import (
	"context"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/repository"

	"go.uber.org/zap"
)

// Mode selects real or dry-run dispatch.
type Mode string

const (
	ModeDummy Mode = "dummy"
	ModeLive  Mode = "live"
)

const fakeCallMessage = "this is a fake call"

// DispatcherConfig configures the sender identities and call behaviour.
type DispatcherConfig struct {
	Mode          Mode
	TextFrom      string // alphanumeric sender of alert texts
	CallFrom      string // number calls are placed from
	DummyCallFrom string // sender of the dry-run text replacing a call
	VoiceURL      string // audio played when the call is answered
	CallTimeout   time.Duration
}

// Dispatcher sends one notification at a time and records it in history.
type Dispatcher struct {
	cfg       DispatcherConfig
	provider  Provider
	history   repository.HistoryStore
	mirror    Mirror
	templates *Templates
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. mirror may be nil.
func NewDispatcher(
	cfg DispatcherConfig,
	provider Provider,
	history repository.HistoryStore,
	mirror Mirror,
	templates *Templates,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Dispatcher{
		cfg:       cfg,
		provider:  provider,
		history:   history,
		mirror:    mirror,
		templates: templates,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dummy returns a copy of d that always dry-runs.
func (d *Dispatcher) Dummy() *Dispatcher {
	cp := *d
	cp.cfg.Mode = ModeDummy
	return &cp
}

// IsDummy reports whether sends are dry runs.
func (d *Dispatcher) IsDummy() bool {
	return d.cfg.Mode != ModeLive
}

// Text sends the alert SMS for event to recipient.
func (d *Dispatcher) Text(ctx context.Context, event models.AlarmEvent, recipient string, role models.Role) error {
	message, err := d.templates.Render(event)
	if err != nil {
		return err
	}
	req := TextRequest{
		From:    d.cfg.TextFrom,
		To:      models.NormalizeNumber(recipient),
		Message: message,
		DryRun:  d.IsDummy(),
	}
	if err := d.provider.SendText(ctx, req); err != nil {
		d.logFailure("failed elks text", event, models.ChannelText, role, req.To, err)
		return err
	}
	return d.record(ctx, event, models.ChannelText, role)
}

// Call rings recipient. In dummy mode the call becomes a dry-run text.
func (d *Dispatcher) Call(ctx context.Context, event models.AlarmEvent, recipient string, role models.Role) error {
	to := models.NormalizeNumber(recipient)
	var err error
	if d.IsDummy() {
		err = d.provider.SendText(ctx, TextRequest{
			From:    d.cfg.DummyCallFrom,
			To:      to,
			Message: fakeCallMessage,
			DryRun:  true,
		})
	} else {
		_, err = d.provider.PlaceCall(ctx, CallRequest{
			From:       d.cfg.CallFrom,
			To:         to,
			VoiceStart: VoiceStart(d.cfg.VoiceURL),
			Timeout:    d.cfg.CallTimeout,
		})
	}
	if err != nil {
		d.logFailure("failed elks call", event, models.ChannelCall, role, to, err)
		return err
	}
	return d.record(ctx, event, models.ChannelCall, role)
}

func (d *Dispatcher) record(ctx context.Context, event models.AlarmEvent, channel models.Channel, role models.Role) error {
	rec := models.NewHistoryRecord(event, channel, role, d.now())
	if err := d.history.Append(ctx, rec); err != nil {
		d.logger.Error("Failed to append alarm history",
			zap.String("record", rec.String()),
			zap.Error(err),
		)
		return err
	}
	if d.mirror != nil {
		if err := d.mirror.Publish(ctx, rec); err != nil {
			d.logger.Warn("Failed to mirror alarm history",
				zap.String("platform_id", rec.PlatformID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *Dispatcher) logFailure(msg string, event models.AlarmEvent, channel models.Channel, role models.Role, to string, err error) {
	d.logger.Error(msg,
		zap.String("to", to),
		zap.String("platform_id", event.PlatformID),
		zap.Int("glider", event.Glider),
		zap.Int("mission", event.Mission),
		zap.Int("cycle", event.Cycle),
		zap.Int("security_level", event.SecurityLevel),
		zap.String("channel_role", string(channel)+"_"+string(role)),
		zap.String("alarm_source", event.AlarmSource),
		zap.Error(err),
	)
}
