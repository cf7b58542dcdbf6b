package service

import (
	"context"
	"errors"
	"time"

	"voto-alerts/internal/metrics"
	"voto-alerts/internal/models"
	"voto-alerts/internal/notifier"
	"voto-alerts/internal/repository"

	"go.uber.org/zap"
)

// RedialConfig configures Redialer.
type RedialConfig struct {
	From     string
	VoiceURL string
	Timeout  time.Duration // ring time of a redial
	Pause    time.Duration // between two redials
	Window   time.Duration // only calls created this recently are redialled
	DryRun   bool
}

// Redialer calls again everybody whose alert call failed recently.
// Each failed call is redialled at most once.
type Redialer struct {
	cfg      RedialConfig
	provider notifier.Provider
	state    repository.StateStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRedialer creates the redialer. m may be nil.
func NewRedialer(cfg RedialConfig, provider notifier.Provider, state repository.StateStore, m *metrics.Metrics, logger *zap.Logger) *Redialer {
	return &Redialer{
		cfg:      cfg,
		provider: provider,
		state:    state,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Run redials the failed calls and returns how many were placed.
func (r *Redialer) Run(ctx context.Context) (int, error) {
	calls, err := r.provider.ListCalls(ctx)
	if err != nil {
		return 0, err
	}
	ledger, err := r.state.LoadRedials(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.cfg.Window)
	var (
		placed int
		errs   []error
	)
	for _, call := range calls {
		if call.State != "failed" || !call.Created.After(cutoff) {
			continue
		}
		if _, done := ledger[call.ID]; done {
			continue
		}
		if r.cfg.DryRun {
			r.logger.Warn("REDIAL (dry run)", zap.String("original_id", call.ID), zap.String("to", call.To))
			continue
		}

		if err := r.sleep(ctx, r.cfg.Pause); err != nil {
			return placed, err
		}
		redial, err := r.provider.PlaceCall(ctx, notifier.CallRequest{
			From:       r.cfg.From,
			To:         call.To,
			VoiceStart: notifier.VoiceStart(r.cfg.VoiceURL),
			Timeout:    r.cfg.Timeout,
		})
		if err != nil {
			r.logger.Error("Failed to redial",
				zap.String("original_id", call.ID),
				zap.String("to", call.To),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}

		rec := models.RedialRecord{
			OriginalID: call.ID,
			CallID:     redial.ID,
			To:         call.To,
			State:      redial.State,
			CreatedAt:  redial.Created,
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = r.now().UTC()
		}
		if err := r.state.AppendRedial(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		ledger[call.ID] = rec
		placed++
		if r.metrics != nil {
			r.metrics.ObserveRedial()
		}
		r.logger.Warn("REDIAL",
			zap.String("original_id", rec.OriginalID),
			zap.String("id", rec.CallID),
			zap.String("to", rec.To),
			zap.String("state", rec.State),
		)
	}
	return placed, errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
