package service

import (
	"context"
	"fmt"

	"voto-alerts/internal/notifier"
	"voto-alerts/internal/repository"

	"go.uber.org/zap"
)

const failoverMessage = "automated mail alerts system has failed. Switch over to backup system e.g. IFTTT"

// FailureCounter counts consecutive failed runs and asks for failover once
// the count reaches the threshold.
type FailureCounter struct {
	state     repository.StateStore
	mailer    notifier.Mailer
	threshold int
	logger    *zap.Logger
	count     int
}

// NewFailureCounter creates the counter.
func NewFailureCounter(state repository.StateStore, mailer notifier.Mailer, threshold int, logger *zap.Logger) *FailureCounter {
	return &FailureCounter{
		state:     state,
		mailer:    mailer,
		threshold: threshold,
		logger:    logger,
	}
}

// Begin counts the run as failed until Finish says otherwise, so a crashed
// run still counts. The meta mail goes out exactly when the count reaches
// the threshold.
func (c *FailureCounter) Begin(ctx context.Context) (int, error) {
	count, err := c.state.LoadFailCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load fail count: %w", err)
	}
	count++
	c.count = count
	if err := c.state.SaveFailCount(ctx, count); err != nil {
		return count, fmt.Errorf("failed to save fail count: %w", err)
	}

	if count == c.threshold {
		c.logger.Error("Consecutive failure threshold reached", zap.Int("fail_count", count))
		if err := c.mailer.Send(ctx, notifier.Mail{Subject: "failed-alerts", Body: failoverMessage}); err != nil {
			c.logger.Error("Failed to send failover mail", zap.Error(err))
		}
	}
	return count, nil
}

// Finish resets the counter after a fully successful run.
func (c *FailureCounter) Finish(ctx context.Context, success bool) (int, error) {
	if !success {
		return c.count, nil
	}
	c.count = 0
	if err := c.state.SaveFailCount(ctx, 0); err != nil {
		return 0, fmt.Errorf("failed to reset fail count: %w", err)
	}
	return 0, nil
}
