package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voto-alerts/internal/consumer"
	"voto-alerts/internal/evaluator"
	"voto-alerts/internal/metrics"
	"voto-alerts/internal/models"
	"voto-alerts/internal/notifier"
	"voto-alerts/internal/parser"
	"voto-alerts/internal/repository"
	"voto-alerts/internal/schedule"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunFailed is returned by Run when at least one phase failed.
var ErrRunFailed = errors.New("alert run failed")

// MailboxOpener connects to the alert mailbox.
type MailboxOpener func(ctx context.Context) (consumer.Mailbox, error)

// DatasetSource fetches recent sailbuoy telemetry.
type DatasetSource interface {
	Fetch(ctx context.Context, datasetID string) (models.Dataset, error)
}

// CommLogSource lists the comm log files to inspect.
type CommLogSource interface {
	Scan() ([]string, error)
}

// Components are the collaborators of AlertService. Optional sources
// (OpenMailbox, CommLogs, Sailbuoys) disable their phase when nil.
type Components struct {
	State      repository.StateStore
	History    repository.HistoryStore
	Resolver   schedule.Resolver
	Dispatcher *notifier.Dispatcher
	Mailer     notifier.Mailer
	Metrics    *metrics.Metrics

	OpenMailbox      MailboxOpener
	Senders          []string // accepted for alarm mails
	SurfacingSenders []string // accepted for surfacing reports

	CommLogs    CommLogSource
	ExtraLogs   []string // comm logs checked in addition to the scanned ones
	Sailbuoys   DatasetSource
	Datasets    []string
	SailbuoyCfg evaluator.SailbuoyConfig
	OffTrackTo  string

	FailThreshold  int
	PushgatewayURL string
	PushJob        string
}

// AlertService runs one full alert pass: mail alarms, surfacing reports,
// comm logs and sailbuoys.
type AlertService struct {
	c        Components
	counter  *FailureCounter
	matcher  *evaluator.Matcher
	policy   *evaluator.Policy
	sailbuoy *evaluator.SailbuoyEvaluator
	logger   *zap.Logger
	now      func() time.Time
}

type phase struct {
	name string
	run  func(ctx context.Context, run *runContext) error
}

// runContext is the per-run state shared by the phases.
type runContext struct {
	id         string
	assignment models.OnCallAssignment
	logger     *zap.Logger
	mailbox    consumer.Mailbox
}

// NewAlertService wires the service.
func NewAlertService(c Components, logger *zap.Logger) *AlertService {
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.PushJob == "" {
		c.PushJob = "voto-alerts"
	}
	matcher := evaluator.NewMatcher(c.History, logger)
	return &AlertService{
		c:        c,
		counter:  NewFailureCounter(c.State, c.Mailer, c.FailThreshold, logger),
		matcher:  matcher,
		policy:   evaluator.NewPolicy(logger),
		sailbuoy: evaluator.NewSailbuoyEvaluator(c.SailbuoyCfg, matcher, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AlertService) phases() []phase {
	var phases []phase
	if s.c.OpenMailbox != nil {
		phases = append(phases,
			phase{name: "mail alarms", run: s.mailAlarms},
			phase{name: "surfacing alerts", run: s.surfacingAlerts},
		)
	}
	if s.c.CommLogs != nil || len(s.c.ExtraLogs) > 0 {
		phases = append(phases, phase{name: "comm log alarms", run: s.commLogAlarms})
	}
	if s.c.Sailbuoys != nil && len(s.c.Datasets) > 0 {
		phases = append(phases, phase{name: "sailbuoy alerts", run: s.sailbuoyAlerts})
	}
	return phases
}

// Run executes one alert pass. A failing phase does not stop the others.
// The run counts as failed until every phase has succeeded.
func (s *AlertService) Run(ctx context.Context) error {
	start := s.now()
	run := &runContext{id: uuid.NewString()}
	run.logger = s.logger.With(zap.String("run_id", run.id))
	run.logger.Info("Start alerts run", zap.String("mode", modeName(s.c.Dispatcher)))

	failed := false
	count, err := s.counter.Begin(ctx)
	if err != nil {
		run.logger.Error("Failed to update fail counter", zap.Error(err))
		failed = true
	}
	if count > 1 {
		run.logger.Warn("Previous runs failed", zap.Int("fail_count", count-1))
	}

	assignment, err := s.c.Resolver.Resolve(ctx, start)
	if err != nil {
		run.logger.Error("Failed to resolve on-call assignment", zap.Error(err))
		s.reportFailure(ctx, run, "schedule", err)
		failed = true
	} else {
		run.assignment = assignment
		for _, p := range s.phases() {
			if ctx.Err() != nil {
				failed = true
				break
			}
			err := p.run(ctx, run)
			s.c.Metrics.ObservePhase(p.name, err)
			if err != nil {
				run.logger.Error("Phase failed", zap.String("phase", p.name), zap.Error(err))
				s.reportFailure(ctx, run, p.name, err)
				failed = true
			}
		}
	}

	if run.mailbox != nil {
		if err := run.mailbox.Close(); err != nil {
			run.logger.Warn("Failed to close mailbox", zap.Error(err))
		}
	}

	if !failed {
		if count, err = s.counter.Finish(ctx, true); err != nil {
			run.logger.Error("Failed to reset fail counter", zap.Error(err))
			failed = true
		}
	}

	var runErr error
	if failed {
		runErr = ErrRunFailed
	}
	end := s.now()
	s.c.Metrics.SetFailCount(count)
	s.c.Metrics.ObserveRun(start, end, runErr)
	if s.c.PushgatewayURL != "" {
		if err := s.c.Metrics.Push(ctx, s.c.PushgatewayURL, s.c.PushJob); err != nil {
			run.logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	run.logger.Info("Complete alerts run",
		zap.Bool("failed", failed),
		zap.Int("fail_count", count),
		zap.Duration("duration", end.Sub(start)),
	)
	return runErr
}

func (s *AlertService) reportFailure(ctx context.Context, run *runContext, what string, cause error) {
	mail := notifier.Mail{
		Subject: "failed alerts",
		Body:    fmt.Sprintf("Failed to execute %s (run %s): %v", what, run.id, cause),
	}
	if err := s.c.Mailer.Send(ctx, mail); err != nil {
		run.logger.Error("Failed to send failure mail", zap.String("phase", what), zap.Error(err))
	}
}

func (s *AlertService) mailbox(ctx context.Context, run *runContext) (consumer.Mailbox, error) {
	if run.mailbox != nil {
		return run.mailbox, nil
	}
	mb, err := s.c.OpenMailbox(ctx)
	if err != nil {
		return nil, err
	}
	run.mailbox = mb
	return mb, nil
}

func (s *AlertService) mailAlarms(ctx context.Context, run *runContext) error {
	mb, err := s.mailbox(ctx, run)
	if err != nil {
		return err
	}
	check, err := consumer.CheckNewMail(ctx, mb, s.c.State, run.logger)
	if err != nil {
		return err
	}
	if !check.Fresh {
		run.logger.Info("No new alarm mail since last run")
		return nil
	}

	events, err := consumer.NewAlarmWatcher(mb, s.c.State, s.c.Senders, run.logger).Poll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, event := range events {
		errs = append(errs, s.escalate(ctx, run, event, evaluator.ModeSeverity))
	}
	if err := errors.Join(errs...); err != nil {
		// the sentinel stays put so the next run polls these mails again
		return err
	}
	return consumer.CommitMailCheck(ctx, s.c.State, check)
}

func (s *AlertService) surfacingAlerts(ctx context.Context, run *runContext) error {
	mb, err := s.mailbox(ctx, run)
	if err != nil {
		return err
	}
	watcher := consumer.NewSurfacingWatcher(mb, s.c.State, s.c.SurfacingSenders, run.logger)
	events, err := watcher.Poll(ctx, len(run.assignment.SurfacingVolunteers) > 0)
	if err != nil {
		return err
	}
	var errs []error
	for _, event := range events {
		errs = append(errs, s.escalate(ctx, run, event, evaluator.ModeSeverity))
	}
	return errors.Join(errs...)
}

func (s *AlertService) commLogAlarms(ctx context.Context, run *runContext) error {
	var files []string
	if s.c.CommLogs != nil {
		scanned, err := s.c.CommLogs.Scan()
		if err != nil {
			return err
		}
		files = append(files, scanned...)
	}
	files = append(files, s.c.ExtraLogs...)

	var errs []error
	for _, path := range files {
		result, err := parser.ParseCommLogFile(path, run.logger)
		if err != nil {
			run.logger.Warn("Failed to parse comm log", zap.String("file", path), zap.Error(err))
			continue
		}
		event, ok := result.Latest()
		if !ok {
			run.logger.Debug("No status lines in comm log", zap.String("file", path))
			continue
		}
		if !event.Alarm && !event.Masked {
			continue
		}
		errs = append(errs, s.escalate(ctx, run, event, evaluator.ModeSeverity))
	}
	return errors.Join(errs...)
}

func (s *AlertService) sailbuoyAlerts(ctx context.Context, run *runContext) error {
	var errs []error
	for _, id := range s.c.Datasets {
		ds, err := s.c.Sailbuoys.Fetch(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("dataset %s: %w", id, err))
			continue
		}
		alerts, err := s.sailbuoy.Evaluate(ctx, ds)
		if err != nil {
			errs = append(errs, fmt.Errorf("dataset %s: %w", id, err))
			continue
		}
		for _, alert := range alerts {
			if alert.OffTrack {
				errs = append(errs, s.offTrack(ctx, run, alert))
				continue
			}
			errs = append(errs, s.escalate(ctx, run, alert.Event, alert.Mode))
		}
	}
	return errors.Join(errs...)
}

// offTrack informs by mail and records a dry-run pilot dispatch so the
// condition is not reported again within the track window.
func (s *AlertService) offTrack(ctx context.Context, run *runContext, alert evaluator.SailbuoyAlert) error {
	event := alert.Event
	mail := notifier.Mail{
		To:      s.c.OffTrackTo,
		Subject: "Sailbuoy off track",
		Body: fmt.Sprintf("%s mission %d is outside its track radius since %s",
			event.PlatformID, event.Mission, event.DetectedAt.UTC().Format(time.RFC3339)),
	}
	if err := s.c.Mailer.Send(ctx, mail); err != nil {
		return err
	}
	plan := s.policy.PlanMode(event, run.assignment, false, evaluator.ModePilotOnly)
	s.c.Metrics.ObserveOutcome(string(plan.Outcome))
	return s.execute(ctx, run, s.c.Dispatcher.Dummy(), event, plan)
}

// escalate dedups the event against history and notifies per the plan.
func (s *AlertService) escalate(ctx context.Context, run *runContext, event models.AlarmEvent, mode evaluator.Mode) error {
	duplicate := false
	if !event.IsSailbuoy() {
		// Sailbuoy alerts are deduped by the evaluator over their own window.
		dup, _, err := s.matcher.IsDuplicate(ctx, event)
		if err != nil {
			return err
		}
		duplicate = dup
	}
	plan := s.policy.PlanMode(event, run.assignment, duplicate, mode)
	s.c.Metrics.ObserveOutcome(string(plan.Outcome))
	return s.execute(ctx, run, s.c.Dispatcher, event, plan)
}

func (s *AlertService) execute(ctx context.Context, run *runContext, d *notifier.Dispatcher, event models.AlarmEvent, plan evaluator.Plan) error {
	if !plan.Notifies() {
		return nil
	}
	run.logger.Warn("ALERT",
		zap.String("platform_id", event.PlatformID),
		zap.Int("mission", event.Mission),
		zap.Int("cycle", event.Cycle),
		zap.Int("security_level", event.SecurityLevel),
		zap.String("alarm_source", event.AlarmSource),
		zap.String("outcome", string(plan.Outcome)),
		zap.Int("contacts", len(plan.Contacts)),
	)

	var errs []error
	for _, contact := range plan.Contacts {
		err := d.Text(ctx, event, contact.Number, contact.Role)
		s.c.Metrics.ObserveDispatch(string(models.ChannelText), string(contact.Role), err)
		errs = append(errs, err)

		err = d.Call(ctx, event, contact.Number, contact.Role)
		s.c.Metrics.ObserveDispatch(string(models.ChannelCall), string(contact.Role), err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func modeName(d *notifier.Dispatcher) string {
	if d.IsDummy() {
		return strings.ToUpper(string(notifier.ModeDummy))
	}
	return strings.ToUpper(string(notifier.ModeLive))
}
