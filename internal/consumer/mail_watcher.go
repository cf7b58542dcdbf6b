package consumer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/parser"
	"voto-alerts/internal/repository"

	"go.uber.org/zap"
)

const (
	alarmKeyword     = "ALARM"
	noMailSentinel   = "nothing"
	defaultNewestMax = 3
)

// MailCheck is the result of CheckNewMail.
type MailCheck struct {
	Fresh    bool
	Sentinel string // save with CommitMailCheck once the new mail is handled
}

// CheckNewMail compares the newest message subject with the one seen by the
// previous run. Fresh is true when there may be unprocessed mail. Nothing is
// persisted: a run that fails to handle the mail must see it again.
func CheckNewMail(ctx context.Context, mailbox Mailbox, state repository.StateStore, logger *zap.Logger) (MailCheck, error) {
	sentinel, ok, err := state.LoadMailSentinel(ctx)
	if err != nil {
		return MailCheck{}, err
	}
	if !ok {
		// first run: nothing to compare against
		return MailCheck{Fresh: true, Sentinel: noMailSentinel}, nil
	}

	ids, err := mailbox.Search(ctx, "")
	if err != nil {
		return MailCheck{}, err
	}
	if len(ids) == 0 {
		return MailCheck{Sentinel: sentinel}, nil
	}
	msgs, err := mailbox.Fetch(ctx, newest(ids, 1))
	if err != nil {
		return MailCheck{}, err
	}
	if len(msgs) == 0 {
		return MailCheck{Sentinel: sentinel}, nil
	}
	subject := msgs[0].Subject
	if subject == sentinel {
		return MailCheck{Sentinel: sentinel}, nil
	}
	logger.Info("Most recent email", zap.String("subject", subject))
	return MailCheck{Fresh: true, Sentinel: subject}, nil
}

// CommitMailCheck records the checked subject as seen.
func CommitMailCheck(ctx context.Context, state repository.StateStore, check MailCheck) error {
	if !check.Fresh {
		return nil
	}
	return state.SaveMailSentinel(ctx, check.Sentinel)
}

// AlarmWatcher turns alarm mails from the glider cloud into alarm events and
// keeps the per-platform last-alarm cache.
type AlarmWatcher struct {
	mailbox Mailbox
	state   repository.StateStore
	senders SenderFilter
	newest  int
	logger  *zap.Logger
}

// NewAlarmWatcher creates the watcher. It looks at the newest 3 alarm mails.
func NewAlarmWatcher(mailbox Mailbox, state repository.StateStore, senders []string, logger *zap.Logger) *AlarmWatcher {
	return &AlarmWatcher{
		mailbox: mailbox,
		state:   state,
		senders: SenderFilter(senders),
		newest:  defaultNewestMax,
		logger:  logger,
	}
}

// Poll reads the newest alarm mails, rewrites the alarm cache and returns
// one event per well-formed alarm mail.
func (w *AlarmWatcher) Poll(ctx context.Context) ([]models.AlarmEvent, error) {
	start := time.Now()

	ids, err := w.mailbox.Search(ctx, alarmKeyword)
	if err != nil {
		return nil, err
	}
	cache, err := w.state.LoadMailAlarms(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := w.mailbox.Fetch(ctx, newest(ids, w.newest))
	if err != nil {
		return nil, err
	}

	var events []models.AlarmEvent
	for _, msg := range msgs {
		subject := parser.StripForward(msg.Subject)
		if !w.senders.Allows(msg.From) || !strings.Contains(subject, alarmKeyword) {
			continue
		}
		parsed, err := parser.ParseSubject(subject)
		if err == nil && !parsed.HasLevel {
			err = models.NewParseError("subject", subject, fmt.Errorf("alarm mail without level"))
		}
		if err != nil {
			w.logger.Warn("Skipping malformed alarm mail",
				zap.Uint32("seq", msg.SeqNum),
				zap.Error(err),
			)
			continue
		}
		w.logger.Debug("email alarm parsed", zap.String("subject", subject))

		cache[parsed.Platform] = models.MailAlarmState{
			Mission:       parsed.Mission,
			Cycle:         parsed.Cycle,
			SecurityLevel: parsed.Level,
		}
		event := parsed.Event(models.SourceAlarmEmail)
		event.DetectedAt = msg.Date
		events = append(events, event)
	}

	if err := w.state.SaveMailAlarms(ctx, cache); err != nil {
		return events, err
	}
	w.logger.Info("Completed mail check",
		zap.Int("alarms", len(events)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return events, nil
}

// SurfacingWatcher turns surfacing mails into level-0 events. A cursor
// makes sure each mail is handled once.
type SurfacingWatcher struct {
	mailbox Mailbox
	state   repository.StateStore
	senders SenderFilter
	newest  int
	logger  *zap.Logger
}

// NewSurfacingWatcher creates the watcher. It looks at the newest 3 mails.
func NewSurfacingWatcher(mailbox Mailbox, state repository.StateStore, senders []string, logger *zap.Logger) *SurfacingWatcher {
	return &SurfacingWatcher{
		mailbox: mailbox,
		state:   state,
		senders: SenderFilter(senders),
		newest:  defaultNewestMax,
		logger:  logger,
	}
}

// Poll advances the cursor past the newest mail and, when anybody signed up
// for surfacing alerts, returns an event per new surfacing mail.
func (w *SurfacingWatcher) Poll(ctx context.Context, hasRecipients bool) ([]models.AlarmEvent, error) {
	cursor, err := w.state.LoadSurfacingCursor(ctx)
	if err != nil {
		return nil, err
	}
	if cursor.IsZero() {
		cursor = time.Unix(0, 0)
	}

	w.logger.Info("Check for surfacing emails")
	ids, err := w.mailbox.Search(ctx, "")
	if err != nil {
		return nil, err
	}
	msgs, err := w.mailbox.Fetch(ctx, newest(ids, w.newest))
	if err != nil {
		return nil, err
	}

	var unread []Message
	for _, msg := range msgs {
		if msg.Date.After(cursor) {
			unread = append(unread, msg)
			cursor = msg.Date
		}
	}

	// the cursor moves even if nothing below matches
	if err := w.state.SaveSurfacingCursor(ctx, cursor); err != nil {
		return nil, err
	}
	if !hasRecipients {
		w.logger.Info("No one signed up for surfacing alerts")
		return nil, nil
	}
	if len(unread) == 0 {
		w.logger.Info("No new mail")
		return nil, nil
	}

	var events []models.AlarmEvent
	for _, msg := range unread {
		subject := parser.StripForward(msg.Subject)
		if !w.senders.Allows(msg.From) || strings.Contains(subject, alarmKeyword) {
			continue
		}
		parsed, err := parser.ParseSubject(subject)
		if err != nil {
			w.logger.Warn("Skipping malformed surfacing mail",
				zap.Uint32("seq", msg.SeqNum),
				zap.Error(err),
			)
			continue
		}
		w.logger.Warn("Surface", zap.String("subject", subject))

		event := parsed.Event(models.SourceSurfacingMail)
		event.SecurityLevel = 0
		event.Alarm = false
		event.DetectedAt = msg.Date
		events = append(events, event)
	}
	return events, nil
}
