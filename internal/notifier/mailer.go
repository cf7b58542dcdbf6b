package notifier

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Mail is a meta-notification to the operators.
type Mail struct {
	To      string // empty means the mailer default
	Subject string
	Body    string
}

// Mailer sends meta-notifications (failed runs, off-track sailbuoys, bad contacts).
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer only logs. Used for dry runs and when no SMTP server is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, mail Mail) error {
	m.logger.Error("Mock mail",
		zap.String("to", mail.To),
		zap.String("subject", mail.Subject),
		zap.String("body", mail.Body),
	)
	return nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Addr      string // host:port; port 465 means implicit TLS
	Username  string // empty: no SMTP auth
	Password  string
	From      string
	DefaultTo string
	Timeout   time.Duration
}

// SMTPMailer sends plain text mail through one SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *zap.Logger
	send   func(ctx context.Context, msg *gomail.Msg) error
}

// NewSMTPMailer creates the mailer.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &SMTPMailer{
		cfg:    cfg,
		logger: logger,
	}
	m.send = m.dialAndSend
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	to := mail.To
	if to == "" {
		to = m.cfg.DefaultTo
	}
	if to == "" {
		return fmt.Errorf("no mail recipient for %q", mail.Subject)
	}
	// subjects are single tokens downstream
	subject := strings.ReplaceAll(mail.Subject, " ", "-")

	m.logger.Warn("email",
		zap.String("subject", subject),
		zap.String("body", mail.Body),
		zap.String("to", to),
	)

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid mail sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid mail recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextPlain, mail.Body)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail %q: %w", subject, err)
	}
	return nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	host, portValue, err := net.SplitHostPort(m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("invalid smtp address %q: %w", m.cfg.Addr, err)
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return fmt.Errorf("invalid smtp port %q: %w", portValue, err)
	}

	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
