package consumer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"voto-alerts/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// Message is the envelope of one inbox message. The subject is the only payload.
type Message struct {
	SeqNum  uint32
	From    string
	Subject string
	Date    time.Time
}

// Mailbox is a read-only view of the alert inbox.
type Mailbox interface {
	// Search returns message sequence numbers, oldest first. An empty
	// subject matches every message.
	Search(ctx context.Context, subject string) ([]uint32, error)
	// Fetch returns the envelopes of ids ordered like ids.
	Fetch(ctx context.Context, ids []uint32) ([]Message, error)
	Close() error
}

// IMAPConfig configures IMAPMailbox.
type IMAPConfig struct {
	Addr     string // host:port, TLS
	Username string
	Password string
	Folder   string
	Timeout  time.Duration
}

// IMAPMailbox reads an IMAP folder over TLS.
type IMAPMailbox struct {
	client *client.Client
	logger *zap.Logger
}

// DialIMAP connects, logs in and selects the folder read-only.
func DialIMAP(ctx context.Context, cfg IMAPConfig, logger *zap.Logger) (*IMAPMailbox, error) {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, &models.TransportError{Op: "imap dial", Err: err}
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	c, err := client.DialWithDialerTLS(dialer, cfg.Addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, &models.TransportError{Op: "imap dial", Err: err}
	}
	c.Timeout = cfg.Timeout

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, &models.TransportError{Op: "imap login", Err: err}
	}
	if _, err := c.Select(cfg.Folder, true); err != nil {
		c.Logout()
		return nil, &models.TransportError{Op: "imap select", Err: err}
	}

	logger.Debug("Connected to mailbox",
		zap.String("addr", cfg.Addr),
		zap.String("folder", cfg.Folder),
	)
	return &IMAPMailbox{client: c, logger: logger}, nil
}

func (m *IMAPMailbox) Search(ctx context.Context, subject string) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	if subject != "" {
		criteria.Header.Add("Subject", subject)
	}
	ids, err := m.client.Search(criteria)
	if err != nil {
		return nil, &models.TransportError{Op: "imap search", Err: err}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *IMAPMailbox) Fetch(ctx context.Context, ids []uint32) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	bySeq := make(map[uint32]Message, len(ids))
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		bySeq[msg.SeqNum] = Message{
			SeqNum:  msg.SeqNum,
			From:    formatAddresses(msg.Envelope.From),
			Subject: msg.Envelope.Subject,
			Date:    msg.Envelope.Date,
		}
	}
	if err := <-done; err != nil {
		return nil, &models.TransportError{Op: "imap fetch", Err: err}
	}

	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := bySeq[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *IMAPMailbox) Close() error {
	return m.client.Logout()
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, a.Address()))
		} else {
			parts = append(parts, a.Address())
		}
	}
	return strings.Join(parts, ", ")
}

// newest returns the last n ids.
func newest(ids []uint32, n int) []uint32 {
	if n > 0 && len(ids) > n {
		return ids[len(ids)-n:]
	}
	return ids
}

// SenderFilter matches the From header against known alarm senders.
type SenderFilter []string

// Allows reports whether from contains one of the senders (case-insensitive).
func (f SenderFilter) Allows(from string) bool {
	from = strings.ToLower(from)
	for _, s := range f {
		if s != "" && strings.Contains(from, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
