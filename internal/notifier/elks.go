package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voto-alerts/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultElksURL is the 46elks API root.
const DefaultElksURL = "https://api.46elks.com"

var elksTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ElksClient talks to the 46elks REST API.
type ElksClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewElksClient creates a client using basic auth. Sends are never retried
// so a slow reply cannot turn into a second SMS.
func NewElksClient(baseURL, username, password string, timeout time.Duration, logger *zap.Logger) *ElksClient {
	if baseURL == "" {
		baseURL = DefaultElksURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetBasicAuth(username, password).
		SetHeader("Accept", "application/json")

	return &ElksClient{
		httpClient: client,
		logger:     logger,
	}
}

// SendText posts to /a1/sms.
func (c *ElksClient) SendText(ctx context.Context, req TextRequest) error {
	form := map[string]string{
		"from":    req.From,
		"to":      req.To,
		"message": req.Message,
	}
	if req.DryRun {
		form["dryrun"] = "yes"
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/a1/sms")
	if err != nil {
		return &models.TransportError{Op: "elks sms", Err: err}
	}
	c.logger.Info("ELKS SEND",
		zap.Int("status_code", resp.StatusCode()),
		zap.String("body", resp.String()),
	)
	if resp.StatusCode() != http.StatusOK {
		return &models.TransportError{Op: "elks sms", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

type elksCall struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	State   string `json:"state"`
	Created string `json:"created"`
}

func (e elksCall) toCall() Call {
	return Call{
		ID:      e.ID,
		To:      e.To,
		State:   e.State,
		Created: parseElksTime(e.Created),
	}
}

// PlaceCall posts to /a1/calls.
func (c *ElksClient) PlaceCall(ctx context.Context, req CallRequest) (Call, error) {
	form := map[string]string{
		"from":        req.From,
		"to":          req.To,
		"voice_start": req.VoiceStart,
	}
	if req.Timeout > 0 {
		form["timeout"] = strconv.Itoa(int(req.Timeout / time.Second))
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/a1/calls")
	if err != nil {
		return Call{}, &models.TransportError{Op: "elks call", Err: err}
	}
	c.logger.Info("ELKS CALL",
		zap.Int("status_code", resp.StatusCode()),
		zap.String("body", resp.String()),
	)
	if resp.StatusCode() != http.StatusOK {
		return Call{}, &models.TransportError{Op: "elks call", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var placed elksCall
	if err := json.Unmarshal(resp.Body(), &placed); err != nil {
		c.logger.Warn("Unexpected call response", zap.Error(err))
		return Call{To: req.To}, nil
	}
	return placed.toCall(), nil
}

// ListCalls fetches the most recent page of calls.
func (c *ElksClient) ListCalls(ctx context.Context) ([]Call, error) {
	var page struct {
		Data []elksCall `json:"data"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&page).
		Get("/a1/calls")
	if err != nil {
		return nil, &models.TransportError{Op: "elks list calls", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &models.TransportError{Op: "elks list calls", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	calls := make([]Call, 0, len(page.Data))
	for _, call := range page.Data {
		calls = append(calls, call.toCall())
	}
	return calls, nil
}

// parseElksTime reads provider timestamps, which are UTC without an offset.
func parseElksTime(s string) time.Time {
	for _, layout := range elksTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// VoiceStart builds the voice_start JSON that plays audioURL.
func VoiceStart(audioURL string) string {
	data, _ := json.Marshal(map[string]string{"play": audioURL})
	return string(data)
}
