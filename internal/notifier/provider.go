package notifier

import (
	"context"
	"time"
)

// TextRequest is one SMS.
type TextRequest struct {
	From    string
	To      string
	Message string
	DryRun  bool
}

// CallRequest is one voice call playing VoiceStart to the recipient.
type CallRequest struct {
	From       string
	To         string
	VoiceStart string
	Timeout    time.Duration
}

// Call is a voice call known to the provider.
type Call struct {
	ID      string
	To      string
	State   string
	Created time.Time
}

// Provider is the SMS/voice gateway.
type Provider interface {
	SendText(ctx context.Context, req TextRequest) error
	PlaceCall(ctx context.Context, req CallRequest) (Call, error)
	ListCalls(ctx context.Context) ([]Call, error)
}
