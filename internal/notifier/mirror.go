package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voto-alerts/internal/models"
)

// Mirror receives a copy of every history record after it is stored.
type Mirror interface {
	Publish(ctx context.Context, record models.AlarmHistoryRecord) error
}

// Publisher is the part of common/mqtt.Client used by MQTTMirror.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTMirror publishes history records as JSON to <prefix>/<platform_id>.
type MQTTMirror struct {
	publisher Publisher
	prefix    string
}

// NewMQTTMirror creates the mirror.
func NewMQTTMirror(publisher Publisher, prefix string) *MQTTMirror {
	return &MQTTMirror{
		publisher: publisher,
		prefix:    strings.TrimRight(prefix, "/"),
	}
}

func (m *MQTTMirror) Publish(ctx context.Context, record models.AlarmHistoryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}
	return m.publisher.Publish(m.prefix+"/"+record.PlatformID, false, payload)
}
