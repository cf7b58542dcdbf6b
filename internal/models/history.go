package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel is the notification medium.
type Channel string

const (
	ChannelText Channel = "text"
	ChannelCall Channel = "call"
)

// Role is why a recipient was contacted.
type Role string

const (
	RolePilot           Role = "pilot"
	RoleSupervisor      Role = "supervisor"
	RoleSelfVolunteered Role = "self-volunteered"
	RoleSurfacing       Role = "surfacing"
)

// HistoryTimeLayout is the timestamp layout of history lines.
const HistoryTimeLayout = "2006-01-02 15:04:05"

// AlarmHistoryRecord is a notification that was sent (or dry-run sent).
// Records are appended once and never changed.
type AlarmHistoryRecord struct {
	SentAt        time.Time `json:"sent_at"`
	PlatformID    string    `json:"platform_id"`
	Glider        int       `json:"glider"`
	Mission       int       `json:"mission"`
	Cycle         int       `json:"cycle"`
	SecurityLevel int       `json:"security_level"`
	Channel       Channel   `json:"channel"`
	Role          Role      `json:"role"`
	AlarmSource   string    `json:"alarm_source"`
}

// NewHistoryRecord builds the record for one dispatch of event.
func NewHistoryRecord(event AlarmEvent, channel Channel, role Role, sentAt time.Time) AlarmHistoryRecord {
	return AlarmHistoryRecord{
		SentAt:        sentAt,
		PlatformID:    event.PlatformID,
		Glider:        event.Glider,
		Mission:       event.Mission,
		Cycle:         event.Cycle,
		SecurityLevel: event.SecurityLevel,
		Channel:       channel,
		Role:          role,
		AlarmSource:   event.AlarmSource,
	}
}

// ChannelRole returns the combined "<channel>_<role>" column.
func (r AlarmHistoryRecord) ChannelRole() string {
	return string(r.Channel) + "_" + string(r.Role)
}

// String renders the record as a history line:
// datetime,glider,mission,cycle,security_level,channel_role,alarm_source
func (r AlarmHistoryRecord) String() string {
	return fmt.Sprintf("%s,%d,%d,%d,%d,%s,%s",
		r.SentAt.Format(HistoryTimeLayout),
		r.Glider,
		r.Mission,
		r.Cycle,
		r.SecurityLevel,
		r.ChannelRole(),
		r.AlarmSource,
	)
}

// ParseHistoryLine parses a line written by String. The alarm source may
// itself contain commas, so everything after the sixth comma belongs to it.
func ParseHistoryLine(platformID, line string) (AlarmHistoryRecord, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), ",", 7)
	if len(parts) != 7 {
		return AlarmHistoryRecord{}, NewParseError("history", line, fmt.Errorf("expected 7 fields, got %d", len(parts)))
	}
	sentAt, err := time.ParseInLocation(HistoryTimeLayout, parts[0], time.UTC)
	if err != nil {
		return AlarmHistoryRecord{}, NewParseError("history", line, err)
	}
	ints := make([]int, 4)
	for i := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i+1]))
		if err != nil {
			return AlarmHistoryRecord{}, NewParseError("history", line, err)
		}
		ints[i] = v
	}
	channel, role, ok := strings.Cut(parts[5], "_")
	if !ok {
		return AlarmHistoryRecord{}, NewParseError("history", line, fmt.Errorf("bad channel_role %q", parts[5]))
	}
	return AlarmHistoryRecord{
		SentAt:        sentAt,
		PlatformID:    platformID,
		Glider:        ints[0],
		Mission:       ints[1],
		Cycle:         ints[2],
		SecurityLevel: ints[3],
		Channel:       Channel(channel),
		Role:          Role(role),
		AlarmSource:   parts[6],
	}, nil
}
