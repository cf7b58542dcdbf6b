package models

import (
	"strings"
	"time"
)

// Alarm sources produced by the watchers.
const (
	SourceCommLog       = "comm log"
	SourceAlarmEmail    = "alarm email"
	SourceSurfacingMail = "surfacing email"
)

// AlarmEvent is one detected condition that may need a human.
type AlarmEvent struct {
	PlatformID    string    `json:"platform_id"`
	Glider        int       `json:"glider"`
	Mission       int       `json:"mission"`
	Cycle         int       `json:"cycle"`          // 0 for non-cyclic platforms
	SecurityLevel int       `json:"security_level"` // 0 = surfacing/status report
	AlarmSource   string    `json:"alarm_source"`
	DetectedAt    time.Time `json:"detected_at"` // event time from the source, not processing time
	Alarm         bool      `json:"alarm"`
	Masked        bool      `json:"masked"`
}

// IsSurfacing reports whether the event came from a surfacing report.
// Surfacing events are status pings and never take part in dedup.
func (e AlarmEvent) IsSurfacing() bool {
	return IsSurfacingSource(e.AlarmSource)
}

// IsSailbuoy reports whether the platform is a sailbuoy.
func (e AlarmEvent) IsSailbuoy() bool {
	return strings.Contains(e.PlatformID, "SB")
}

// IsSurfacingSource matches the "surf" tag used in alarm history.
func IsSurfacingSource(source string) bool {
	return strings.Contains(strings.ToLower(source), "surf")
}
