package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaskState is the alarm mask found in one comm log file.
type MaskState struct {
	ActiveMask int // security level being suppressed, 0 = none
}

// MailAlarmState is the last alarm seen by mail for a platform.
// Serialised as [mission, cycle, security_level].
type MailAlarmState struct {
	Mission       int
	Cycle         int
	SecurityLevel int
}

func (s MailAlarmState) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{s.Mission, s.Cycle, s.SecurityLevel})
}

func (s *MailAlarmState) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 3 {
		return fmt.Errorf("mail alarm state: expected 3 values, got %d", len(v))
	}
	s.Mission, s.Cycle, s.SecurityLevel = v[0], v[1], v[2]
	return nil
}

// RedialRecord is one entry of the redial ledger.
type RedialRecord struct {
	OriginalID string    `json:"original_id"`
	CallID     string    `json:"id"`
	To         string    `json:"to"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created"`
}
