package evaluator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/repository"

	"go.uber.org/zap"
)

// FindPreviousAction returns the history records that already handled an
// equivalent alarm, oldest first. Records equal on mission, cycle and
// security level match; surfacing records never do. A surfacing event
// has no previous action.
func FindPreviousAction(history []models.AlarmHistoryRecord, event models.AlarmEvent) []models.AlarmHistoryRecord {
	if event.IsSurfacing() {
		return nil
	}
	var matches []models.AlarmHistoryRecord
	for _, rec := range history {
		if models.IsSurfacingSource(rec.AlarmSource) {
			continue
		}
		if rec.Mission == event.Mission &&
			rec.Cycle == event.Cycle &&
			rec.SecurityLevel == event.SecurityLevel {
			matches = append(matches, rec)
		}
	}
	sortBySentAt(matches)
	return matches
}

// FindSailbuoyAction returns the records for the same sailbuoy, mission and
// alarm source. A non-zero since keeps only records sent after it.
func FindSailbuoyAction(history []models.AlarmHistoryRecord, glider, mission int, source string, since time.Time) []models.AlarmHistoryRecord {
	var matches []models.AlarmHistoryRecord
	for _, rec := range history {
		if rec.Glider != glider || rec.Mission != mission || rec.AlarmSource != source {
			continue
		}
		if !since.IsZero() && !rec.SentAt.After(since) {
			continue
		}
		matches = append(matches, rec)
	}
	sortBySentAt(matches)
	return matches
}

func sortBySentAt(records []models.AlarmHistoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.Before(records[j].SentAt)
	})
}

// Matcher answers "was this already acted on" from the history store.
// It only reads; history is appended by the dispatcher after a send.
type Matcher struct {
	store  repository.HistoryStore
	logger *zap.Logger
}

// NewMatcher creates a matcher over store.
func NewMatcher(store repository.HistoryStore, logger *zap.Logger) *Matcher {
	return &Matcher{store: store, logger: logger}
}

// IsDuplicate reports whether event was already notified, with the matching records.
func (m *Matcher) IsDuplicate(ctx context.Context, event models.AlarmEvent) (bool, []models.AlarmHistoryRecord, error) {
	if event.IsSurfacing() {
		return false, nil, nil
	}
	history, err := m.store.List(ctx, event.PlatformID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read alarm history for %s: %w", event.PlatformID, err)
	}
	matches := FindPreviousAction(history, event)
	if len(matches) > 0 {
		m.logger.Debug("Alarm already handled",
			zap.String("platform_id", event.PlatformID),
			zap.Int("mission", event.Mission),
			zap.Int("cycle", event.Cycle),
			zap.Int("security_level", event.SecurityLevel),
			zap.Time("first_sent_at", matches[0].SentAt),
		)
	}
	return len(matches) > 0, matches, nil
}

// IsSailbuoyDuplicate is the sailbuoy variant keyed on (glider, mission, alarm source).
func (m *Matcher) IsSailbuoyDuplicate(ctx context.Context, event models.AlarmEvent, since time.Time) (bool, error) {
	history, err := m.store.List(ctx, event.PlatformID)
	if err != nil {
		return false, fmt.Errorf("failed to read alarm history for %s: %w", event.PlatformID, err)
	}
	return len(FindSailbuoyAction(history, event.Glider, event.Mission, event.AlarmSource, since)) > 0, nil
}
