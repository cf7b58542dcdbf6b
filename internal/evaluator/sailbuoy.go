package evaluator

import (
	"context"
	"math"
	"strings"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/parser"

	"go.uber.org/zap"
)

// Sailbuoy variables checked by the evaluator.
const (
	VarLeak              = "Leak"
	VarBigLeak           = "BigLeak"
	VarSailRotation      = "SailRotation"
	VarWarning           = "Warning"
	VarWithinTrackRadius = "WithinTrackRadius"
)

var faultVariables = []string{VarLeak, VarBigLeak, VarSailRotation}

// SailbuoyConfig tunes the sailbuoy checks.
type SailbuoyConfig struct {
	Lookback    int           // samples inspected, counted from the newest
	StaleAfter  time.Duration // newest sample older than this: no evaluation
	Grace       time.Duration // missions shorter than this only get fault checks
	TrackCheck  bool
	TrackWindow time.Duration // off-track dedup window
}

// DefaultSailbuoyConfig returns the production thresholds.
func DefaultSailbuoyConfig() SailbuoyConfig {
	return SailbuoyConfig{
		Lookback:    15,
		StaleAfter:  12 * time.Hour,
		Grace:       24 * time.Hour,
		TrackCheck:  false,
		TrackWindow: 3 * time.Hour,
	}
}

// SailbuoyAlert is a new (not yet notified) sailbuoy condition.
type SailbuoyAlert struct {
	Event    models.AlarmEvent
	Mode     Mode
	OffTrack bool // notify by meta mail and log a dry-run pilot dispatch only
}

// SailbuoyEvaluator checks one telemetry dataset for faults and warnings.
type SailbuoyEvaluator struct {
	cfg     SailbuoyConfig
	matcher *Matcher
	logger  *zap.Logger
	now     func() time.Time
}

// NewSailbuoyEvaluator creates the evaluator.
func NewSailbuoyEvaluator(cfg SailbuoyConfig, matcher *Matcher, logger *zap.Logger) *SailbuoyEvaluator {
	return &SailbuoyEvaluator{
		cfg:     cfg,
		matcher: matcher,
		logger:  logger,
		now:     time.Now,
	}
}

// SailbuoyEvent builds the alarm event for a sailbuoy dataset and source.
func SailbuoyEvent(ds models.Dataset, source string, detectedAt time.Time) models.AlarmEvent {
	platformID := strings.TrimSpace(ds.PlatformSerial)
	if !strings.HasPrefix(strings.ToUpper(platformID), "SB") {
		platformID = "SB" + platformID
	}
	glider, _ := parser.DigitsToInt(platformID)
	return models.AlarmEvent{
		PlatformID:    platformID,
		Glider:        glider,
		Mission:       ds.DeploymentID,
		Cycle:         0,
		SecurityLevel: 1,
		AlarmSource:   source,
		DetectedAt:    detectedAt,
		Alarm:         true,
	}
}

// Evaluate returns the alerts of ds that have not been notified yet.
// Faults come first (pilot and supervisor), then the warning (pilot only).
func (e *SailbuoyEvaluator) Evaluate(ctx context.Context, ds models.Dataset) ([]SailbuoyAlert, error) {
	first, last, ok := ds.Span()
	base := SailbuoyEvent(ds, "", last)
	fields := []zap.Field{
		zap.String("platform_id", base.PlatformID),
		zap.Int("mission", base.Mission),
	}
	if !ok {
		e.logger.Info("Empty sailbuoy dataset", fields...)
		return nil, nil
	}
	if e.now().Sub(last) > e.cfg.StaleAfter {
		e.logger.Info("Old news from sailbuoy: no warnings", fields...)
		return nil, nil
	}
	e.logger.Info("Processing sailbuoy alerts", fields...)

	var alerts []SailbuoyAlert
	for _, name := range faultVariables {
		if !ds.Has(name) {
			continue
		}
		if !anyNonZero(e.window(ds.Series[name], 0)) {
			continue
		}
		alert, err := e.newAlert(ctx, ds, name, last, ModeForce, time.Time{})
		if err != nil {
			return alerts, err
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if last.Sub(first) < e.cfg.Grace {
		e.logger.Info("Sailbuoy just deployed: only fault checks", fields...)
		return alerts, nil
	}

	if ds.Has(VarWarning) {
		window := e.window(ds.Series[VarWarning], 0)
		// a constant window is a stuck sensor
		if anyNonZero(window) && distinct(window) > 1 {
			alert, err := e.newAlert(ctx, ds, VarWarning, last, ModePilotOnly, time.Time{})
			if err != nil {
				return alerts, err
			}
			if alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}

	if e.cfg.TrackCheck && ds.Has(VarWithinTrackRadius) {
		series := e.window(ds.Series[VarWithinTrackRadius], 1)
		if len(series) >= 3 && series[len(series)-3] == 0 {
			alert, err := e.newAlert(ctx, ds, VarWithinTrackRadius, last, ModePilotOnly, e.now().Add(-e.cfg.TrackWindow))
			if err != nil {
				return alerts, err
			}
			if alert != nil {
				alert.OffTrack = true
				alerts = append(alerts, *alert)
			}
		}
	}
	return alerts, nil
}

func (e *SailbuoyEvaluator) newAlert(ctx context.Context, ds models.Dataset, source string, at time.Time, mode Mode, since time.Time) (*SailbuoyAlert, error) {
	event := SailbuoyEvent(ds, source, at)
	dup, err := e.matcher.IsSailbuoyDuplicate(ctx, event, since)
	if err != nil {
		return nil, err
	}
	if dup {
		e.logger.Info("Already logged sailbuoy warning",
			zap.String("platform_id", event.PlatformID),
			zap.Int("mission", event.Mission),
			zap.String("alarm_source", source),
		)
		return nil, nil
	}
	return &SailbuoyAlert{Event: event, Mode: mode}, nil
}

// window returns the last Lookback samples with NaN replaced by fill.
func (e *SailbuoyEvaluator) window(series []float64, fill float64) []float64 {
	start := 0
	if e.cfg.Lookback > 0 && len(series) > e.cfg.Lookback {
		start = len(series) - e.cfg.Lookback
	}
	out := make([]float64, 0, len(series)-start)
	for _, v := range series[start:] {
		if math.IsNaN(v) {
			v = fill
		}
		out = append(out, v)
	}
	return out
}

func anyNonZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return true
		}
	}
	return false
}

func distinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
