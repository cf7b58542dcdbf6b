package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"voto-alerts/internal/models"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

const (
	statusMarker    = "SEAMRS"
	maskMarker      = "SEAALR"
	maskDirective   = "$SEAALR,"
	legacyMarker    = "trmId"
	minStatusLength = 90 // shorter SEAMRS lines are truncated transmissions
	payloadField    = 5  // 0-based index of the payload in the ';' preamble
)

var commLogTimeLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04:05.000",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// CommLogResult is the outcome of parsing one comm log file.
type CommLogResult struct {
	Events []models.AlarmEvent // oldest first
	Mask   models.MaskState
	Legacy bool
}

// Latest returns the most recent event, if any.
func (r CommLogResult) Latest() (models.AlarmEvent, bool) {
	if len(r.Events) == 0 {
		return models.AlarmEvent{}, false
	}
	return r.Events[len(r.Events)-1], true
}

// ParseCommLogFile opens path and parses it with ParseCommLog.
func ParseCommLogFile(path string, logger *zap.Logger) (CommLogResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return CommLogResult{}, models.NewParseError("commlog", path, err)
	}
	defer f.Close()
	return ParseCommLog(f, path, logger)
}

// ParseCommLog turns the raw text of a glider communications log into alarm
// events. The input is Latin-1. Lines without SEAMRS, short lines and lines
// from gliders reported as "None" are dropped. The last SEAALR directive in
// the file masks every event of exactly that security level.
func ParseCommLog(r io.Reader, name string, logger *zap.Logger) (CommLogResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		result   CommLogResult
		lastMask string
		first    = true
	)
	for scanner.Scan() {
		line := scanner.Text()
		if first && strings.TrimSpace(line) != "" {
			first = false
			if strings.Contains(line, legacyMarker) {
				logger.Warn("Old logfile type, skipping", zap.String("file", name))
				return CommLogResult{Legacy: true}, nil
			}
		}
		if strings.Contains(line, maskMarker) {
			lastMask = line
		}
		if !strings.Contains(line, statusMarker) {
			continue
		}
		if utf8.RuneCountInString(line) <= minStatusLength {
			continue
		}
		event, ok := parseStatusLine(line)
		if !ok {
			logger.Debug("Dropping malformed status line",
				zap.String("file", name),
				zap.String("line", line),
			)
			continue
		}
		result.Events = append(result.Events, event)
	}
	if err := scanner.Err(); err != nil {
		return CommLogResult{}, models.NewParseError("commlog", name, err)
	}

	sort.SliceStable(result.Events, func(i, j int) bool {
		return result.Events[i].DetectedAt.Before(result.Events[j].DetectedAt)
	})

	if lastMask != "" {
		mask, err := parseMask(lastMask)
		if err != nil {
			logger.Warn("Ignoring malformed alarm mask",
				zap.String("file", name),
				zap.String("line", lastMask),
				zap.Error(err),
			)
		} else {
			result.Mask = models.MaskState{ActiveMask: mask}
		}
	}
	if result.Mask.ActiveMask != 0 {
		masked := ApplyMask(result.Events, result.Mask)
		fields := []zap.Field{
			zap.String("file", name),
			zap.Int("mask", result.Mask.ActiveMask),
			zap.Int("masked_events", masked),
		}
		if latest, ok := result.Latest(); ok {
			fields = append(fields,
				zap.Int("glider", latest.Glider),
				zap.Int("mission", latest.Mission),
				zap.Int("cycle", latest.Cycle),
			)
		}
		logger.Warn("Masking alarm", fields...)
	}

	return result, nil
}

// ApplyMask clears the alarm flag of every event whose security level equals
// the mask. A zero mask is a no-op. It returns the number of events masked.
func ApplyMask(events []models.AlarmEvent, mask models.MaskState) int {
	if mask.ActiveMask == 0 {
		return 0
	}
	n := 0
	for i := range events {
		if events[i].SecurityLevel == mask.ActiveMask {
			events[i].Alarm = false
			events[i].Masked = true
			n++
		}
	}
	return n
}

func parseStatusLine(line string) (models.AlarmEvent, bool) {
	parts := strings.Split(line, ";")
	if len(parts) <= payloadField {
		return models.AlarmEvent{}, false
	}
	detectedAt, err := parseCommLogTime(parts[0])
	if err != nil {
		return models.AlarmEvent{}, false
	}
	msg := strings.Split(parts[payloadField], ",")
	if len(msg) < 4 || msg[1] == "None" {
		return models.AlarmEvent{}, false
	}
	glider, err := DigitsToInt(msg[1])
	if err != nil {
		return models.AlarmEvent{}, false
	}
	mission, err := DigitsToInt(msg[2])
	if err != nil {
		return models.AlarmEvent{}, false
	}
	cycle, err := DigitsToInt(msg[3])
	if err != nil {
		return models.AlarmEvent{}, false
	}
	level := 0
	if len(msg) > 4 {
		if v, err := DigitsToInt(msg[4]); err == nil {
			level = v
		}
	}
	return models.AlarmEvent{
		PlatformID:    GliderPlatformID(glider),
		Glider:        glider,
		Mission:       mission,
		Cycle:         cycle,
		SecurityLevel: level,
		AlarmSource:   models.SourceCommLog,
		DetectedAt:    detectedAt,
		Alarm:         level > 0,
	}, true
}

// parseMask reads <prefix>$SEAALR,<category>,<mask>*<checksum>.
func parseMask(line string) (int, error) {
	_, rest, ok := strings.Cut(line, maskDirective)
	if !ok {
		return 0, fmt.Errorf("no %s directive", maskDirective)
	}
	fields := strings.Split(rest, ",")
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing mask field")
	}
	value, _, _ := strings.Cut(fields[1], "*")
	return strconv.Atoi(strings.TrimSpace(value))
}

func parseCommLogTime(field string) (time.Time, error) {
	s := strings.TrimSpace(field)
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	// strip the surrounding brackets
	s = s[1 : len(s)-1]
	for _, layout := range commLogTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DigitsToInt drops every non-digit character and parses the rest.
func DigitsToInt(s string) (int, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	return strconv.Atoi(b.String())
}

// GliderPlatformID formats a glider serial as SEA063.
func GliderPlatformID(glider int) string {
	return fmt.Sprintf("SEA%03d", glider)
}
