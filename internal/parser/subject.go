package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"voto-alerts/internal/models"
)

var (
	forwardPrefix = regexp.MustCompile(`(?i)^\s*(fwd?|tr)\s*:\s*`)
	missionToken  = regexp.MustCompile(`^M(\d+)$`)
	cycleToken    = regexp.MustCompile(`^C(\d+)$`)
	levelToken    = regexp.MustCompile(`^\(([A-Za-z_ ]+):\s*(\d+)\)$`)
)

// Subject is a parsed glider cloud mail subject:
//
//	[SEA063] M48 ... C120 (level:3)
type Subject struct {
	Platform string
	Glider   int
	Mission  int
	Cycle    int
	Level    int
	HasLevel bool
}

// Event converts the subject into an alarm event.
func (s Subject) Event(source string) models.AlarmEvent {
	return models.AlarmEvent{
		PlatformID:    s.Platform,
		Glider:        s.Glider,
		Mission:       s.Mission,
		Cycle:         s.Cycle,
		SecurityLevel: s.Level,
		AlarmSource:   source,
		Alarm:         s.Level > 0,
	}
}

// StripForward removes a leading Fw:/Fwd:/TR: prefix.
func StripForward(subject string) string {
	return forwardPrefix.ReplaceAllString(subject, "")
}

// ParseSubject tokenizes and validates a mail subject. It fails with a
// *models.ParseError naming the offending token rather than guessing.
func ParseSubject(raw string) (Subject, error) {
	tokens := strings.Fields(StripForward(raw))
	if len(tokens) < 3 {
		return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("expected at least 3 tokens, got %d", len(tokens)))
	}

	platform := tokens[0]
	if len(platform) < 3 || platform[0] != '[' || platform[len(platform)-1] != ']' {
		return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("platform token %q is not bracketed", platform))
	}
	platform = platform[1 : len(platform)-1]
	glider, err := DigitsToInt(platform)
	if err != nil {
		return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("platform %q: %w", platform, err))
	}

	m := missionToken.FindStringSubmatch(tokens[1])
	if m == nil {
		return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("mission token %q", tokens[1]))
	}
	mission, _ := strconv.Atoi(m[1])

	out := Subject{Platform: platform, Glider: glider, Mission: mission}
	cycleAt := -1
	for i := 2; i < len(tokens); i++ {
		if c := cycleToken.FindStringSubmatch(tokens[i]); c != nil {
			out.Cycle, _ = strconv.Atoi(c[1])
			cycleAt = i
			break
		}
	}
	if cycleAt < 0 {
		return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("no cycle token"))
	}

	// the level group may be split over tokens, e.g. "(level: 3)"
	rest := strings.Join(tokens[cycleAt+1:], " ")
	if start := strings.Index(rest, "("); start >= 0 {
		end := strings.Index(rest[start:], ")")
		if end < 0 {
			return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("unterminated level group"))
		}
		l := levelToken.FindStringSubmatch(rest[start : start+end+1])
		if l == nil {
			return Subject{}, models.NewParseError("subject", raw, fmt.Errorf("level group %q", rest[start:start+end+1]))
		}
		out.Level, _ = strconv.Atoi(l[2])
		out.HasLevel = true
	}
	return out, nil
}
