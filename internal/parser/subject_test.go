package parser

import (
	"testing"

	"voto-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubject_Alarm(t *testing.T) {
	s, err := ParseSubject("[SEA063] M48 ALARM C120 (level:3)")
	require.NoError(t, err)

	assert.Equal(t, "SEA063", s.Platform)
	assert.Equal(t, 63, s.Glider)
	assert.Equal(t, 48, s.Mission)
	assert.Equal(t, 120, s.Cycle)
	assert.Equal(t, 3, s.Level)
	assert.True(t, s.HasLevel)
}

func TestParseSubject_ForwardPrefix(t *testing.T) {
	for _, subject := range []string{
		"Fw: [SEA063] M48 ALARM C120 (level:3)",
		"FW:[SEA063] M48 ALARM C120 (level:3)",
		"Fwd: [SEA063] M48 ALARM C120 (level: 3)",
	} {
		s, err := ParseSubject(subject)
		require.NoError(t, err, subject)
		assert.Equal(t, 3, s.Level, subject)
	}
}

func TestParseSubject_Surfacing(t *testing.T) {
	s, err := ParseSubject("[SEA066] M12 surfacing C7")
	require.NoError(t, err)

	assert.Equal(t, 12, s.Mission)
	assert.Equal(t, 7, s.Cycle)
	assert.False(t, s.HasLevel)

	ev := s.Event(models.SourceSurfacingMail)
	assert.Equal(t, 0, ev.SecurityLevel)
	assert.True(t, ev.IsSurfacing())
}

func TestParseSubject_Malformed(t *testing.T) {
	for _, subject := range []string{
		"",
		"hello there",
		"SEA063 M48 ALARM C120 (level:3)",
		"[SEA063] 48 ALARM C120 (level:3)",
		"[SEA063] M48 ALARM (level:3)",
		"[SEA063] M48 ALARM C120 (level:x)",
		"[SEA063] M48 ALARM C120 (level:3",
		"[] M48 ALARM C120",
	} {
		_, err := ParseSubject(subject)
		require.Error(t, err, subject)
		assert.True(t, models.IsParseError(err), subject)
	}
}
