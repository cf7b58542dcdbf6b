package notifier

import (
	"bytes"
	"fmt"
	"text/template"

	"voto-alerts/internal/models"
)

const (
	sailbuoyTemplate  = "Sailbuoy warning {{.PlatformID}} M{{.Mission}}. Source: {{.AlarmSource}}"
	surfacingTemplate = "SURFACING {{.PlatformID}} M{{.Mission}} cycle {{.Cycle}}. Source: {{.AlarmSource}}"
	alarmTemplate     = "ALARM {{.PlatformID}} M{{.Mission}} cycle {{.Cycle}} alarm code {{.SecurityLevel}}. Source: {{.AlarmSource}}"
)

// Templates renders the SMS wording for an event.
type Templates struct {
	sailbuoy  *template.Template
	surfacing *template.Template
	alarm     *template.Template
}

// NewTemplates parses the three message templates. Empty strings keep the defaults.
func NewTemplates(sailbuoy, surfacing, alarm string) (*Templates, error) {
	pick := func(custom, fallback string) string {
		if custom == "" {
			return fallback
		}
		return custom
	}
	t := &Templates{}
	var err error
	if t.sailbuoy, err = template.New("sailbuoy").Parse(pick(sailbuoy, sailbuoyTemplate)); err != nil {
		return nil, fmt.Errorf("failed to parse sailbuoy template: %w", err)
	}
	if t.surfacing, err = template.New("surfacing").Parse(pick(surfacing, surfacingTemplate)); err != nil {
		return nil, fmt.Errorf("failed to parse surfacing template: %w", err)
	}
	if t.alarm, err = template.New("alarm").Parse(pick(alarm, alarmTemplate)); err != nil {
		return nil, fmt.Errorf("failed to parse alarm template: %w", err)
	}
	return t, nil
}

// DefaultTemplates returns the built-in wording.
func DefaultTemplates() *Templates {
	t, err := NewTemplates("", "", "")
	if err != nil {
		panic(err)
	}
	return t
}

// Render picks the template by platform and severity.
func (t *Templates) Render(event models.AlarmEvent) (string, error) {
	tmpl := t.alarm
	switch {
	case event.IsSailbuoy():
		tmpl = t.sailbuoy
	case event.SecurityLevel == 0:
		tmpl = t.surfacing
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, event); err != nil {
		return "", fmt.Errorf("failed to render %s message: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
