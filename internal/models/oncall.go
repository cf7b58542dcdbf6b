package models

import (
	"strings"
	"time"
)

// OnCallAssignment is the contact set valid at one point in time.
// It is resolved once per run and never modified.
type OnCallAssignment struct {
	ValidFrom           time.Time
	Pilots              []string
	Supervisor          string // empty when nobody is on call
	AlarmVolunteers     []string
	SurfacingVolunteers []string
}

// HasSupervisor reports whether a supervisor is on call.
func (a OnCallAssignment) HasSupervisor() bool {
	return strings.TrimSpace(a.Supervisor) != ""
}

// NormalizeNumber keeps only digits and a leading '+'.
func NormalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
