package evaluator

import (
	"strings"

	"voto-alerts/internal/models"

	"go.uber.org/zap"
)

// Outcome is the terminal state of escalating one event.
type Outcome string

const (
	OutcomeSkippedDuplicate       Outcome = "skipped-duplicate"
	OutcomeSkippedMasked          Outcome = "skipped-masked"
	OutcomeNotifiedPilot          Outcome = "notified-pilot"
	OutcomeNotifiedSupervisor     Outcome = "notified-pilot+supervisor"
	OutcomeSuppressedNoSupervisor Outcome = "suppressed-no-supervisor"
	OutcomeNotifiedSurfacing      Outcome = "notified-surfacing"
	OutcomeSkippedNoRecipients    Outcome = "skipped-no-recipients"
)

// Mode selects how far an alarm may escalate.
type Mode int

const (
	// ModeSeverity adds the supervisor for security level > 0.
	ModeSeverity Mode = iota
	// ModeForce always adds the supervisor (sailbuoy leak, rotation, navigation faults).
	ModeForce
	// ModePilotOnly never adds the supervisor (sailbuoy warnings).
	ModePilotOnly
)

// Contact is one recipient of a plan. Each contact gets a text and a call.
type Contact struct {
	Number string
	Role   models.Role
}

// Plan lists who to contact for one event.
type Plan struct {
	Outcome  Outcome
	Contacts []Contact
}

// Notifies reports whether the plan contacts anybody.
func (p Plan) Notifies() bool {
	return len(p.Contacts) > 0
}

// Policy turns an event and the on-call assignment into a plan.
type Policy struct {
	logger *zap.Logger
}

// NewPolicy creates the escalation policy.
func NewPolicy(logger *zap.Logger) *Policy {
	return &Policy{logger: logger}
}

// Plan escalates by severity.
func (p *Policy) Plan(event models.AlarmEvent, assignment models.OnCallAssignment, duplicate bool) Plan {
	return p.PlanMode(event, assignment, duplicate, ModeSeverity)
}

// PlanMode escalates with an explicit mode.
func (p *Policy) PlanMode(event models.AlarmEvent, assignment models.OnCallAssignment, duplicate bool, mode Mode) Plan {
	fields := []zap.Field{
		zap.String("platform_id", event.PlatformID),
		zap.Int("mission", event.Mission),
		zap.Int("cycle", event.Cycle),
		zap.Int("security_level", event.SecurityLevel),
		zap.String("alarm_source", event.AlarmSource),
	}

	if event.Masked {
		p.logger.Info("Alarm masked", fields...)
		return Plan{Outcome: OutcomeSkippedMasked}
	}
	if duplicate {
		p.logger.Info("Alarm already notified", fields...)
		return Plan{Outcome: OutcomeSkippedDuplicate}
	}

	if event.SecurityLevel == 0 && event.IsSurfacing() {
		var contacts []Contact
		for _, number := range uniqueNumbers(assignment.SurfacingVolunteers, nil) {
			contacts = append(contacts, Contact{Number: number, Role: models.RoleSurfacing})
		}
		if len(contacts) == 0 {
			p.logger.Info("No one signed up for surfacing alerts", fields...)
			return Plan{Outcome: OutcomeSkippedNoRecipients}
		}
		return Plan{Outcome: OutcomeNotifiedSurfacing, Contacts: contacts}
	}

	pilots := uniqueNumbers(splitNumbers(assignment.Pilots), nil)
	var contacts []Contact
	for _, number := range pilots {
		contacts = append(contacts, Contact{Number: number, Role: models.RolePilot})
	}
	for _, number := range uniqueNumbers(assignment.AlarmVolunteers, pilots) {
		contacts = append(contacts, Contact{Number: number, Role: models.RoleSelfVolunteered})
	}

	escalate := mode == ModeForce || (mode == ModeSeverity && event.SecurityLevel > 0)
	outcome := OutcomeNotifiedPilot
	if escalate {
		if assignment.HasSupervisor() {
			contacts = append(contacts, Contact{
				Number: models.NormalizeNumber(assignment.Supervisor),
				Role:   models.RoleSupervisor,
			})
			outcome = OutcomeNotifiedSupervisor
		} else {
			p.logger.Warn("No supervisor on duty: no escalation", fields...)
			outcome = OutcomeSuppressedNoSupervisor
		}
	}

	if len(contacts) == 0 {
		p.logger.Error("Nobody to notify for alarm", fields...)
		return Plan{Outcome: OutcomeSkippedNoRecipients}
	}
	return Plan{Outcome: outcome, Contacts: contacts}
}

// splitNumbers expands comma separated pilot entries.
func splitNumbers(entries []string) []string {
	var out []string
	for _, entry := range entries {
		out = append(out, strings.Split(entry, ",")...)
	}
	return out
}

// uniqueNumbers normalises numbers, dropping blanks, repeats and anything in exclude.
func uniqueNumbers(numbers, exclude []string) []string {
	seen := make(map[string]bool, len(numbers)+len(exclude))
	for _, n := range exclude {
		seen[models.NormalizeNumber(n)] = true
	}
	var out []string
	for _, n := range numbers {
		norm := models.NormalizeNumber(n)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
