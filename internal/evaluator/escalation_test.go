package evaluator

import (
	"testing"

	"voto-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func assignment(supervisor string) models.OnCallAssignment {
	return models.OnCallAssignment{
		ValidFrom:           t0,
		Pilots:              []string{"+46 70 111"},
		Supervisor:          supervisor,
		AlarmVolunteers:     []string{"+4670111", "+4670333"},
		SurfacingVolunteers: []string{"+4670444"},
	}
}

func roles(plan Plan) map[models.Role][]string {
	out := make(map[models.Role][]string)
	for _, c := range plan.Contacts {
		out[c.Role] = append(out[c.Role], c.Number)
	}
	return out
}

func TestPolicy_AlarmWithSupervisor(t *testing.T) {
	p := NewPolicy(zap.NewNop())

	plan := p.Plan(alarmEvent(5, 3, 3, models.SourceCommLog), assignment("+4670222"), false)
	assert.Equal(t, OutcomeNotifiedSupervisor, plan.Outcome)
	got := roles(plan)
	assert.Equal(t, []string{"+4670111"}, got[models.RolePilot])
	assert.Equal(t, []string{"+4670333"}, got[models.RoleSelfVolunteered], "volunteer equal to pilot is skipped")
	assert.Equal(t, []string{"+4670222"}, got[models.RoleSupervisor])
}

func TestPolicy_AlarmWithoutSupervisor(t *testing.T) {
	p := NewPolicy(zap.NewNop())

	plan := p.Plan(alarmEvent(5, 3, 3, models.SourceCommLog), assignment(""), false)
	assert.Equal(t, OutcomeSuppressedNoSupervisor, plan.Outcome)
	assert.Empty(t, roles(plan)[models.RoleSupervisor])
	assert.NotEmpty(t, roles(plan)[models.RolePilot])
}

func TestPolicy_LevelZeroNoSupervisor(t *testing.T) {
	p := NewPolicy(zap.NewNop())

	plan := p.Plan(alarmEvent(5, 3, 0, models.SourceCommLog), assignment("+4670222"), false)
	assert.Equal(t, OutcomeNotifiedPilot, plan.Outcome)
	assert.Empty(t, roles(plan)[models.RoleSupervisor])

	plan = p.Plan(alarmEvent(5, 3, 0, models.SourceCommLog), assignment(""), false)
	assert.Equal(t, OutcomeNotifiedPilot, plan.Outcome)
	assert.Empty(t, roles(plan)[models.RoleSupervisor])
}

func TestPolicy_SkipsDuplicateAndMasked(t *testing.T) {
	p := NewPolicy(zap.NewNop())

	plan := p.Plan(alarmEvent(5, 3, 3, models.SourceCommLog), assignment("+4670222"), true)
	assert.Equal(t, OutcomeSkippedDuplicate, plan.Outcome)
	assert.False(t, plan.Notifies())

	masked := alarmEvent(5, 3, 3, models.SourceCommLog)
	masked.Masked = true
	plan = p.Plan(masked, assignment("+4670222"), false)
	assert.Equal(t, OutcomeSkippedMasked, plan.Outcome)
	assert.False(t, plan.Notifies())
}

func TestPolicy_Surfacing(t *testing.T) {
	p := NewPolicy(zap.NewNop())
	event := alarmEvent(5, 3, 0, models.SourceSurfacingMail)

	plan := p.Plan(event, assignment("+4670222"), false)
	assert.Equal(t, OutcomeNotifiedSurfacing, plan.Outcome)
	assert.Equal(t, []Contact{{Number: "+4670444", Role: models.RoleSurfacing}}, plan.Contacts)

	a := assignment("+4670222")
	a.SurfacingVolunteers = nil
	plan = p.Plan(event, a, false)
	assert.Equal(t, OutcomeSkippedNoRecipients, plan.Outcome)
}

func TestPolicy_CommaSeparatedPilots(t *testing.T) {
	p := NewPolicy(zap.NewNop())
	a := models.OnCallAssignment{Pilots: []string{"+4670111,+4670555"}}

	plan := p.Plan(alarmEvent(5, 3, 0, models.SourceCommLog), a, false)
	assert.Equal(t, []string{"+4670111", "+4670555"}, roles(plan)[models.RolePilot])
}

func TestPolicy_Modes(t *testing.T) {
	p := NewPolicy(zap.NewNop())
	event := alarmEvent(7, 0, 1, VarLeak)

	plan := p.PlanMode(event, assignment("+4670222"), false, ModeForce)
	assert.Equal(t, OutcomeNotifiedSupervisor, plan.Outcome)

	plan = p.PlanMode(event, assignment("+4670222"), false, ModePilotOnly)
	assert.Equal(t, OutcomeNotifiedPilot, plan.Outcome)
	assert.Empty(t, roles(plan)[models.RoleSupervisor])
}

func TestPolicy_NoRecipients(t *testing.T) {
	p := NewPolicy(zap.NewNop())

	plan := p.Plan(alarmEvent(5, 3, 0, models.SourceCommLog), models.OnCallAssignment{}, false)
	assert.Equal(t, OutcomeSkippedNoRecipients, plan.Outcome)
}
