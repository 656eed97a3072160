// internal/game/steps.go
package game

import "fmt"

// Step is one entry in a room's step sequence. The sequence is chosen from
// the experiment config at room creation and never changes afterwards.
type Step string

const (
	StepWaitingRoom       Step = "waitingRoom"
	StepRoleSelection     Step = "roleSelection"
	StepInstructions      Step = "instructions"
	StepChat              Step = "chat"
	StepRoundsFirstPart   Step = "roundsFirstPart"
	StepPartTransition    Step = "partTransition"
	StepRoundsSecondPart  Step = "roundsSecondPart"
	StepRiskSurvey        Step = "riskSurvey"
	StepDemographicSurvey Step = "demographicSurvey"
	StepCompletion        Step = "completion"
)

var knownSteps = map[Step]bool{
	StepWaitingRoom:       true,
	StepRoleSelection:     true,
	StepInstructions:      true,
	StepChat:              true,
	StepRoundsFirstPart:   true,
	StepPartTransition:    true,
	StepRoundsSecondPart:  true,
	StepRiskSurvey:        true,
	StepDemographicSurvey: true,
	StepCompletion:        true,
}

// RequiresSync reports whether the whole group must finish the step together.
// Surveys are the only steps each villager works through at their own pace;
// the group pointer still waits for the last straggler.
func (s Step) RequiresSync() bool {
	switch s {
	case StepRiskSurvey, StepDemographicSurvey:
		return false
	default:
		return true
	}
}

// IsRounds reports whether the step hands control to the round loop.
func (s Step) IsRounds() bool {
	return s == StepRoundsFirstPart || s == StepRoundsSecondPart
}

// ParseFlows validates a configured step-name sequence against the step
// enum. Unknown names fail room creation instead of falling through to a
// silent no-op step.
func ParseFlows(names []string) ([]Step, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty step sequence")
	}
	flows := make([]Step, 0, len(names))
	for _, n := range names {
		s := Step(n)
		if !knownSteps[s] {
			return nil, fmt.Errorf("unknown step %q", n)
		}
		flows = append(flows, s)
	}
	if flows[0] != StepWaitingRoom {
		return nil, fmt.Errorf("step sequence must begin with %s", StepWaitingRoom)
	}
	return flows, nil
}
