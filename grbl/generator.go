package grbl

// Phase is the stage of the control loop. It gates which commands the
// generator may produce.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseSense
	PhaseThink
	PhaseAct
	PhaseIterate
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseSense:
		return "sense"
	case PhaseThink:
		return "think"
	case PhaseAct:
		return "act"
	case PhaseIterate:
		return "iterate"
	default:
		return "unknown"
	}
}

// Step is the next thing the driver should send.
type Step int

const (
	StepEmpty Step = iota
	StepPing
	StepSoftReset
	StepStatus
	StepUnlock
	StepGetSettings
	// StepSendSetting sends the setting staged by the settings sync.
	StepSendSetting
	// StepHoming sends either a back-off move or the home command.
	StepHoming
	StepSendMove
)

func (s Step) String() string {
	switch s {
	case StepEmpty:
		return "empty"
	case StepPing:
		return "ping"
	case StepSoftReset:
		return "soft_reset"
	case StepStatus:
		return "status"
	case StepUnlock:
		return "unlock"
	case StepGetSettings:
		return "get_settings"
	case StepSendSetting:
		return "send_setting"
	case StepHoming:
		return "homing"
	case StepSendMove:
		return "send_move"
	default:
		return "unknown"
	}
}

type genRule struct {
	need Intent
	step Step
	// when, if set, must also hold for the rule to fire.
	when func(last ResponseKind) bool
}

func afterAlarm(last ResponseKind) bool { return last == RespAlarm }

// phaseRules lists, per phase, the rules in priority order.
var phaseRules = [...][]genRule{
	PhaseSetup: {
		{need: IntentReset, step: StepSoftReset},
		{need: IntentStatus, step: StepStatus},
		{need: IntentUnlock, step: StepUnlock},
		{need: IntentGetSettings, step: StepGetSettings},
		{need: IntentSendSetting, step: StepSendSetting},
		{need: IntentHoming, step: StepHoming},
	},
	PhaseSense: {
		{need: IntentReset, step: StepSoftReset, when: afterAlarm},
		{need: IntentStatus, step: StepStatus},
	},
	PhaseThink: nil,
	PhaseAct: {
		{need: IntentReset, step: StepSoftReset},
		{need: IntentStatus, step: StepStatus},
		{need: IntentUnlock, step: StepUnlock},
		{need: IntentSendMove, step: StepSendMove},
	},
	PhaseIterate: nil,
}

// Generate decides the next step from the phase, the pending intents and
// the kind of the last response. A pending ping wins in every phase and is
// consumed here; every other intent is cleared by the response that
// satisfies it.
func Generate(phase Phase, pending *IntentSet, last ResponseKind) Step {
	if pending.Has(IntentPing) {
		pending.Remove(IntentPing)
		return StepPing
	}

	if phase < 0 || int(phase) >= len(phaseRules) {
		return StepEmpty
	}

	for _, rule := range phaseRules[phase] {
		if !pending.Has(rule.need) {
			continue
		}
		if rule.when != nil && !rule.when(last) {
			continue
		}

		return rule.step
	}

	return StepEmpty
}
