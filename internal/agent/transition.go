package agent

import "github.com/polzovatel/swipe-agent/internal/config"

// rule is one row of the routing table. Zero fields are wildcards:
// an empty outcome matches any outcome, a nil guard always passes.
// okMatters distinguishes "match any ok" from "match ok == false".
type rule struct {
	from      Step
	outcome   string
	okMatters bool
	ok        bool
	guard     func(*Session, config.WorkflowConfig) bool
	next      Step
}

func stuckAtCeiling(s *Session, w config.WorkflowConfig) bool {
	return s.Stuck >= w.StuckCeiling
}

// transitions is the ordered routing table: first matching row wins.
// Terminal guards (profile quota, error ceiling) are checked before
// the table in NextStep.
var transitions = []rule{
	{from: StepInit, okMatters: true, ok: false, next: StepFinalize},
	{from: StepInit, next: StepCapture},

	{from: StepCapture, okMatters: true, ok: false, next: StepAdvance},
	{from: StepCapture, next: StepGather},

	{from: StepGather, okMatters: true, ok: false, next: StepAdvance},
	{from: StepGather, next: StepVerifyChange},

	{from: StepVerifyChange, outcome: OutcomeChanged, next: StepAnalyze},
	{from: StepVerifyChange, outcome: OutcomeStuck, guard: stuckAtCeiling, next: StepRecover},
	{from: StepVerifyChange, next: StepAdvance},

	{from: StepAnalyze, okMatters: true, ok: false, next: StepAdvance},
	{from: StepAnalyze, next: StepDecide},

	{from: StepDecide, outcome: OutcomeAccept, next: StepLocateTarget},
	{from: StepDecide, next: StepReject},

	{from: StepLocateTarget, outcome: OutcomeUnknown, next: StepPolicy},
	{from: StepLocateTarget, okMatters: true, ok: false, next: StepReject},
	{from: StepLocateTarget, next: StepAccept},

	{from: StepAccept, outcome: OutcomeComposer, next: StepRemark},
	{from: StepAccept, next: StepAdvance},

	{from: StepReject, next: StepCapture},

	{from: StepRemark, next: StepAdvance},

	{from: StepRecover, okMatters: true, ok: false, next: StepAdvance},
	{from: StepRecover, next: StepCapture},

	{from: StepAdvance, next: StepCapture},

	{from: StepPolicy, next: StepCapture},
}

// NextStep routes from a finished step to the next one. It is pure:
// given the same session counters and result it always picks the same
// row, so the whole table is testable without a device or model.
func NextStep(from Step, res StepResult, s *Session, w config.WorkflowConfig) Step {
	if s.ProfileIndex >= s.MaxProfiles {
		return StepFinalize
	}
	if s.Errors >= w.MaxErrors {
		return StepFinalize
	}
	for _, r := range transitions {
		if r.from != from {
			continue
		}
		if r.outcome != "" && r.outcome != res.Outcome {
			continue
		}
		if r.okMatters && r.ok != res.OK {
			continue
		}
		if r.guard != nil && !r.guard(s, w) {
			continue
		}
		return r.next
	}
	return StepFinalize
}
