package agent

import (
	"time"

	"github.com/polzovatel/swipe-agent/internal/oracle"
	"github.com/polzovatel/swipe-agent/internal/profile"
)

// Step identifies one state of the workflow machine.
type Step int

const (
	StepInit Step = iota
	StepCapture
	StepGather
	StepVerifyChange
	StepAnalyze
	StepDecide
	StepLocateTarget
	StepAccept
	StepReject
	StepRemark
	StepRecover
	StepAdvance
	StepPolicy
	StepFinalize
)

var stepNames = map[Step]string{
	StepInit:         "init",
	StepCapture:      "capture",
	StepGather:       "gather_content",
	StepVerifyChange: "verify_change",
	StepAnalyze:      "analyze",
	StepDecide:       "decide",
	StepLocateTarget: "locate_target",
	StepAccept:       "execute_accept",
	StepReject:       "execute_reject",
	StepRemark:       "handle_remark",
	StepRecover:      "recover",
	StepAdvance:      "advance",
	StepPolicy:       "policy",
	StepFinalize:     "finalize",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// Session is the single mutable state of one run. Steps never touch it
// directly: they return a Delta and the orchestrator merges it, so a
// failed step cannot leave the session half-updated.
type Session struct {
	Width  int
	Height int

	MaxProfiles  int
	ProfileIndex int

	Processed   int
	Accepted    int
	RemarksSent int
	Errors      int
	Stuck       int

	Previous profile.Snapshot
	Current  profile.Snapshot

	Assessment oracle.Assessment
	Decision   DecisionRecord
	Target     Target

	PendingRemark Remark

	// Latest full-screen screenshot path.
	Screenshot string
	// Screenshot paths accumulated while gathering the current profile.
	Gathered []string

	CompletionReason string
	StartedAt        time.Time
}

// Remark is the opener queued for the composer, with its store id so
// the outcome can be recorded after verification.
type Remark struct {
	ID    string
	Style string
	Text  string
}

// Delta is the set of session mutations one step produced. Zero value
// means "no change". Counter fields are increments, not totals.
type Delta struct {
	AdvanceProfile bool
	Accepted       bool
	RemarkSent     bool
	Errors         int
	Stuck          int
	ResetStuck     bool

	Snapshot   *profile.Snapshot
	Assessment *oracle.Assessment
	Decision   *DecisionRecord
	Target     *Target
	Remark     *Remark

	Screenshot  string
	Gathered    []string
	ClearGather bool

	Reason string
}

func (d Delta) apply(s *Session) {
	if d.Snapshot != nil {
		s.Previous = s.Current
		s.Current = *d.Snapshot
	}
	if d.Assessment != nil {
		s.Assessment = *d.Assessment
	}
	if d.Decision != nil {
		s.Decision = *d.Decision
	}
	if d.Target != nil {
		s.Target = *d.Target
	}
	if d.Remark != nil {
		s.PendingRemark = *d.Remark
	}
	if d.Screenshot != "" {
		s.Screenshot = d.Screenshot
	}
	if d.ClearGather {
		s.Gathered = nil
	}
	s.Gathered = append(s.Gathered, d.Gathered...)

	if d.AdvanceProfile {
		s.ProfileIndex++
		s.Processed++
	}
	if d.Accepted {
		s.Accepted++
	}
	if d.RemarkSent {
		s.RemarksSent++
	}
	s.Errors += d.Errors
	if d.ResetStuck {
		s.Stuck = 0
	} else {
		s.Stuck += d.Stuck
	}
	if d.Reason != "" {
		s.CompletionReason = d.Reason
	}
}

// StepResult is what every step hands back to the router. Outcome
// disambiguates successful results that route differently (accept vs
// reject, composer open vs not).
type StepResult struct {
	OK      bool
	Outcome string
	Delta   Delta
	Err     error
}

// Step outcomes used by the transition table.
const (
	OutcomeChanged  = "changed"
	OutcomeStuck    = "stuck"
	OutcomeAccept   = "accept"
	OutcomeReject   = "reject"
	OutcomeComposer = "composer"
	OutcomeUnknown  = "unknown_surface"
)
