package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/oracle"
)

// Action is what a policy wants done next. The closed set replaces
// string-keyed dispatch: the executor switches on concrete types and
// an unknown action cannot be expressed.
type Action interface {
	isAction()
}

type TapAction struct {
	Target Target
}

type SwipeAction struct {
	Gesture config.Gesture
}

type CaptureAction struct{}

type AdvanceAction struct{}

type WaitAction struct {
	For time.Duration
}

func (TapAction) isAction()     {}
func (SwipeAction) isAction()   {}
func (CaptureAction) isAction() {}
func (AdvanceAction) isAction() {}
func (WaitAction) isAction()    {}

// Policy proposes the next action when the workflow cannot route a
// screen on its own.
type Policy interface {
	Plan(ctx context.Context, s *Session) (Action, error)
}

// tablePolicy is the deterministic fallback: with no screenshot there
// is nothing to reason about, so capture; otherwise move on.
type tablePolicy struct{}

// NewTablePolicy returns the deterministic policy.
func NewTablePolicy() Policy { return tablePolicy{} }

func (tablePolicy) Plan(_ context.Context, s *Session) (Action, error) {
	if s.Screenshot == "" {
		return CaptureAction{}, nil
	}
	return AdvanceAction{}, nil
}

// adviser is the slice of the oracle the policy needs.
type adviser interface {
	AdviseNext(ctx context.Context, imagePath, situation string) (oracle.Advice, error)
}

// OraclePolicy asks the vision model for the next step and degrades to
// the table policy when the model cannot help. The degraded path also
// reports one error so the ceiling still catches a dead model.
type OraclePolicy struct {
	oracle        adviser
	minConfidence float64
	log           zerolog.Logger
}

func NewOraclePolicy(adv adviser, minConfidence float64, logger zerolog.Logger) *OraclePolicy {
	return &OraclePolicy{
		oracle:        adv,
		minConfidence: minConfidence,
		log:           logger.With().Str("comp", "policy").Logger(),
	}
}

func (p *OraclePolicy) Plan(ctx context.Context, s *Session) (Action, error) {
	if s.Screenshot == "" {
		return CaptureAction{}, nil
	}

	situation := fmt.Sprintf("profile %d of %d, screen not recognized, %d errors so far",
		s.ProfileIndex+1, s.MaxProfiles, s.Errors)
	adv, err := p.oracle.AdviseNext(ctx, s.Screenshot, situation)
	if err != nil {
		p.log.Warn().Err(err).Msg("advice unavailable, advancing")
		return AdvanceAction{}, &OracleCallFailure{Op: "advise_next", Err: err}
	}

	switch adv.Action {
	case "tap":
		tgt, err := ResolveTarget(adv.Target, s.Width, s.Height, p.minConfidence)
		if err != nil {
			p.log.Warn().Err(err).Msg("advised tap unusable, advancing")
			return AdvanceAction{}, &OracleCallFailure{Op: "advise_next", Err: err}
		}
		return TapAction{Target: tgt}, nil
	case "capture":
		return CaptureAction{}, nil
	case "advance", "swipe":
		return AdvanceAction{}, nil
	case "wait":
		return WaitAction{For: 2 * time.Second}, nil
	default:
		p.log.Warn().Str("action", adv.Action).Msg("unknown advice, advancing")
		return AdvanceAction{}, &OracleCallFailure{
			Op:  "advise_next",
			Err: fmt.Errorf("unknown action %q", adv.Action),
		}
	}
}
