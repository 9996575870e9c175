package agent

import (
	"fmt"
	"strings"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/oracle"
)

// DecisionRecord is the immutable verdict for one profile.
type DecisionRecord struct {
	Accept bool
	Reason string
}

// Engine applies the accept/reject policy to an assessment. All
// thresholds come from configuration.
type Engine struct {
	cfg config.DecisionConfig
}

func NewEngine(cfg config.DecisionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Decide runs the rules in strict priority order: red flags always
// reject, then the quality tiers, then the detailed-text fallback.
func (e *Engine) Decide(as oracle.Assessment, text string) DecisionRecord {
	if len(as.RedFlags) > 0 {
		cited := as.RedFlags
		if len(cited) > 2 {
			cited = cited[:2]
		}
		return DecisionRecord{
			Accept: false,
			Reason: "red flags: " + strings.Join(cited, ", "),
		}
	}
	if as.Quality >= e.cfg.QualityThresholdHigh && as.ConversationPotential >= e.cfg.ConversationThresholdHigh {
		return DecisionRecord{
			Accept: true,
			Reason: fmt.Sprintf("excellent profile (quality %.1f, potential %.1f)", as.Quality, as.ConversationPotential),
		}
	}
	if as.Quality >= e.cfg.QualityThresholdMedium && len(as.PositiveIndicators) >= e.cfg.MinPositiveIndicators {
		return DecisionRecord{
			Accept: true,
			Reason: fmt.Sprintf("good profile with %d positives", len(as.PositiveIndicators)),
		}
	}
	if len(text) > e.cfg.MinTextLengthDetailed && as.Quality >= e.cfg.MinQualityForDetailed {
		return DecisionRecord{
			Accept: true,
			Reason: fmt.Sprintf("detailed profile (%d chars, quality %.1f)", len(text), as.Quality),
		}
	}
	return DecisionRecord{
		Accept: false,
		Reason: fmt.Sprintf("below thresholds (quality %.1f, potential %.1f, positives %d)",
			as.Quality, as.ConversationPotential, len(as.PositiveIndicators)),
	}
}
