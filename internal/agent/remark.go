package agent

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/device"
	"github.com/polzovatel/swipe-agent/internal/oracle"
	"github.com/polzovatel/swipe-agent/internal/remarks"
)

// Android keycodes used by the submission flow.
const (
	keycodeBack  = 4
	keycodeEnter = 66
)

// remarkOracle is the slice of the oracle the submitter needs.
type remarkOracle interface {
	ClassifySurface(ctx context.Context, imagePath string) (oracle.Surface, error)
	FindTarget(ctx context.Context, imagePath, label string) (oracle.Target, error)
	SuggestRemark(ctx context.Context, profileText, style string) (string, error)
}

// remarkStore persists generated remarks and their outcomes. Nil-safe
// wrappers let the agent run without a database.
type remarkStore interface {
	Record(ctx context.Context, profileName, style, text string) (string, error)
	MarkSent(ctx context.Context, id string) error
	StatsByStyle(ctx context.Context) ([]remarks.StyleStat, error)
}

// Submitter drives the composer: generate an opener, type it, submit,
// verify. Submission failure is soft: the caller charges one error and
// moves on, never more.
type Submitter struct {
	dev    device.Controller
	oracle remarkOracle
	store  remarkStore
	wcfg   config.WorkflowConfig
	rcfg   config.RemarksConfig
	rng    *rand.Rand
	log    zerolog.Logger
}

func NewSubmitter(dev device.Controller, orc remarkOracle, store remarkStore, wcfg config.WorkflowConfig, rcfg config.RemarksConfig, rng *rand.Rand, logger zerolog.Logger) *Submitter {
	return &Submitter{
		dev:    dev,
		oracle: orc,
		store:  store,
		wcfg:   wcfg,
		rcfg:   rcfg,
		rng:    rng,
		log:    logger.With().Str("comp", "remark").Logger(),
	}
}

// Prepare generates the opener for a profile, picking a style weighted
// by stored success rates. Generation failure is not fatal: the
// configured default remark goes out instead.
func (sub *Submitter) Prepare(ctx context.Context, profileName, profileText string) Remark {
	style := sub.pickStyle(ctx)

	text, err := sub.oracle.SuggestRemark(ctx, profileText, style)
	if err != nil {
		sub.log.Warn().Err(err).Str("style", style).Msg("generation failed, using default remark")
		text = sub.rcfg.DefaultRemark
	}

	rem := Remark{Style: style, Text: text}
	if sub.store != nil {
		id, err := sub.store.Record(ctx, profileName, style, text)
		if err != nil {
			sub.log.Warn().Err(err).Msg("remark not persisted")
		} else {
			rem.ID = id
		}
	}
	return rem
}

func (sub *Submitter) pickStyle(ctx context.Context) string {
	styles := sub.rcfg.Styles
	if len(styles) == 0 {
		return "balanced"
	}
	var stats []remarks.StyleStat
	if sub.store != nil {
		var err error
		stats, err = sub.store.StatsByStyle(ctx)
		if err != nil {
			sub.log.Warn().Err(err).Msg("style stats unavailable")
		}
	}
	return remarks.PickStyle(styles, stats, sub.rng)
}

// Submit types and sends the pending remark. It retries the whole
// interaction up to the configured limit and reports whether delivery
// was verified. A false return with nil error is the soft-failure
// path.
func (sub *Submitter) Submit(ctx context.Context, s *Session, rem Remark) (bool, error) {
	if rem.Text == "" {
		return false, fmt.Errorf("no pending remark")
	}

	for attempt := 1; attempt <= sub.wcfg.MaxRemarkRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		sub.log.Info().
			Int("attempt", attempt).
			Int("of", sub.wcfg.MaxRemarkRetries).
			Str("style", rem.Style).
			Msg("submitting remark")

		sent, err := sub.attempt(ctx, s, rem)
		if err != nil {
			sub.log.Warn().Err(err).Int("attempt", attempt).Msg("submission attempt failed")
			continue
		}
		if sent {
			if sub.store != nil && rem.ID != "" {
				if err := sub.store.MarkSent(ctx, rem.ID); err != nil {
					sub.log.Warn().Err(err).Msg("outcome not recorded")
				}
			}
			return true, nil
		}
	}
	return false, nil
}

func (sub *Submitter) attempt(ctx context.Context, s *Session, rem Remark) (bool, error) {
	shot, err := sub.dev.Screenshot(ctx, "remark_before.png")
	if err != nil {
		return false, &TransientUIError{Op: "remark screenshot", Err: err}
	}

	// Focus the text field. A miss here is recoverable: typing into
	// an already focused composer still works.
	if field, err := sub.oracle.FindTarget(ctx, shot, "text_field"); err == nil {
		if tgt, err := ResolveTarget(field, s.Width, s.Height, sub.wcfg.MinTargetConfidence); err == nil {
			if err := sub.dev.TapWithConfidence(ctx, tgt.X, tgt.Y, tgt.Confidence, string(tgt.Size)); err != nil {
				return false, &TransientUIError{Op: "tap text field", Err: err}
			}
			sub.settle(ctx)
		}
	}

	if err := sub.dev.InputText(ctx, rem.Text); err != nil {
		return false, &TransientUIError{Op: "type remark", Err: err}
	}
	sub.settle(ctx)

	// Quick path: enter often submits directly.
	if err := sub.dev.KeyEvent(ctx, keycodeEnter); err != nil {
		return false, &TransientUIError{Op: "enter key", Err: err}
	}
	sub.settle(ctx)

	if gone, err := sub.composerGone(ctx, "remark_quick.png"); err == nil && gone {
		return true, nil
	}

	// Keyboard may cover the submit control.
	if err := sub.dev.KeyEvent(ctx, keycodeBack); err != nil {
		return false, &TransientUIError{Op: "dismiss keyboard", Err: err}
	}
	sub.settle(ctx)

	x, y := pixel(sub.wcfg.SubmitFallback.X, s.Width), pixel(sub.wcfg.SubmitFallback.Y, s.Height)
	confidence := 0.5
	size := SizeSmall
	shot, err = sub.dev.Screenshot(ctx, "remark_submit.png")
	if err == nil {
		if btn, err := sub.oracle.FindTarget(ctx, shot, "send_button"); err == nil {
			if tgt, err := ResolveTarget(btn, s.Width, s.Height, sub.wcfg.MinTargetConfidence); err == nil {
				x, y, confidence, size = tgt.X, tgt.Y, tgt.Confidence, tgt.Size
			}
		}
	}
	if err := sub.dev.TapWithConfidence(ctx, x, y, confidence, string(size)); err != nil {
		return false, &TransientUIError{Op: "tap submit", Err: err}
	}
	sub.settle(ctx)

	gone, err := sub.composerGone(ctx, "remark_after.png")
	if err != nil {
		return false, err
	}
	if !gone {
		return false, nil
	}
	return true, nil
}

// composerGone re-checks the surface: delivery is only believed once
// the composer is no longer on screen.
func (sub *Submitter) composerGone(ctx context.Context, shotName string) (bool, error) {
	shot, err := sub.dev.Screenshot(ctx, shotName)
	if err != nil {
		return false, &TransientUIError{Op: "verify screenshot", Err: err}
	}
	surface, err := sub.oracle.ClassifySurface(ctx, shot)
	if err != nil {
		return false, &OracleCallFailure{Op: "verify surface", Err: err}
	}
	return surface.Kind != oracle.SurfaceComposer, nil
}

func (sub *Submitter) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(sub.wcfg.SettleWait()):
	}
}
