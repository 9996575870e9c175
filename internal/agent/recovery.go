package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/device"
	"github.com/polzovatel/swipe-agent/internal/profile"
)

// textExtractor is the slice of the oracle recovery needs.
type textExtractor interface {
	ExtractText(ctx context.Context, imagePaths []string) (string, error)
}

// Recoverer breaks a stuck screen by walking an ordered ladder of
// corrective gestures. After each gesture it re-extracts the screen
// text and stops at the first verified change; an unverified gesture
// never counts as progress.
type Recoverer struct {
	dev    device.Controller
	oracle textExtractor
	cfg    config.WorkflowConfig
	log    zerolog.Logger
}

func NewRecoverer(dev device.Controller, extractor textExtractor, cfg config.WorkflowConfig, logger zerolog.Logger) *Recoverer {
	return &Recoverer{
		dev:    dev,
		oracle: extractor,
		cfg:    cfg,
		log:    logger.With().Str("comp", "recovery").Logger(),
	}
}

// Recover runs the gesture ladder against the stuck snapshot. It
// returns the fresh snapshot, the confirmation capture taken after the
// ladder, and whether a change was verified.
func (r *Recoverer) Recover(ctx context.Context, stuck profile.Snapshot) (profile.Snapshot, string, bool, error) {
	width, height := r.dev.ScreenSize()

	var (
		fresh     profile.Snapshot
		recovered bool
	)
	for i, g := range r.cfg.RecoveryGestures {
		if err := ctx.Err(); err != nil {
			return profile.Snapshot{}, "", false, err
		}

		r.log.Info().
			Int("gesture", i+1).
			Int("of", len(r.cfg.RecoveryGestures)).
			Msg("recovery gesture")

		if err := r.dev.Swipe(ctx,
			pixel(g.X1, width), pixel(g.Y1, height),
			pixel(g.X2, width), pixel(g.Y2, height),
			g.DurationMs,
		); err != nil {
			return profile.Snapshot{}, "", false, &TransientUIError{Op: "recovery swipe", Err: err}
		}

		select {
		case <-ctx.Done():
			return profile.Snapshot{}, "", false, ctx.Err()
		case <-time.After(r.cfg.RecoveryWait()):
		}

		shot, err := r.dev.Screenshot(ctx, fmt.Sprintf("recovery_%d.png", i+1))
		if err != nil {
			return profile.Snapshot{}, "", false, &TransientUIError{Op: "recovery screenshot", Err: err}
		}
		text, err := r.oracle.ExtractText(ctx, []string{shot})
		if err != nil {
			r.log.Warn().Err(err).Msg("recovery extraction failed, next gesture")
			continue
		}

		cur := profile.Parse(text)
		if ch := profile.DetectChange(stuck, cur); ch.Changed {
			r.log.Info().
				Int("gesture", i+1).
				Float64("confidence", ch.Confidence).
				Strs("reasons", ch.Reasons).
				Msg("recovery verified")
			fresh, recovered = cur, true
			break
		}
	}

	if !recovered {
		r.log.Warn().Msg("recovery ladder exhausted without change")
	}

	// The ladder always ends with one confirmation capture; the caller
	// carries it forward as the session screenshot.
	shot, err := r.dev.Screenshot(ctx, "recovery_result.png")
	if err != nil {
		return fresh, "", recovered, &TransientUIError{Op: "recovery confirmation", Err: err}
	}
	return fresh, shot, recovered, nil
}

func pixel(pct float64, dim int) int {
	return clampPixel(int(math.Round(pct*float64(dim))), dim)
}
