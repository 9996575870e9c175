package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/device"
	"github.com/polzovatel/swipe-agent/internal/oracle"
	"github.com/polzovatel/swipe-agent/internal/profile"
)

// stepOracle is everything the orchestrator itself asks the model.
type stepOracle interface {
	ClassifySurface(ctx context.Context, imagePath string) (oracle.Surface, error)
	FindTarget(ctx context.Context, imagePath, label string) (oracle.Target, error)
	ExtractText(ctx context.Context, imagePaths []string) (string, error)
	AssessProfile(ctx context.Context, text string) (oracle.Assessment, error)
	AdviseScroll(ctx context.Context, imagePath string) (oracle.ScrollHint, error)
}

// Summary is the session outcome reported at the end of a run.
type Summary struct {
	Processed        int
	Accepted         int
	RemarksSent      int
	Errors           int
	Duration         time.Duration
	CompletionReason string
}

// Orchestrator walks the workflow machine over a stack of profiles.
// Each step returns a StepResult whose Delta is merged into the
// session before routing, so session mutation happens in exactly one
// place.
type Orchestrator struct {
	cfg    config.Config
	dev    device.Controller
	oracle stepOracle
	engine *Engine
	policy Policy
	sub    *Submitter
	recov  *Recoverer
	store  remarkStore
	logger zerolog.Logger
}

func NewOrchestrator(cfg config.Config, dev device.Controller, orc stepOracle, policy Policy, sub *Submitter, recov *Recoverer, store remarkStore, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		dev:    dev,
		oracle: orc,
		engine: NewEngine(cfg.Decision),
		policy: policy,
		sub:    sub,
		recov:  recov,
		store:  store,
		logger: logger.With().Str("comp", "orchestrator").Logger(),
	}
}

// Run processes up to MaxProfiles profiles and returns the session
// summary. Cancellation is observed at the top of every step.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	width, height := o.dev.ScreenSize()
	s := &Session{
		Width:       width,
		Height:      height,
		MaxProfiles: o.cfg.Workflow.MaxProfiles,
		StartedAt:   time.Now(),
	}

	step := StepInit
	for step != StepFinalize {
		if err := ctx.Err(); err != nil {
			s.CompletionReason = "cancelled"
			break
		}

		res := o.execute(ctx, step, s)
		res.Delta.apply(s)

		evt := o.logger.Info()
		if res.Err != nil {
			evt = o.logger.Warn().Err(res.Err).Str("class", Categorize(res.Err))
		}
		evt.
			Str("step", step.String()).
			Bool("ok", res.OK).
			Str("outcome", res.Outcome).
			Int("profile", s.ProfileIndex).
			Int("errors", s.Errors).
			Int("stuck", s.Stuck).
			Msg("step done")

		if res.Err != nil && IsFatal(res.Err) {
			s.CompletionReason = "fatal: " + res.Err.Error()
			break
		}

		step = NextStep(step, res, s, o.cfg.Workflow)
	}

	return o.finalize(ctx, s), nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step, s *Session) StepResult {
	switch step {
	case StepInit:
		return o.stepInit(ctx, s)
	case StepCapture:
		return o.stepCapture(ctx, s)
	case StepGather:
		return o.stepGather(ctx, s)
	case StepVerifyChange:
		return o.stepVerifyChange(s)
	case StepAnalyze:
		return o.stepAnalyze(ctx, s)
	case StepDecide:
		return o.stepDecide(s)
	case StepLocateTarget:
		return o.stepLocateTarget(ctx, s)
	case StepAccept:
		return o.stepAccept(ctx, s)
	case StepReject:
		return o.stepReject(ctx, s)
	case StepRemark:
		return o.stepRemark(ctx, s)
	case StepRecover:
		return o.stepRecover(ctx, s)
	case StepAdvance:
		return o.stepAdvance(ctx, s)
	case StepPolicy:
		return o.stepPolicy(ctx, s)
	default:
		return StepResult{OK: false, Err: fmt.Errorf("no handler for step %s", step)}
	}
}

func (o *Orchestrator) stepInit(ctx context.Context, s *Session) StepResult {
	if err := o.dev.LaunchApp(ctx, o.cfg.Device.AppID); err != nil {
		return StepResult{OK: false, Err: &FatalInitError{Err: err}}
	}
	o.pause(ctx, o.cfg.Device.LaunchWaitDuration())

	if o.store != nil {
		if stats, err := o.store.StatsByStyle(ctx); err == nil {
			for _, st := range stats {
				o.logger.Debug().
					Str("style", st.Style).
					Int("total", st.Total).
					Float64("success_rate", st.SuccessRate).
					Msg("style history")
			}
		}
	}
	return StepResult{OK: true}
}

func (o *Orchestrator) stepCapture(ctx context.Context, s *Session) StepResult {
	shot, err := o.dev.Screenshot(ctx, fmt.Sprintf("profile_%d.png", s.ProfileIndex))
	if err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &TransientUIError{Op: "capture", Err: err},
		}
	}
	return StepResult{
		OK:    true,
		Delta: Delta{Screenshot: shot, ClearGather: true, Gathered: []string{shot}},
	}
}

// stepGather scrolls through the profile collecting text, deduplicating
// lines, then scrolls back so the action buttons are on screen again.
// Scroll continuation and the gesture anchor come from the oracle's
// scroll advice.
func (o *Orchestrator) stepGather(ctx context.Context, s *Session) StepResult {
	var (
		delta   Delta
		lines   []string
		seen    = map[string]struct{}{}
		scrolls int
	)
	width, height := s.Width, s.Height
	anchor := config.Point{X: 0.5, Y: 0.5}

	shot := s.Screenshot
	for i := 0; i <= o.cfg.Workflow.MaxGatherScrolls; i++ {
		if i > 0 {
			if err := o.swipePct(ctx, scrollGesture(anchor, false), width, height); err != nil {
				break
			}
			scrolls++
			o.pause(ctx, o.cfg.Workflow.SettleWait())
			var err error
			shot, err = o.dev.Screenshot(ctx, fmt.Sprintf("gather_%d_%d.png", s.ProfileIndex, i))
			if err != nil {
				break
			}
			delta.Gathered = append(delta.Gathered, shot)
		}
		if shot == "" {
			break
		}

		text, err := o.oracle.ExtractText(ctx, []string{shot})
		if err != nil {
			if i == 0 {
				delta.Errors = 1
				return StepResult{
					OK:    false,
					Delta: delta,
					Err:   &OracleCallFailure{Op: "extract_text", Err: err},
				}
			}
			break
		}

		added := 0
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
			added++
		}
		// Nothing new below the fold means the profile is exhausted.
		if i > 0 && added == 0 {
			break
		}
		if i == o.cfg.Workflow.MaxGatherScrolls {
			break
		}

		hint, err := o.oracle.AdviseScroll(ctx, shot)
		if err != nil {
			// Without advice, keep the previous anchor and let the
			// dedupe stop condition bound the loop.
			o.logger.Warn().Err(err).Msg("scroll advice unavailable")
			continue
		}
		if !hint.More {
			break
		}
		anchor = config.Point{X: hint.XPct, Y: hint.YPct}
	}

	for j := 0; j < scrolls; j++ {
		if err := o.swipePct(ctx, scrollGesture(anchor, true), width, height); err != nil {
			break
		}
		o.pause(ctx, 500*time.Millisecond)
	}

	snap := profile.Parse(strings.Join(lines, "\n"))
	if snap.Empty() {
		delta.Errors = 1
		return StepResult{
			OK:    false,
			Delta: delta,
			Err:   &VerificationMismatch{Expected: "profile text", Got: "empty extraction"},
		}
	}
	delta.Snapshot = &snap
	return StepResult{OK: true, Delta: delta}
}

func (o *Orchestrator) stepVerifyChange(s *Session) StepResult {
	ch := profile.DetectChange(s.Previous, s.Current)
	if ch.Changed {
		o.logger.Debug().
			Float64("confidence", ch.Confidence).
			Strs("reasons", ch.Reasons).
			Msg("profile change verified")
		return StepResult{OK: true, Outcome: OutcomeChanged, Delta: Delta{ResetStuck: true}}
	}
	return StepResult{OK: false, Outcome: OutcomeStuck, Delta: Delta{Stuck: 1}}
}

func (o *Orchestrator) stepAnalyze(ctx context.Context, s *Session) StepResult {
	as, err := o.oracle.AssessProfile(ctx, s.Current.Text)
	if err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &OracleCallFailure{Op: "assess_profile", Err: err},
		}
	}
	return StepResult{OK: true, Delta: Delta{Assessment: &as}}
}

func (o *Orchestrator) stepDecide(s *Session) StepResult {
	rec := o.engine.Decide(s.Assessment, s.Current.Text)
	outcome := OutcomeReject
	if rec.Accept {
		outcome = OutcomeAccept
	}
	o.logger.Info().Bool("accept", rec.Accept).Str("reason", rec.Reason).Msg("decision")
	return StepResult{OK: true, Outcome: outcome, Delta: Delta{Decision: &rec}}
}

func (o *Orchestrator) stepLocateTarget(ctx context.Context, s *Session) StepResult {
	if s.Screenshot == "" {
		return StepResult{OK: false, Outcome: OutcomeUnknown}
	}

	surface, err := o.oracle.ClassifySurface(ctx, s.Screenshot)
	if err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &OracleCallFailure{Op: "classify_surface", Err: err},
		}
	}
	if surface.Kind != oracle.SurfaceProfile {
		o.logger.Warn().Str("surface", surface.Kind).Msg("not on a profile")
		return StepResult{OK: false, Outcome: OutcomeUnknown}
	}

	raw := findLabeled(surface.Targets, "like_button")
	if !raw.Found {
		raw, err = o.oracle.FindTarget(ctx, s.Screenshot, "like_button")
		if err != nil {
			return StepResult{
				OK:    false,
				Delta: Delta{Errors: 1},
				Err:   &OracleCallFailure{Op: "find_target", Err: err},
			}
		}
	}

	tgt, err := ResolveTarget(raw, s.Width, s.Height, o.cfg.Workflow.MinTargetConfidence)
	if err != nil {
		return StepResult{OK: false, Err: err}
	}
	return StepResult{OK: true, Delta: Delta{Target: &tgt}}
}

func (o *Orchestrator) stepAccept(ctx context.Context, s *Session) StepResult {
	if err := o.dev.TapWithConfidence(ctx, s.Target.X, s.Target.Y, s.Target.Confidence, string(s.Target.Size)); err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &TransientUIError{Op: "accept tap", Err: err},
		}
	}
	o.pause(ctx, o.cfg.Workflow.ActionWait())

	shot, err := o.dev.Screenshot(ctx, fmt.Sprintf("after_accept_%d.png", s.ProfileIndex))
	if err != nil {
		return StepResult{
			OK:    true,
			Delta: Delta{Accepted: true, Errors: 1},
			Err:   &TransientUIError{Op: "post-accept capture", Err: err},
		}
	}
	delta := Delta{Accepted: true, Screenshot: shot}

	surface, err := o.oracle.ClassifySurface(ctx, shot)
	if err != nil {
		return StepResult{OK: true, Delta: delta, Err: &OracleCallFailure{Op: "post-accept surface", Err: err}}
	}
	switch surface.Kind {
	case oracle.SurfaceComposer:
		return StepResult{OK: true, Outcome: OutcomeComposer, Delta: delta}
	case oracle.SurfaceMatch:
		// Dismiss and move on; the match sits in the inbox.
		if err := o.dev.KeyEvent(ctx, keycodeBack); err == nil {
			o.pause(ctx, o.cfg.Workflow.SettleWait())
		}
	}
	return StepResult{OK: true, Delta: delta}
}

func (o *Orchestrator) stepReject(ctx context.Context, s *Session) StepResult {
	x := pixel(o.cfg.Workflow.RejectTap.X, s.Width)
	y := pixel(o.cfg.Workflow.RejectTap.Y, s.Height)
	if err := o.dev.Tap(ctx, x, y); err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &TransientUIError{Op: "reject tap", Err: err},
		}
	}
	o.pause(ctx, o.cfg.Workflow.ActionWait())
	return StepResult{OK: true, Delta: Delta{AdvanceProfile: true}}
}

func (o *Orchestrator) stepRemark(ctx context.Context, s *Session) StepResult {
	rem := o.sub.Prepare(ctx, s.Current.Name, s.Current.Text)
	sent, err := o.sub.Submit(ctx, s, rem)
	if err != nil {
		return StepResult{OK: false, Delta: Delta{Errors: 1, Remark: &rem}, Err: err}
	}
	if !sent {
		// Soft failure: exactly one error, then move on.
		return StepResult{OK: false, Delta: Delta{Errors: 1, Remark: &rem}}
	}
	return StepResult{OK: true, Delta: Delta{RemarkSent: true, Remark: &rem}}
}

func (o *Orchestrator) stepRecover(ctx context.Context, s *Session) StepResult {
	snap, shot, recovered, err := o.recov.Recover(ctx, s.Current)
	delta := Delta{Screenshot: shot}
	if err != nil {
		delta.Errors = 1
		return StepResult{OK: false, Delta: delta, Err: err}
	}
	if !recovered {
		delta.Errors = 1
		return StepResult{OK: false, Delta: delta}
	}
	delta.Snapshot = &snap
	delta.ResetStuck = true
	return StepResult{OK: true, Delta: delta}
}

func (o *Orchestrator) stepAdvance(ctx context.Context, s *Session) StepResult {
	if err := o.swipePct(ctx, o.cfg.Workflow.AdvanceGesture, s.Width, s.Height); err != nil {
		return StepResult{
			OK:    false,
			Delta: Delta{Errors: 1},
			Err:   &TransientUIError{Op: "advance swipe", Err: err},
		}
	}
	o.pause(ctx, o.cfg.Workflow.ActionWait())
	return StepResult{OK: true, Delta: Delta{AdvanceProfile: true}}
}

// stepPolicy runs the pluggable policy for screens the table cannot
// route. A policy error still yields an executable fallback action and
// charges one error.
func (o *Orchestrator) stepPolicy(ctx context.Context, s *Session) StepResult {
	act, perr := o.policy.Plan(ctx, s)
	delta := Delta{}
	if perr != nil {
		delta.Errors = 1
	}

	switch a := act.(type) {
	case TapAction:
		if err := o.dev.TapWithConfidence(ctx, a.Target.X, a.Target.Y, a.Target.Confidence, string(a.Target.Size)); err != nil {
			delta.Errors++
			return StepResult{OK: false, Delta: delta, Err: &TransientUIError{Op: "policy tap", Err: err}}
		}
		o.pause(ctx, o.cfg.Workflow.SettleWait())
	case SwipeAction:
		if err := o.swipePct(ctx, a.Gesture, s.Width, s.Height); err != nil {
			delta.Errors++
			return StepResult{OK: false, Delta: delta, Err: &TransientUIError{Op: "policy swipe", Err: err}}
		}
		o.pause(ctx, o.cfg.Workflow.SettleWait())
	case CaptureAction:
		shot, err := o.dev.Screenshot(ctx, fmt.Sprintf("policy_%d.png", s.ProfileIndex))
		if err != nil {
			delta.Errors++
			return StepResult{OK: false, Delta: delta, Err: &TransientUIError{Op: "policy capture", Err: err}}
		}
		delta.Screenshot = shot
	case AdvanceAction:
		if err := o.swipePct(ctx, o.cfg.Workflow.AdvanceGesture, s.Width, s.Height); err != nil {
			delta.Errors++
			return StepResult{OK: false, Delta: delta, Err: &TransientUIError{Op: "policy advance", Err: err}}
		}
		delta.AdvanceProfile = true
		o.pause(ctx, o.cfg.Workflow.ActionWait())
	case WaitAction:
		o.pause(ctx, a.For)
	}

	return StepResult{OK: perr == nil, Delta: delta, Err: perr}
}

func (o *Orchestrator) finalize(ctx context.Context, s *Session) Summary {
	if s.CompletionReason == "" {
		switch {
		case s.Errors >= o.cfg.Workflow.MaxErrors:
			s.CompletionReason = "error ceiling reached"
		case s.ProfileIndex >= s.MaxProfiles:
			s.CompletionReason = "profile quota reached"
		default:
			s.CompletionReason = "stopped"
		}
	}

	sum := Summary{
		Processed:        s.Processed,
		Accepted:         s.Accepted,
		RemarksSent:      s.RemarksSent,
		Errors:           s.Errors,
		Duration:         time.Since(s.StartedAt),
		CompletionReason: s.CompletionReason,
	}

	o.logger.Info().
		Int("processed", sum.Processed).
		Int("accepted", sum.Accepted).
		Int("remarks_sent", sum.RemarksSent).
		Int("errors", sum.Errors).
		Dur("duration", sum.Duration).
		Str("reason", sum.CompletionReason).
		Msg("session finished")

	if o.store != nil {
		if stats, err := o.store.StatsByStyle(ctx); err == nil {
			for _, st := range stats {
				o.logger.Info().
					Str("style", st.Style).
					Int("total", st.Total).
					Int("sent", st.Sent).
					Float64("success_rate", st.SuccessRate).
					Msg("style outcome")
			}
		}
	}
	return sum
}

func (o *Orchestrator) swipePct(ctx context.Context, g config.Gesture, width, height int) error {
	return o.dev.Swipe(ctx,
		pixel(g.X1, width), pixel(g.Y1, height),
		pixel(g.X2, width), pixel(g.Y2, height),
		g.DurationMs,
	)
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// scrollGesture swipes vertically through the content anchor; reverse
// undoes it. Out-of-range endpoints clamp at the screen edge.
func scrollGesture(anchor config.Point, reverse bool) config.Gesture {
	g := config.Gesture{X1: anchor.X, Y1: anchor.Y + 0.2, X2: anchor.X, Y2: anchor.Y - 0.2, DurationMs: 500}
	if reverse {
		g.Y1, g.Y2 = g.Y2, g.Y1
	}
	return g
}

func findLabeled(targets []oracle.Target, label string) oracle.Target {
	for _, t := range targets {
		if t.Label == label {
			return t
		}
	}
	return oracle.Target{}
}

// PrintSummary writes the human-readable session report to stdout.
func PrintSummary(sum Summary) {
	fmt.Printf("\n──── session summary ────\n")
	fmt.Printf("profiles processed: %d\n", sum.Processed)
	fmt.Printf("accepted:           %d\n", sum.Accepted)
	fmt.Printf("remarks sent:       %d\n", sum.RemarksSent)
	fmt.Printf("errors:             %d\n", sum.Errors)
	fmt.Printf("duration:           %s\n", sum.Duration.Round(time.Second))
	fmt.Printf("finished:           %s\n", sum.CompletionReason)
}
