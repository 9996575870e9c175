package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/polzovatel/swipe-agent/internal/oracle"
)

func TestTablePolicy(t *testing.T) {
	p := NewTablePolicy()

	s := freshSession()
	act, err := p.Plan(context.Background(), s)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, ok := act.(CaptureAction); !ok {
		t.Errorf("no screenshot should plan capture, got %T", act)
	}

	s.Screenshot = "shot.png"
	act, _ = p.Plan(context.Background(), s)
	if _, ok := act.(AdvanceAction); !ok {
		t.Errorf("with screenshot should plan advance, got %T", act)
	}
}

func TestOraclePolicyNoScreenshot(t *testing.T) {
	p := NewOraclePolicy(&fakeOracle{}, 0.5, zerolog.Nop())
	act, err := p.Plan(context.Background(), freshSession())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, ok := act.(CaptureAction); !ok {
		t.Errorf("missing screenshot should capture first, got %T", act)
	}
}

func TestOraclePolicyAdviceFailureFallsBack(t *testing.T) {
	orc := &fakeOracle{
		advise: func(path, situation string) (oracle.Advice, error) {
			return oracle.Advice{}, errors.New("model down")
		},
	}
	p := NewOraclePolicy(orc, 0.5, zerolog.Nop())
	s := freshSession()
	s.Screenshot = "shot.png"

	act, err := p.Plan(context.Background(), s)
	if _, ok := act.(AdvanceAction); !ok {
		t.Errorf("fallback action = %T, want AdvanceAction", act)
	}
	if err == nil {
		t.Fatal("fallback must surface the failure so one error is charged")
	}
	var oe *OracleCallFailure
	if !errors.As(err, &oe) {
		t.Errorf("error type = %T", err)
	}
}

func TestOraclePolicyTapAdvice(t *testing.T) {
	orc := &fakeOracle{
		advise: func(path, situation string) (oracle.Advice, error) {
			return oracle.Advice{
				Action: "tap",
				Target: oracle.Target{Found: true, Label: "dismiss", XPct: 0.5, YPct: 0.9, Confidence: 0.8},
			}, nil
		},
	}
	p := NewOraclePolicy(orc, 0.5, zerolog.Nop())
	s := freshSession()
	s.Screenshot = "shot.png"

	act, err := p.Plan(context.Background(), s)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	tap, ok := act.(TapAction)
	if !ok {
		t.Fatalf("action = %T, want TapAction", act)
	}
	if tap.Target.X != 500 || tap.Target.Y != 1800 {
		t.Errorf("resolved tap = (%d,%d)", tap.Target.X, tap.Target.Y)
	}
}

func TestOraclePolicyLowConfidenceTapDegrades(t *testing.T) {
	orc := &fakeOracle{
		advise: func(path, situation string) (oracle.Advice, error) {
			return oracle.Advice{
				Action: "tap",
				Target: oracle.Target{Found: true, XPct: 0.5, YPct: 0.5, Confidence: 0.2},
			}, nil
		},
	}
	p := NewOraclePolicy(orc, 0.5, zerolog.Nop())
	s := freshSession()
	s.Screenshot = "shot.png"

	act, err := p.Plan(context.Background(), s)
	if _, ok := act.(AdvanceAction); !ok {
		t.Errorf("unusable tap should degrade to advance, got %T", act)
	}
	if err == nil {
		t.Error("degraded plan must carry an error")
	}
}

func TestOraclePolicyUnknownAction(t *testing.T) {
	orc := &fakeOracle{
		advise: func(path, situation string) (oracle.Advice, error) {
			return oracle.Advice{Action: "somersault"}, nil
		},
	}
	p := NewOraclePolicy(orc, 0.5, zerolog.Nop())
	s := freshSession()
	s.Screenshot = "shot.png"

	act, err := p.Plan(context.Background(), s)
	if _, ok := act.(AdvanceAction); !ok {
		t.Errorf("unknown advice should advance, got %T", act)
	}
	if err == nil {
		t.Error("unknown advice must carry an error")
	}
}
