package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every tunable setting for the automation agent. Policy
// values live here so no component hard-codes a threshold.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Decision DecisionConfig `yaml:"decision"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Remarks  RemarksConfig  `yaml:"remarks"`
}

// DeviceConfig configures how we reach the adb server and the target app.
type DeviceConfig struct {
	// Address of the adb server (host protocol endpoint).
	Addr string `yaml:"addr"`
	// Optional device serial; empty means "any single connected device".
	Serial string `yaml:"serial"`
	// Application id launched at session start.
	AppID string `yaml:"app_id"`
	// Directory for screenshot scratch files, cleared at session start.
	ScreenshotDir string `yaml:"screenshot_dir"`
	// Wait after launching the app (e.g. "5s").
	LaunchWait string `yaml:"launch_wait"`
}

type OracleConfig struct {
	Model string `yaml:"model"`
}

// DecisionConfig holds the accept/reject policy thresholds.
type DecisionConfig struct {
	QualityThresholdHigh      float64 `yaml:"quality_threshold_high"`
	ConversationThresholdHigh float64 `yaml:"conversation_threshold_high"`
	QualityThresholdMedium    float64 `yaml:"quality_threshold_medium"`
	MinPositiveIndicators     int     `yaml:"min_positive_indicators"`
	MinTextLengthDetailed     int     `yaml:"min_text_length_detailed"`
	MinQualityForDetailed     float64 `yaml:"min_quality_for_detailed"`
}

// Point is a percent-coordinate position on screen.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Gesture is a percent-coordinate swipe vector.
type Gesture struct {
	X1         float64 `yaml:"x1"`
	Y1         float64 `yaml:"y1"`
	X2         float64 `yaml:"x2"`
	Y2         float64 `yaml:"y2"`
	DurationMs int     `yaml:"duration_ms"`
}

// WorkflowConfig bounds the orchestrator loop and its recovery behavior.
type WorkflowConfig struct {
	MaxProfiles         int     `yaml:"max_profiles"`
	MaxErrors           int     `yaml:"max_errors"`
	StuckCeiling        int     `yaml:"stuck_ceiling"`
	MaxGatherScrolls    int     `yaml:"max_gather_scrolls"`
	MaxRemarkRetries    int     `yaml:"max_remark_retries"`
	MinTargetConfidence float64 `yaml:"min_target_confidence"`
	// Static settle waits after mutating device actions.
	SettlePause   string `yaml:"settle_pause"`
	ActionPause   string `yaml:"action_pause"`
	RecoveryPause string `yaml:"recovery_pause"`
	// Ordered corrective gestures tried by the recovery ladder.
	RecoveryGestures []Gesture `yaml:"recovery_gestures"`
	// Navigation swipe used to advance to the next profile.
	AdvanceGesture Gesture `yaml:"advance_gesture"`
	// Fixed relative position of the reject control.
	RejectTap Point `yaml:"reject_tap"`
	// Fallback relative position of the submit control.
	SubmitFallback Point `yaml:"submit_fallback"`
}

type RemarksConfig struct {
	DBPath        string   `yaml:"db_path"`
	DefaultRemark string   `yaml:"default_remark"`
	Styles        []string `yaml:"styles"`
}

// DefaultConfig provides the thresholds and pacing the agent ships with.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Addr:          "127.0.0.1:5037",
			AppID:         "co.match.android.matchhinge",
			ScreenshotDir: "images",
			LaunchWait:    "5s",
		},
		Oracle: OracleConfig{
			Model: "gemini-2.5-flash",
		},
		Decision: DecisionConfig{
			QualityThresholdHigh:      8,
			ConversationThresholdHigh: 7,
			QualityThresholdMedium:    6,
			MinPositiveIndicators:     2,
			MinTextLengthDetailed:     200,
			MinQualityForDetailed:     5,
		},
		Workflow: WorkflowConfig{
			MaxProfiles:         10,
			MaxErrors:           5,
			StuckCeiling:        2,
			MaxGatherScrolls:    3,
			MaxRemarkRetries:    3,
			MinTargetConfidence: 0.5,
			SettlePause:         "2s",
			ActionPause:         "3s",
			RecoveryPause:       "2s",
			RecoveryGestures: []Gesture{
				{X1: 0.9, Y1: 0.5, X2: 0.1, Y2: 0.5, DurationMs: 800},
				{X1: 0.5, Y1: 0.3, X2: 0.5, Y2: 0.7, DurationMs: 800},
				{X1: 0.8, Y1: 0.3, X2: 0.2, Y2: 0.7, DurationMs: 800},
			},
			AdvanceGesture: Gesture{X1: 0.15, Y1: 0.5, X2: 0.15, Y2: 0.375, DurationMs: 500},
			RejectTap:      Point{X: 0.15, Y: 0.85},
			SubmitFallback: Point{X: 0.75, Y: 0.82},
		},
		Remarks: RemarksConfig{
			DBPath:        "data/remarks.db",
			DefaultRemark: "Hey, I'd love to meet up!",
			Styles:        []string{"balanced", "playful", "curious", "direct"},
		},
	}
}

// Preset returns a named configuration preset overlaid on the defaults.
func Preset(name string) (Config, error) {
	cfg := DefaultConfig()
	switch name {
	case "", "default":
	case "fast":
		cfg.Workflow.MaxErrors = 8
		cfg.Workflow.MaxGatherScrolls = 1
		cfg.Workflow.SettlePause = "1s"
		cfg.Workflow.ActionPause = "2s"
	case "conservative":
		cfg.Workflow.MaxErrors = 3
		cfg.Decision.QualityThresholdMedium = 7
		cfg.Decision.MinPositiveIndicators = 3
		cfg.Workflow.ActionPause = "4s"
	default:
		return cfg, fmt.Errorf("unknown preset %q", name)
	}
	return cfg, nil
}

// Load reads a YAML config from disk and overlays the given base.
func Load(path string, base Config) (Config, error) {
	cfg := base
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate ensures the loop can terminate and gestures are sane.
func (c *Config) Validate() error {
	if c.Device.Addr == "" {
		return errors.New("device.addr is required")
	}
	if c.Device.AppID == "" {
		return errors.New("device.app_id is required")
	}
	if c.Workflow.MaxProfiles <= 0 {
		return errors.New("workflow.max_profiles must be positive")
	}
	if c.Workflow.StuckCeiling < 1 {
		return errors.New("workflow.stuck_ceiling must be at least 1")
	}
	if len(c.Workflow.RecoveryGestures) == 0 {
		return errors.New("workflow.recovery_gestures must not be empty")
	}
	if c.Workflow.MinTargetConfidence < 0 || c.Workflow.MinTargetConfidence > 1 {
		return errors.New("workflow.min_target_confidence must be in [0,1]")
	}
	for _, p := range []Point{c.Workflow.RejectTap, c.Workflow.SubmitFallback} {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return errors.New("relative tap points must be in [0,1]")
		}
	}
	return nil
}

// SettleWait returns the pause after light mutating actions.
func (w WorkflowConfig) SettleWait() time.Duration { return parseWait(w.SettlePause, 2*time.Second) }

// ActionWait returns the pause after accept/reject/advance actions.
func (w WorkflowConfig) ActionWait() time.Duration { return parseWait(w.ActionPause, 3*time.Second) }

// RecoveryWait returns the pause between recovery gestures.
func (w WorkflowConfig) RecoveryWait() time.Duration {
	return parseWait(w.RecoveryPause, 2*time.Second)
}

// LaunchWaitDuration returns the pause after launching the target app.
func (d DeviceConfig) LaunchWaitDuration() time.Duration {
	return parseWait(d.LaunchWait, 5*time.Second)
}

func parseWait(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
