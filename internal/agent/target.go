package agent

import (
	"fmt"
	"math"
	"strings"

	"github.com/polzovatel/swipe-agent/internal/oracle"
)

// SizeClass hints how precisely a control needs to be hit.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Target is a located control with its resolved pixel position.
type Target struct {
	Found      bool
	Label      string
	XPct       float64
	YPct       float64
	Confidence float64
	Size       SizeClass
	X          int
	Y          int
}

// ResolveTarget converts a percent-coordinate hit into pixels,
// rejecting misses and low-confidence locations. Pixels are rounded,
// then clamped to the screen.
func ResolveTarget(t oracle.Target, width, height int, minConfidence float64) (Target, error) {
	if !t.Found {
		return Target{}, &VerificationMismatch{Expected: "located target", Got: "not found"}
	}
	if t.Confidence < minConfidence {
		return Target{}, &VerificationMismatch{
			Expected: fmt.Sprintf("confidence >= %.2f", minConfidence),
			Got:      fmt.Sprintf("%.2f for %q", t.Confidence, t.Label),
		}
	}
	if width <= 0 || height <= 0 {
		return Target{}, fmt.Errorf("invalid screen size %dx%d", width, height)
	}
	if t.XPct < 0 || t.XPct > 1 || t.YPct < 0 || t.YPct > 1 {
		return Target{}, &VerificationMismatch{
			Expected: "percent coords in [0,1]",
			Got:      fmt.Sprintf("(%.3f, %.3f)", t.XPct, t.YPct),
		}
	}
	return Target{
		Found:      true,
		Label:      t.Label,
		XPct:       t.XPct,
		YPct:       t.YPct,
		Confidence: t.Confidence,
		Size:       sizeClassOf(t),
		X:          clampPixel(int(math.Round(t.XPct*float64(width))), width),
		Y:          clampPixel(int(math.Round(t.YPct*float64(height))), height),
	}, nil
}

func clampPixel(v, dim int) int {
	if v < 0 {
		return 0
	}
	if v >= dim {
		return dim - 1
	}
	return v
}

// sizeClassOf trusts the oracle's size read and falls back to a label
// heuristic when the model omitted it.
func sizeClassOf(t oracle.Target) SizeClass {
	switch SizeClass(strings.ToLower(strings.TrimSpace(t.Size))) {
	case SizeSmall:
		return SizeSmall
	case SizeMedium:
		return SizeMedium
	case SizeLarge:
		return SizeLarge
	}
	return sizeClassFor(t.Label)
}

func sizeClassFor(label string) SizeClass {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "button") || strings.Contains(l, "dismiss"):
		return SizeSmall
	case strings.Contains(l, "card") || strings.Contains(l, "photo"):
		return SizeLarge
	default:
		return SizeMedium
	}
}
