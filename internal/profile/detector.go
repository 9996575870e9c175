package profile

import (
	"fmt"
	"strings"
)

// Overlap thresholds below which two snapshots are considered to show
// different profiles.
const (
	textOverlapThreshold     = 0.3
	interestOverlapThreshold = 0.2
	maxAgeDelta              = 5

	confidenceChanged = 0.8
	confidenceSame    = 0.3
	confidencePerHint = 0.1
	confidenceCap     = 0.95
)

// Change is the detector verdict for a pair of snapshots.
type Change struct {
	Changed    bool
	Confidence float64
	Reasons    []string
}

// DetectChange decides whether cur shows a different profile than prev.
// It is pure and deterministic: same inputs, same verdict. Confidence
// starts at 0.8 for a change and climbs 0.1 per corroborating signal,
// capped at 0.95; an unchanged verdict carries 0.3.
func DetectChange(prev, cur Snapshot) Change {
	if prev.Empty() {
		return Change{Changed: true, Confidence: 1.0, Reasons: []string{"no previous profile"}}
	}

	var reasons []string

	prevTokens, curTokens := tokens(prev.Text), tokens(cur.Text)
	if len(prevTokens) > 0 && len(curTokens) > 0 {
		if r := overlapRatio(prevTokens, curTokens); r < textOverlapThreshold {
			reasons = append(reasons, fmt.Sprintf("text overlap %.2f below %.2f", r, textOverlapThreshold))
		}
	}
	if prev.Name != "" && cur.Name != "" && !strings.EqualFold(prev.Name, cur.Name) {
		reasons = append(reasons, fmt.Sprintf("name changed %q -> %q", prev.Name, cur.Name))
	}
	if prev.Age > 0 && cur.Age > 0 {
		if d := absInt(prev.Age - cur.Age); d > maxAgeDelta {
			reasons = append(reasons, fmt.Sprintf("age delta %d exceeds %d", d, maxAgeDelta))
		}
	}
	if len(prev.Interests) > 0 && len(cur.Interests) > 0 {
		if r := overlapRatio(toSet(prev.Interests), toSet(cur.Interests)); r < interestOverlapThreshold {
			reasons = append(reasons, fmt.Sprintf("interest overlap %.02f below %.02f", r, interestOverlapThreshold))
		}
	}

	if len(reasons) == 0 {
		return Change{Changed: false, Confidence: confidenceSame}
	}

	conf := confidenceChanged + confidencePerHint*float64(len(reasons)-1)
	if conf > confidenceCap {
		conf = confidenceCap
	}
	return Change{Changed: true, Confidence: conf, Reasons: reasons}
}

// overlapRatio is the shared-element count divided by the size of the
// larger set, so a set nested inside a superset still reads as similar.
func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(inter) / float64(max)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
