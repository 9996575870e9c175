package remarks

import "math/rand"

// styleWeights computes a sampling weight per style from history.
// Laplace smoothing keeps untried styles in rotation instead of
// starving them at zero observations.
func styleWeights(styles []string, stats []StyleStat) []float64 {
	byStyle := make(map[string]StyleStat, len(stats))
	for _, st := range stats {
		byStyle[st.Style] = st
	}
	weights := make([]float64, len(styles))
	for i, s := range styles {
		st := byStyle[s]
		weights[i] = float64(st.Sent+1) / float64(st.Total+2)
	}
	return weights
}

// PickStyle samples a style proportionally to its smoothed success
// rate. The rand source is injected so callers control determinism.
func PickStyle(styles []string, stats []StyleStat, rng *rand.Rand) string {
	if len(styles) == 0 {
		return ""
	}
	weights := styleWeights(styles, stats)
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return styles[0]
	}
	x := rng.Float64() * total
	for i, w := range weights {
		x -= w
		if x < 0 {
			return styles[i]
		}
	}
	return styles[len(styles)-1]
}
