package toc

import "math"

const (
	mlBaseConfidence = 0.85
	maxConfidence    = 0.95
	perItemBonus     = 0.01
	maxItemBonus     = 0.10
	multiLevelBonus  = 0.05
	pageOrderBonus   = 0.03
)

// ScoreConfidence scores an ML-service extraction. The base is 0.85; a
// non-empty outline earns up to 0.10 for item count, 0.05 for using more
// than one level and 0.03 when pages never go backwards. Capped at 0.95.
func ScoreConfidence(items []Heading, hierarchy []*Node) float64 {
	score := mlBaseConfidence
	if len(hierarchy) == 0 {
		return score
	}

	score += math.Min(maxItemBonus, float64(len(items))*perItemBonus)

	flat := Flatten(hierarchy)
	levels := make(map[int]struct{})
	ordered := true
	for i, h := range flat {
		levels[h.Level] = struct{}{}
		if i > 0 && h.Page < flat[i-1].Page {
			ordered = false
		}
	}
	if len(levels) > 1 {
		score += multiLevelBonus
	}
	if ordered {
		score += pageOrderBonus
	}
	return math.Min(score, maxConfidence)
}
