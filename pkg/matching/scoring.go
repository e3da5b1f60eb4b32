package matching

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) on trimmed, lower-cased input.
// Two empty strings score 1 and exactly one empty string scores 0.
func Similarity(a, b string) float64 {
	a = normalizers.MatchKey(a)
	b = normalizers.MatchKey(b)

	if a == b {
		return 1.0
	}

	lenA := utf8.RuneCountInString(a)
	lenB := utf8.RuneCountInString(b)
	if lenA == 0 || lenB == 0 {
		return 0.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(max(lenA, lenB))
}

// BestSimilarity returns the highest similarity of s against any candidate, or 0 when there are none
func BestSimilarity(s string, candidates []string) float64 {
	best := 0.0
	for _, candidate := range candidates {
		if score := Similarity(s, candidate); score > best {
			best = score
		}
	}
	return best
}

// ConfidenceLevelFor buckets a match score
func ConfidenceLevelFor(score float64) models.ConfidenceLevel {
	switch {
	case score >= 0.9:
		return models.ConfidenceHigh
	case score >= 0.7:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// RecommendedActionFor maps a match score onto what a reviewer should do with it
func RecommendedActionFor(score float64) models.RecommendedAction {
	switch {
	case score >= 0.95:
		return models.RecommendedMerge
	case score >= 0.75:
		return models.RecommendedReview
	default:
		return models.RecommendedSeparate
	}
}

// signal is one weighted contribution to a candidate score
type signal struct {
	score  float64
	weight float64
	reason string
}

// weightedScore is the weighted average over the signals that fired, 0 when none did
func weightedScore(signals []signal) (float64, []string) {
	var total, weights float64
	reasons := make([]string, 0, len(signals))
	for _, s := range signals {
		total += s.score * s.weight
		weights += s.weight
		reasons = append(reasons, s.reason)
	}
	if weights == 0 {
		return 0, reasons
	}
	return clamp(total / weights), reasons
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
