package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is the value used by most hybrid search engines.
const DefaultRRFConstant = 60

// Normalize scales scores into [0,1] by dividing by max(max(scores), floor).
// Negative and NaN scores become 0. If the divisor is not positive every
// result is 0, signalling that the signal carries no relevance.
func Normalize(scores []float64, floor float64) []float64 {
	out := make([]float64, len(scores))

	maxVal := max(floor, 0)
	for _, s := range scores {
		if s > maxVal {
			maxVal = s
		}
	}
	if maxVal <= 0 {
		return out
	}

	for i, s := range scores {
		if s > 0 {
			out[i] = s / maxVal
		}
	}
	return out
}

// WeightedFusion returns lexical*w.Keyword + semantic*w.Embedding per
// candidate. Both slices must be normalized and aligned.
func WeightedFusion(lexical, semantic []float64, w Weights) []float64 {
	fused := make([]float64, len(lexical))
	for i := range lexical {
		fused[i] = semantic[i]*w.Embedding + lexical[i]*w.Keyword
	}
	return fused
}

// RRFFusion combines the two rankings with Reciprocal Rank Fusion:
//
//	score(d) = w.Keyword/(k + rank_lex(d)) + w.Embedding/(k + rank_sem(d))
//
// Ranks are 1-indexed. A candidate with no score in a signal gets
// missing rank len+1 for it, so it still trails every scored candidate.
// The result is divided by its maximum so the best candidate scores 1.
func RRFFusion(lexical, semantic []float64, w Weights, k int) []float64 {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	missing := len(lexical) + 1
	lexRank := ranks(lexical)
	semRank := ranks(semantic)

	fused := make([]float64, len(lexical))
	for i := range lexical {
		lr, sr := lexRank[i], semRank[i]
		if lexical[i] <= 0 {
			lr = missing
		}
		if semantic[i] <= 0 {
			sr = missing
		}
		fused[i] = w.Keyword/float64(k+lr) + w.Embedding/float64(k+sr)
	}

	return Normalize(fused, 0)
}

// ranks returns the 1-indexed position of each score in descending order.
// Equal scores keep input order.
func ranks(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]int, len(scores))
	for pos, idx := range order {
		out[idx] = pos + 1
	}
	return out
}
