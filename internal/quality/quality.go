// Package quality computes a Bayesian weighted rating for catalog items
// from their positive and negative vote counts.
//
// Each item's observed approval ratio R is blended with the dataset-wide mean
// ratio C, weighted by the item's vote volume v relative to the median vote
// volume m:
//
//	score = v/(v+m) * R + m/(v+m) * C
//
// Items with few votes regress toward C; items with v ≫ m converge to their
// own R. Both m and C are computed from the same vote data as the per-item
// scores.
package quality

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon keeps R finite for items with no votes.
const DefaultEpsilon = 1e-6

// Votes is a single item's vote counts.
type Votes struct {
	Positive float64
	Negative float64
}

// Stats holds the dataset-level constants used for scoring.
type Stats struct {
	M float64 // median total votes
	C float64 // mean approval ratio
}

// Score returns one quality score per input, in input order, plus the
// dataset constants. A non-positive epsilon is replaced by DefaultEpsilon.
// Returns nil scores for an empty input.
func Score(votes []Votes, epsilon float64) ([]float64, Stats) {
	if len(votes) == 0 {
		return nil, Stats{}
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	totals := make([]float64, len(votes))
	ratios := make([]float64, len(votes))
	for i, vote := range votes {
		v := vote.Positive + vote.Negative
		totals[i] = v
		ratios[i] = vote.Positive / (v + epsilon)
	}

	stats := Stats{
		M: median(totals),
		C: stat.Mean(ratios, nil),
	}

	scores := make([]float64, len(votes))
	for i := range votes {
		scores[i] = weightedRating(totals[i], ratios[i], stats)
	}

	slog.Debug("Quality scores computed", "items", len(votes), "m", stats.M, "c", stats.C)
	return scores, stats
}

// weightedRating blends R with C; when v+m is zero there is no evidence at
// all and the prior C is returned.
func weightedRating(v, r float64, stats Stats) float64 {
	denom := v + stats.M
	if denom == 0 {
		return stats.C
	}
	score := (v/denom)*r + (stats.M/denom)*stats.C
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return stats.C
	}
	return score
}

// median returns the middle value, averaging the two middle values for an
// even count. The input is not modified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
