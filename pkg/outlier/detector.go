// Package outlier flags anomalous points in a 1D signal trace using the
// modified z-score, a robust median-based statistic.
package outlier

import (
	"math"
	"sort"
)

// Threshold is the modified z-score above which a point counts as an
// outlier. 3.5 is the standard recommendation for this statistic.
const Threshold = 3.5

// madScale rescales the median absolute deviation so it approximates one
// standard deviation under a normal distribution.
const madScale = 0.6745

// ModifiedZScores returns the modified z-score of every point:
// madScale * |x - median| / MAD. With a zero MAD any nonzero deviation
// maps to +Inf, so a step against a flat tail is still flagged.
func ModifiedZScores(trace []float64) []float64 {
	med := medianOf(trace)
	dev := make([]float64, len(trace))
	for i, x := range trace {
		dev[i] = math.Abs(x - med)
	}
	mad := medianOf(dev)

	scores := make([]float64, len(trace))
	for i, d := range dev {
		if d == 0 {
			scores[i] = 0
			continue
		}
		scores[i] = madScale * d / mad
	}
	return scores
}

// LeadingCount returns the length of the leading contiguous run of
// outliers in the trace. Only that leading run is meaningful for
// dummy-scan detection: interior and trailing outliers are not counted,
// and a clean first element means zero. Traces shorter than 2 points
// carry no usable statistic and yield zero.
func LeadingCount(trace []float64) int {
	if len(trace) < 2 {
		return 0
	}
	scores := ModifiedZScores(trace)
	count := 0
	for _, s := range scores {
		if s <= Threshold {
			break
		}
		count++
	}
	return count
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
