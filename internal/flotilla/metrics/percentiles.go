package metrics

import (
	"math"
	"sort"
)

// DefaultPercentiles are the percentiles reported for queue wait times.
var DefaultPercentiles = []int{5, 10, 50, 90, 95}

// Percentiles computes the requested percentiles of samples by linear
// interpolation between closest ranks. Returns an empty map when there are
// no samples; the input slice is left untouched.
func Percentiles(samples []float64, percentiles []int) map[int]float64 {
	result := map[int]float64{}
	if len(samples) == 0 {
		return result
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	for _, p := range percentiles {
		result[p] = percentile(sorted, p)
	}
	return result
}

func percentile(sorted []float64, p int) float64 {
	index := float64(len(sorted)-1) * float64(p) / 100
	lo := int(math.Floor(index))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo]*(float64(hi)-index) + sorted[hi]*(index-float64(lo))
}
