package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentiles(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50}

	result := Percentiles(samples, DefaultPercentiles)

	assert.InDelta(t, 12.0, result[5], 1e-9)
	assert.InDelta(t, 14.0, result[10], 1e-9)
	assert.InDelta(t, 30.0, result[50], 1e-9)
	assert.InDelta(t, 46.0, result[90], 1e-9)
	assert.InDelta(t, 48.0, result[95], 1e-9)
}

func TestPercentiles_SortsInput(t *testing.T) {
	samples := []float64{50, 10, 40, 20, 30}

	result := Percentiles(samples, []int{50})

	assert.InDelta(t, 30.0, result[50], 1e-9)
	assert.Equal(t, []float64{50, 10, 40, 20, 30}, samples)
}

func TestPercentiles_SingleSample(t *testing.T) {
	result := Percentiles([]float64{7.5}, DefaultPercentiles)

	for _, p := range DefaultPercentiles {
		assert.InDelta(t, 7.5, result[p], 1e-9)
	}
}

func TestPercentiles_TwoSamples(t *testing.T) {
	result := Percentiles([]float64{0, 100}, []int{50, 90})

	assert.InDelta(t, 50.0, result[50], 1e-9)
	assert.InDelta(t, 90.0, result[90], 1e-9)
}

func TestPercentiles_NoSamples(t *testing.T) {
	result := Percentiles(nil, DefaultPercentiles)

	assert.Empty(t, result)
}
