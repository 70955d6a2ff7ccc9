package smoothing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ribasimcore/internal/smoothing"
)

func TestReductionBoundaryValues(t *testing.T) {
	assert.Equal(t, 0.0, smoothing.Reduction(-1, 10))
	assert.Equal(t, 0.0, smoothing.Reduction(0, 10))
	assert.Equal(t, 1.0, smoothing.Reduction(10, 10))
	assert.Equal(t, 1.0, smoothing.Reduction(20, 10))
}

func TestReductionIsMonotoneAndC1Smooth(t *testing.T) {
	var prev float64
	for i := 0; i <= 100; i++ {
		x := float64(i) / 10
		v := smoothing.Reduction(x, 10)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
	// Slope at both ends is zero, the hallmark of the cubic smoothstep.
	eps := 1e-6
	slopeAtZero := (smoothing.Reduction(eps, 10) - smoothing.Reduction(0, 10)) / eps
	slopeAtThreshold := (smoothing.Reduction(10, 10) - smoothing.Reduction(10-eps, 10)) / eps
	assert.InDelta(t, 0, slopeAtZero, 1e-3)
	assert.InDelta(t, 0, slopeAtThreshold, 1e-3)
}

func TestLowStorageAndDryUseSpecThresholds(t *testing.T) {
	assert.Equal(t, smoothing.Reduction(5, 10), smoothing.LowStorage(5))
	assert.Equal(t, smoothing.Reduction(0.05, 0.1), smoothing.Dry(0.05))
}
