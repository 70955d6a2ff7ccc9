package integrate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/integrate"
)

// Exponential decay dy/dt = -y has exact solution y(t) = y0*exp(-t); the
// stepper should track it within its own error tolerance.
func TestDormandPrinceTracksExponentialDecay(t *testing.T) {
	stepper := integrate.NewDormandPrince45(integrate.DefaultOptions())
	rhs := func(state []float64, _ float64) []float64 {
		return []float64{-state[0]}
	}

	state := []float64{1.0}
	tCur := 0.0
	for tCur < 5 {
		tNew, stateNew, _, err := stepper.Step(rhs, state, tCur, 0.5)
		require.NoError(t, err)
		tCur, state = tNew, stateNew
	}

	assert.InDelta(t, 0, state[0], 0.05)
}

func TestDormandPrinceReportsDivergence(t *testing.T) {
	stepper := integrate.NewDormandPrince45(integrate.Options{
		AbsTol: 1e-12, RelTol: 1e-12, MaxTimestep: 1, MinTimestep: 1e-3, SafetyFactor: 0.9,
	})
	blowUp := func(state []float64, _ float64) []float64 {
		return []float64{state[0] * 1e9}
	}
	_, _, _, err := stepper.Step(blowUp, []float64{1}, 0, 1)
	assert.Error(t, err)
}

func TestFindZeroCrossingBisectsLinearCondition(t *testing.T) {
	interpolate := func(t float64) []float64 { return []float64{t} }
	cond := func(state []float64, t float64) float64 { return state[0] - 2.5 }

	root, ok := integrate.FindZeroCrossing(cond, interpolate, 0, 5, 1e-6, 100)
	require.True(t, ok)
	assert.InDelta(t, 2.5, root, 1e-5)
}

func TestFindZeroCrossingReportsNoBracket(t *testing.T) {
	interpolate := func(t float64) []float64 { return []float64{t} }
	cond := func(state []float64, t float64) float64 { return state[0] + 1 }

	_, ok := integrate.FindZeroCrossing(cond, interpolate, 0, 5, 1e-6, 100)
	assert.False(t, ok)
}
