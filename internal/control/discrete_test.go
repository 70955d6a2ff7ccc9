package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/control"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

func TestTruthStateHysteresis(t *testing.T) {
	high := []float64{3.0}
	low := []float64{2.0}

	// Starts false (below 3), rises to 2.5: stays false until it clears 3.
	truth := control.TruthState(2.5, high, low, []bool{false})
	assert.False(t, truth[0])

	truth = control.TruthState(3.5, high, low, []bool{false})
	assert.True(t, truth[0])

	// Once true, only drops below the *low* threshold clears it.
	truth = control.TruthState(2.5, high, low, []bool{true})
	assert.True(t, truth[0])

	truth = control.TruthState(1.5, high, low, []bool{true})
	assert.False(t, truth[0])
}

func TestExpandWildcardsAndBuildLogicTable(t *testing.T) {
	keys := control.ExpandWildcards("T*")
	assert.ElementsMatch(t, []string{"TT", "TF"}, keys)

	table, err := control.BuildLogicTable(map[string]string{"T*": "above", "F*": "below"})
	require.NoError(t, err)
	assert.Equal(t, "above", table["TT"])
	assert.Equal(t, "below", table["FF"])

	_, err = control.BuildLogicTable(map[string]string{"TX": "bad"})
	require.Error(t, err)
}

func TestDiscreteEvaluateFiresExactlyOnThresholdCrossing(t *testing.T) {
	s := &store.Store{}
	s.Discrete.NodeID = []int64{10}
	s.Discrete.CompoundVariables = [][]store.CompoundVariable{{{
		Listen: []store.ListenTerm{{Node: graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1}, Weight: 1}},
	}}}
	s.Discrete.HighThresholds = [][][]float64{{{3.0}}}
	s.Discrete.LowThresholds = [][][]float64{{{2.0}}}
	s.Discrete.LogicTable = []map[string]string{{"T": "above", "F": "below"}}
	s.Discrete.CurrentState = []string{"below"}
	s.Discrete.CurrentTruth = [][]bool{{false}}
	s.Discrete.TransitionLog = [][]store.Transition{{}}

	level := 2.5
	read := func(node graphtopo.NodeId, lookAhead, t float64) float64 { return level }

	d := &control.Discrete{Store: s, Read: read}

	level = 2.5
	assert.Empty(t, d.Evaluate(0))
	level = 3.5
	fired := d.Evaluate(1)
	require.Len(t, fired, 1)
	assert.Equal(t, "below", fired[0].From)
	assert.Equal(t, "above", fired[0].To)

	level = 2.5
	assert.Empty(t, d.Evaluate(2), "must not clear until below the low threshold")
	level = 1.5
	fired = d.Evaluate(3)
	require.Len(t, fired, 1)
	assert.Equal(t, "above", fired[0].From)
	assert.Equal(t, "below", fired[0].To)
}
