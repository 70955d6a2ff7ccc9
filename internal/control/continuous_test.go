package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ribasimcore/internal/control"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

func TestContinuousEvaluateAppliesFunctionTableToTargetField(t *testing.T) {
	basin := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}

	read := control.VariableReader(func(node graphtopo.NodeId, lookAhead, t float64) float64 {
		if node == basin {
			return 4 // constant listened level
		}
		return 0
	})

	s := &store.Store{}
	s.Pump.NodeID = []int64{2}
	s.Pump.LatchedFlowRate = []float64{0}

	s.Continuous.NodeID = []int64{3}
	s.Continuous.CompoundVar = []store.CompoundVariable{{
		Listen: []store.ListenTerm{{Node: basin, Weight: 1}},
	}}
	s.Continuous.FunctionTable = []store.FunctionTable{{
		Input:  []float64{0, 4, 8},
		Output: []float64{0, 2, 10},
	}}
	s.Continuous.TargetNode = []int64{2}
	s.Continuous.TargetField = []string{"flow_rate"}

	c := &control.Continuous{Store: s, Read: read}
	updates := c.Evaluate(0)

	assert.Len(t, updates, 1)
	assert.InDelta(t, 2, updates[0].Value, 1e-9)
	// Evaluate applies the update itself; callers never call Apply again.
	assert.InDelta(t, 2, s.Pump.LatchedFlowRate[0], 1e-9)
}

func TestContinuousEvaluateInterpolatesBetweenBreakpoints(t *testing.T) {
	basin := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}

	read := control.VariableReader(func(node graphtopo.NodeId, lookAhead, t float64) float64 {
		return 6
	})

	s := &store.Store{}
	s.Outlet.NodeID = []int64{2}
	s.Outlet.LatchedFlowRate = []float64{0}

	s.Continuous.NodeID = []int64{3}
	s.Continuous.CompoundVar = []store.CompoundVariable{{
		Listen: []store.ListenTerm{{Node: basin, Weight: 1}},
	}}
	s.Continuous.FunctionTable = []store.FunctionTable{{
		Input:  []float64{0, 4, 8},
		Output: []float64{0, 2, 10},
	}}
	s.Continuous.TargetNode = []int64{2}
	s.Continuous.TargetField = []string{"flow_rate"}

	c := &control.Continuous{Store: s, Read: read}
	c.Evaluate(0)

	// x=6 is midway between breakpoints (4,2) and (8,10): linear interp gives 6.
	assert.InDelta(t, 6, s.Outlet.LatchedFlowRate[0], 1e-9)
}
