package rhs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/rhs"
	"ribasimcore/internal/store"
)

func TestBasinStorageAndFlowsReflectLinearResistanceFlow(t *testing.T) {
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	basinB := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 2, Index: 1}
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: basinA, To: resistor, Kind: graphtopo.LinkFlow},
		graphtopo.LinkMeta{ID: 2, From: resistor, To: basinB, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	s.Basin = newBasinArrays(
		struct {
			id      int64
			area    float64
			storage float64
		}{1, 100, 500}, // level 5
		struct {
			id      int64
			area    float64
			storage float64
		}{2, 100, 200}, // level 2
	)
	s.LinearResistance.NodeID = []int64{3}
	s.LinearResistance.Resistance = []float64{10}
	s.LinearResistance.MaxFlow = []float64{1000}

	layout := rhs.NewLayout(0, 0, 0, 0, 1, 0, 2, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)
	m.Eval(state, 0) // populates m.Flow

	assert.InDelta(t, 500, m.BasinStorage(state, 0), 1e-9)
	assert.InDelta(t, 200, m.BasinStorage(state, 1), 1e-9)

	inflowA, outflowA := m.BasinFlows(0)
	assert.InDelta(t, 0, inflowA, 1e-9)
	assert.InDelta(t, 0.3, outflowA, 1e-9)

	inflowB, outflowB := m.BasinFlows(1)
	assert.InDelta(t, 0.3, inflowB, 1e-9)
	assert.InDelta(t, 0, outflowB, 1e-9)
}

func TestListenValueReadsBasinLevel(t *testing.T) {
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	term := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 2, Index: 0}
	rc := graphtopo.NodeId{Kind: graphtopo.KindTabulatedRatingCurve, ID: 3, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: basinA, To: rc, Kind: graphtopo.LinkFlow},
		graphtopo.LinkMeta{ID: 2, From: rc, To: term, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	s.Basin = newBasinArrays(struct {
		id      int64
		area    float64
		storage float64
	}{1, 100, 500}) // level 5
	s.TabulatedRatingCurve.NodeID = []int64{3}
	s.TabulatedRatingCurve.Tables = [][]store.RatingCurveTable{{
		{Level: []float64{0, 10}, Flow: []float64{0, 10}},
	}}
	s.TabulatedRatingCurve.CurrentTable = []int{0}
	s.Terminal.NodeID = []int64{2}

	layout := rhs.NewLayout(1, 0, 0, 0, 0, 0, 1, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)
	m.Eval(state, 0)

	assert.InDelta(t, 5, m.ListenValue(basinA, 0, 0), 1e-9)
}

func TestListenValueReadsLevelBoundaryAheadOfTime(t *testing.T) {
	lb := graphtopo.NodeId{Kind: graphtopo.KindLevelBoundary, ID: 1, Index: 0}
	term := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 2, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: lb, To: term, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	series, err := interp.NewSeries([]float64{0, 10}, []float64{1, 9}, interp.MethodLinear, interp.ExtrapConstant)
	require.NoError(t, err)
	s.LevelBoundary.NodeID = []int64{1}
	s.LevelBoundary.Level = []*interp.Series{series}

	layout := rhs.NewLayout(0, 0, 0, 0, 0, 0, 0, 0)
	m := rhs.NewModel(g, s, layout)

	assert.InDelta(t, 1, m.ListenValue(lb, 0, 0), 1e-9)
	assert.InDelta(t, 9, m.ListenValue(lb, 0, 10), 1e-9)
	// lookAhead shifts the sampled instant forward, for anticipatory control.
	assert.InDelta(t, 9, m.ListenValue(lb, 5, 5), 1e-9)
}

func TestListenValueReadsStructureFlow(t *testing.T) {
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	pump := graphtopo.NodeId{Kind: graphtopo.KindPump, ID: 2, Index: 0}
	term := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 3, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: basinA, To: pump, Kind: graphtopo.LinkFlow},
		graphtopo.LinkMeta{ID: 2, From: pump, To: term, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	s.Basin = newBasinArrays(struct {
		id      int64
		area    float64
		storage float64
	}{1, 100, 1000}) // level 10
	s.Pump.NodeID = []int64{2}
	s.Pump.MinFlowRate = []*interp.Series{constSeries(t, 0)}
	s.Pump.MaxFlowRate = []*interp.Series{constSeries(t, 5)}
	s.Pump.MinUpstreamLevel = []*interp.Series{constSeries(t, -1000)}
	s.Pump.MaxDownstreamLevel = []*interp.Series{constSeries(t, -1000)}
	s.Pump.CrestLevel = []float64{0}
	s.Pump.LatchedFlowRate = []float64{100}
	s.Terminal.NodeID = []int64{3}

	layout := rhs.NewLayout(0, 1, 0, 0, 0, 0, 1, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)
	m.Eval(state, 0)

	assert.InDelta(t, 5, m.ListenValue(pump, 0, 0), 1e-6)
}
