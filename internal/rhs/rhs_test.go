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

func constSeries(t *testing.T, v float64) *interp.Series {
	t.Helper()
	s, err := interp.NewSeries([]float64{0}, []float64{v}, interp.MethodConstant, interp.ExtrapConstant)
	require.NoError(t, err)
	return s
}

func buildGraph(t *testing.T, links ...graphtopo.LinkMeta) *graphtopo.Graph {
	t.Helper()
	b := graphtopo.NewBuilder()
	for _, l := range links {
		require.NoError(t, b.AddLink(l))
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func newBasinArrays(specs ...struct {
	id      int64
	area    float64
	storage float64
}) store.BasinArrays {
	var b store.BasinArrays
	for _, s := range specs {
		b.NodeID = append(b.NodeID, s.id)
		b.ProfileLevel = append(b.ProfileLevel, []float64{0, 100})
		b.ProfileArea = append(b.ProfileArea, []float64{s.area, s.area})
		b.InitialStorage = append(b.InitialStorage, s.storage)
		b.Precipitation = append(b.Precipitation, nil)
		b.SurfaceRunoff = append(b.SurfaceRunoff, nil)
		b.Drainage = append(b.Drainage, nil)
		b.Evaporation = append(b.Evaporation, nil)
		b.Infiltration = append(b.Infiltration, nil)
	}
	return b
}

func TestLinearResistanceEqualizesTowardLowerBasin(t *testing.T) {
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

	dstate := m.Eval(state, 0)

	assert.InDelta(t, 0.3, dstate[layout.LinearResistanceCumulative.Start], 1e-9)

	idxAR, err := g.FlowIndex(basinA, resistor)
	require.NoError(t, err)
	idxRB, err := g.FlowIndex(resistor, basinB)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, m.Flow[idxAR], 1e-9)
	assert.InDelta(t, 0.3, m.Flow[idxRB], 1e-9)
}

func TestTabulatedRatingCurveLooksUpActiveTable(t *testing.T) {
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	rc := graphtopo.NodeId{Kind: graphtopo.KindTabulatedRatingCurve, ID: 2, Index: 0}
	term := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 3, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: basinA, To: rc, Kind: graphtopo.LinkFlow},
		graphtopo.LinkMeta{ID: 2, From: rc, To: term, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	s.Basin = newBasinArrays(struct {
		id      int64
		area    float64
		storage float64
	}{1, 100, 200}) // level 2
	s.TabulatedRatingCurve.NodeID = []int64{2}
	s.TabulatedRatingCurve.Tables = [][]store.RatingCurveTable{{
		{Level: []float64{0, 1, 2}, Flow: []float64{0, 5, 10}},
	}}
	s.TabulatedRatingCurve.CurrentTable = []int{0}
	s.Terminal.NodeID = []int64{3}

	layout := rhs.NewLayout(1, 0, 0, 0, 0, 0, 1, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)

	dstate := m.Eval(state, 0)

	assert.InDelta(t, 10, dstate[layout.TabulatedRatingCurveCumulative.Start], 1e-9)
}

func TestPumpClampsLatchedRateToMax(t *testing.T) {
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
	}{1, 100, 1000}) // level 10, well clear of dry/low-storage thresholds
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

	dstate := m.Eval(state, 0)

	assert.InDelta(t, 5, dstate[layout.PumpCumulative.Start], 1e-6)
}

func TestUserDemandSumsMinOfDemandAndAllocationPerPriority(t *testing.T) {
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	ud := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: 2, Index: 0}
	term := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 3, Index: 0}

	g := buildGraph(t,
		graphtopo.LinkMeta{ID: 1, From: basinA, To: ud, Kind: graphtopo.LinkFlow},
		graphtopo.LinkMeta{ID: 2, From: ud, To: term, Kind: graphtopo.LinkFlow},
	)

	s := &store.Store{Graph: g}
	s.Basin = newBasinArrays(struct {
		id      int64
		area    float64
		storage float64
	}{1, 100, 1000})
	s.UserDemand.NodeID = []int64{2}
	s.UserDemand.Priorities = [][]int{{1, 2}}
	s.UserDemand.Demand = [][]*interp.Series{{constSeries(t, 3), constSeries(t, 10)}}
	s.UserDemand.Allocated = [][]float64{{2, 10}} // priority 1 short, priority 2 met
	s.UserDemand.ReturnFactor = []*interp.Series{constSeries(t, 0.5)}
	s.UserDemand.MinLevel = []float64{-1000}
	s.Terminal.NodeID = []int64{3}

	layout := rhs.NewLayout(0, 0, 0, 1, 0, 0, 1, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)

	dstate := m.Eval(state, 0)

	// qIn = min(2,3) + min(10,10) = 12, qOut = 0.5 * 12 = 6.
	assert.InDelta(t, 12, dstate[layout.UserDemandInflowCumulative.Start], 1e-9)
	assert.InDelta(t, 6, dstate[layout.UserDemandOutflowCumulative.Start], 1e-9)
}

func TestPidControlDrivesPumpTowardPositiveError(t *testing.T) {
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
	}{1, 100, 500}) // level 5
	s.Pump.NodeID = []int64{2}
	s.Pump.MinFlowRate = []*interp.Series{constSeries(t, -1000)}
	s.Pump.MaxFlowRate = []*interp.Series{constSeries(t, 1000)}
	s.Pump.MinUpstreamLevel = []*interp.Series{constSeries(t, -1000)}
	s.Pump.MaxDownstreamLevel = []*interp.Series{constSeries(t, -1000)}
	s.Pump.CrestLevel = []float64{0}
	s.Pump.LatchedFlowRate = []float64{0}
	s.Terminal.NodeID = []int64{3}

	s.Pid.NodeID = []int64{4}
	s.Pid.ProportionalGain = []*interp.Series{constSeries(t, 1)}
	s.Pid.IntegralGain = []*interp.Series{constSeries(t, 0)}
	s.Pid.DerivativeGain = []*interp.Series{constSeries(t, 0)}
	s.Pid.TargetLevel = []*interp.Series{constSeries(t, 7)} // above current level of 5: positive error
	s.Pid.ControlledNode = []int64{2}
	s.Pid.ListenedBasin = []int64{1}
	s.Pid.IntegralStateIdx = []int{0}

	layout := rhs.NewLayout(0, 1, 0, 0, 0, 0, 1, 1)
	s.Pid.IntegralStateIdx[0] += layout.PidIntegral.Start // absolute state index, as the drivers set it
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)

	dstate := m.Eval(state, 0)

	// errVal = target(7) - level(5) = 2; with Kp=1, Ki=Kd=0 and phi/D == 1,
	// the PID overwrite should drive the pump to +2.
	assert.InDelta(t, 2, dstate[layout.PumpCumulative.Start], 1e-6)
	// The integral state's own derivative tracks the raw error.
	assert.InDelta(t, 2, dstate[layout.PidIntegral.Start], 1e-9)
}
