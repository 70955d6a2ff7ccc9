package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/rhs"
	"ribasimcore/internal/store"
)

func buildTestModel(t *testing.T) (*rhs.Model, []float64) {
	t.Helper()

	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	basinB := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 2, Index: 1}
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3, Index: 0}

	b := graphtopo.NewBuilder()
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 1, From: basinA, To: resistor, Kind: graphtopo.LinkFlow}))
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 2, From: resistor, To: basinB, Kind: graphtopo.LinkFlow}))
	g, err := b.Build()
	require.NoError(t, err)

	s := &store.Store{Graph: g}
	s.Basin.NodeID = []int64{1, 2}
	s.Basin.ProfileLevel = [][]float64{{0, 100}, {0, 100}}
	s.Basin.ProfileArea = [][]float64{{100, 100}, {100, 100}}
	s.Basin.InitialStorage = []float64{500, 200}
	s.Basin.Precipitation = []*interp.Series{nil, nil}
	s.Basin.SurfaceRunoff = []*interp.Series{nil, nil}
	s.Basin.Drainage = []*interp.Series{nil, nil}
	s.Basin.Evaporation = []*interp.Series{nil, nil}
	s.Basin.Infiltration = []*interp.Series{nil, nil}
	s.LinearResistance.NodeID = []int64{3}
	s.LinearResistance.Resistance = []float64{10}
	s.LinearResistance.MaxFlow = []float64{1000}

	layout := rhs.NewLayout(0, 0, 0, 0, 1, 0, 2, 0)
	m := rhs.NewModel(g, s, layout)
	state := make([]float64, layout.Size)
	m.Eval(state, 0)
	return m, state
}

func TestFlowResultsAtReportsEveryFlowLink(t *testing.T) {
	m, _ := buildTestModel(t)
	rows := flowResultsAt(m, 10)
	require.Len(t, rows, 2)
	assert.Equal(t, 10.0, rows[0].Time)
}

func TestBasinResultsAtReportsStorageAndFlow(t *testing.T) {
	m, state := buildTestModel(t)
	rows := basinResultsAt(m, state, 0)
	require.Len(t, rows, 2)
	assert.InDelta(t, 500, rows[0].Storage, 1e-9)
	assert.InDelta(t, 0.3, rows[0].Outflow, 1e-9)
	assert.Equal(t, 0.0, rows[0].BalanceError)
}
