package graphtopo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/apperror"
	"ribasimcore/internal/graphtopo"
)

func twoBasinLinearResistance(t *testing.T) *graphtopo.Graph {
	t.Helper()
	b := graphtopo.NewBuilder()
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1, Index: 0}
	basinB := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 2, Index: 1}
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3, Index: 0}

	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 1, From: basinA, To: resistor, Kind: graphtopo.LinkFlow}))
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 2, From: resistor, To: basinB, Kind: graphtopo.LinkFlow}))

	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestFlowIndexDenseAndStable(t *testing.T) {
	g := twoBasinLinearResistance(t)
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3}
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1}
	basinB := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 2}

	i1, err := g.FlowIndex(basinA, resistor)
	require.NoError(t, err)
	i2, err := g.FlowIndex(resistor, basinB)
	require.NoError(t, err)
	assert.NotEqual(t, i1, i2)
	assert.Equal(t, 2, g.NumFlows())
}

func TestInflowOutflowLinkSingleNeighbour(t *testing.T) {
	g := twoBasinLinearResistance(t)
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3}

	in, err := g.InflowLink(resistor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), in.From.ID)

	out, err := g.OutflowLink(resistor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.To.ID)
}

func TestBadNeighbourCountErrors(t *testing.T) {
	b := graphtopo.NewBuilder()
	resistor := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: 3}
	basinA := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1}
	basinB := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 2}

	require.NoError(t, b.AddLink(graphtopo.LinkMeta{From: basinA, To: resistor, Kind: graphtopo.LinkFlow}))
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{From: basinB, To: resistor, Kind: graphtopo.LinkFlow}))
	g, err := b.Build()
	require.NoError(t, err)

	_, err = g.OutflowLink(resistor)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeBadNeighbourCount, appErr.Code)
}

func TestDuplicateLinkRejected(t *testing.T) {
	b := graphtopo.NewBuilder()
	a := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: 1}
	c := graphtopo.NodeId{Kind: graphtopo.KindTerminal, ID: 2}

	require.NoError(t, b.AddLink(graphtopo.LinkMeta{From: a, To: c, Kind: graphtopo.LinkFlow}))
	err := b.AddLink(graphtopo.LinkMeta{From: a, To: c, Kind: graphtopo.LinkFlow})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeDuplicateLink, appErr.Code)
}

func TestNeighboursByKindSortedDeterministically(t *testing.T) {
	b := graphtopo.NewBuilder()
	discrete := graphtopo.NodeId{Kind: graphtopo.KindDiscreteControl, ID: 1}
	pumpB := graphtopo.NodeId{Kind: graphtopo.KindPump, ID: 9}
	pumpA := graphtopo.NodeId{Kind: graphtopo.KindPump, ID: 2}

	require.NoError(t, b.AddLink(graphtopo.LinkMeta{From: discrete, To: pumpB, Kind: graphtopo.LinkControl}))
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{From: discrete, To: pumpA, Kind: graphtopo.LinkControl}))
	g, err := b.Build()
	require.NoError(t, err)

	neighbours := g.NeighboursByKind(discrete, graphtopo.LinkControl)
	require.Len(t, neighbours, 2)
	assert.Equal(t, int64(2), neighbours[0].ID)
	assert.Equal(t, int64(9), neighbours[1].ID)
}
