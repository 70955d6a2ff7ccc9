package allocation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/allocation"
	"ribasimcore/internal/allocation/simplex"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// One source of 10 m3/s, two users priority {1: demand 6, 2: demand 8}:
// spec.md §8 scenario 5 expects user 1 = 6, user 2 = 4.
func TestRunnerAllocatesByPriorityAcrossSubnetwork(t *testing.T) {
	b := graphtopo.NewBuilder()
	source := graphtopo.NodeId{Kind: graphtopo.KindFlowBoundary, ID: 1, Index: 0}
	user1 := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: 2, Index: 0}
	user2 := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: 3, Index: 1}

	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 1, From: source, To: user1, Kind: graphtopo.LinkFlow, Subnetwork: 1}))
	require.NoError(t, b.AddLink(graphtopo.LinkMeta{ID: 2, From: source, To: user2, Kind: graphtopo.LinkFlow, Subnetwork: 1}))
	g, err := b.Build()
	require.NoError(t, err)

	demand1, err := interp.NewSeries([]float64{0, 100}, []float64{6, 6}, interp.MethodConstant, interp.ExtrapConstant)
	require.NoError(t, err)
	demand2, err := interp.NewSeries([]float64{0, 100}, []float64{8, 8}, interp.MethodConstant, interp.ExtrapConstant)
	require.NoError(t, err)

	s := &store.Store{}
	s.UserDemand.NodeID = []int64{2, 3}
	s.UserDemand.Priorities = [][]int{{1}, {2}}
	s.UserDemand.Demand = [][]*interp.Series{{demand1}, {demand2}}
	s.UserDemand.Allocated = [][]float64{{0}, {0}}

	runner := &allocation.Runner{Graph: g, Store: s, Solver: simplex.New()}
	inflows := []allocation.SourceInflow{{Node: source, Mean: 10}}

	records, err := runner.Run(context.Background(), 0, inflows, uuid.New())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.InDelta(t, 6, s.UserDemand.Allocated[0][0], 1e-6)
	assert.InDelta(t, 4, s.UserDemand.Allocated[1][0], 1e-6)
}
