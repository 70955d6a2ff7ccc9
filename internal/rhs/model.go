package rhs

import (
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

// Model bundles everything one RHS evaluation needs: the frozen graph,
// the parameter store, the state layout, the two mutable caches, and
// the dense flow vector every hydraulic node kind writes into.
type Model struct {
	Graph  *graphtopo.Graph
	Store  *store.Store
	Layout *Layout
	Time   *store.TimeCache
	State  *store.StateCache
	Flow   []float64

	PidDerivativeFloor bool
}

// NewModel preallocates the flow vector and the two caches.
func NewModel(g *graphtopo.Graph, s *store.Store, layout *Layout) *Model {
	return &Model{
		Graph:  g,
		Store:  s,
		Layout: layout,
		Time:   store.NewTimeCache(s),
		State:  store.NewStateCache(s),
		Flow:   make([]float64, g.NumFlows()),
	}
}

// cumulativeSlot returns the Layout range and within-range offset that
// owns the ODE state for a hydraulic node of the given kind and dense
// index, or ok=false for node kinds that do not own cumulative state
// (Terminal, Junction, LevelBoundary, FlowBoundary, the control kinds).
func (m *Model) cumulativeSlot(kind graphtopo.NodeKind, index int) (Range, int, bool) {
	switch kind {
	case graphtopo.KindTabulatedRatingCurve:
		return m.Layout.TabulatedRatingCurveCumulative, index, true
	case graphtopo.KindPump:
		return m.Layout.PumpCumulative, index, true
	case graphtopo.KindOutlet:
		return m.Layout.OutletCumulative, index, true
	case graphtopo.KindLinearResistance:
		return m.Layout.LinearResistanceCumulative, index, true
	case graphtopo.KindManningResistance:
		return m.Layout.ManningResistanceCumulative, index, true
	default:
		return Range{}, 0, false
	}
}

// basinStorage reconstructs basin i's current storage from the reduced
// state: initial storage, plus every incident hydraulic cumulative
// flow (signed by direction), plus this basin's own vertical-flux,
// evaporation, and infiltration cumulatives.
func (m *Model) basinStorage(state []float64, basinIndex int, basinID int64) float64 {
	s := m.Store
	storage := s.Basin.InitialStorage[basinIndex]
	node := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: basinID, Index: basinIndex}

	for _, link := range m.Graph.InflowLinks(node) {
		if link.From.Kind == graphtopo.KindUserDemand {
			// Basin <- UserDemand is the return flow.
			storage += m.Layout.UserDemandOutflowCumulative.At(state, link.From.Index)
			continue
		}
		if rng, idx, ok := m.cumulativeSlot(link.From.Kind, link.From.Index); ok {
			storage += rng.At(state, idx)
		}
	}
	for _, link := range m.Graph.OutflowLinks(node) {
		if link.To.Kind == graphtopo.KindUserDemand {
			// Basin -> UserDemand is the abstraction.
			storage -= m.Layout.UserDemandInflowCumulative.At(state, link.To.Index)
			continue
		}
		if rng, idx, ok := m.cumulativeSlot(link.To.Kind, link.To.Index); ok {
			storage -= rng.At(state, idx)
		}
	}

	storage += m.Layout.BasinVerticalInflowCumulative.At(state, basinIndex)
	storage -= m.Layout.EvaporationCumulative.At(state, basinIndex)
	storage -= m.Layout.InfiltrationCumulative.At(state, basinIndex)
	return storage
}

// basinNetDstate sums the signed dstate contributions already written
// by the vertical-flux and hydraulic passes for one basin, i.e. its
// storage derivative before any PID overwrite. This mirrors
// basinStorage's traversal but reads dstate (instantaneous flows)
// rather than state (cumulative totals).
func (m *Model) basinNetDstate(dstate []float64, basinIndex int, basinID int64) float64 {
	node := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: basinID, Index: basinIndex}
	net := m.Layout.BasinVerticalInflowCumulative.At(dstate, basinIndex)
	net -= m.Layout.EvaporationCumulative.At(dstate, basinIndex)
	net -= m.Layout.InfiltrationCumulative.At(dstate, basinIndex)

	for _, link := range m.Graph.InflowLinks(node) {
		if link.From.Kind == graphtopo.KindUserDemand {
			net += m.Layout.UserDemandOutflowCumulative.At(dstate, link.From.Index)
			continue
		}
		if rng, idx, ok := m.cumulativeSlot(link.From.Kind, link.From.Index); ok {
			net += rng.At(dstate, idx)
		}
	}
	for _, link := range m.Graph.OutflowLinks(node) {
		if link.To.Kind == graphtopo.KindUserDemand {
			net -= m.Layout.UserDemandInflowCumulative.At(dstate, link.To.Index)
			continue
		}
		if rng, idx, ok := m.cumulativeSlot(link.To.Kind, link.To.Index); ok {
			net -= rng.At(dstate, idx)
		}
	}
	return net
}
