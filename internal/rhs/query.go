package rhs

import "ribasimcore/internal/graphtopo"

// BasinStorage exposes the reduced state's storage reconstruction to
// callers outside this package: the CLI's periodic-save writer and its
// negative-storage guard both need a basin's current volume, not just
// its level.
func (m *Model) BasinStorage(state []float64, basinIndex int) float64 {
	return m.basinStorage(state, basinIndex, m.Store.Basin.NodeID[basinIndex])
}

// BasinFlows sums the current flow vector over basinIndex's incident
// links, split into inflow and outflow, for the periodic-save output
// table (spec.md §4.7's per-basin inflow/outflow columns).
func (m *Model) BasinFlows(basinIndex int) (inflow, outflow float64) {
	id := m.Store.Basin.NodeID[basinIndex]
	node := graphtopo.NodeId{Kind: graphtopo.KindBasin, ID: id, Index: basinIndex}
	for _, link := range m.Graph.InflowLinks(node) {
		if idx, err := m.Graph.FlowIndex(link.From, link.To); err == nil {
			inflow += m.Flow[idx]
		}
	}
	for _, link := range m.Graph.OutflowLinks(node) {
		if idx, err := m.Graph.FlowIndex(link.From, link.To); err == nil {
			outflow += m.Flow[idx]
		}
	}
	return inflow, outflow
}
