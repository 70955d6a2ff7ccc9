package rhs

import "ribasimcore/internal/graphtopo"

// ListenValue resolves a compound variable's listened-node value for the
// control subsystem (internal/control.VariableReader), dispatching the
// same way basinOrBoundaryLevel does for the hydraulic flows themselves
// plus the two cases control listening needs that the RHS never did on
// its own: a boundary's raw series read ahead by lookAhead (spec.md
// §4.5's anticipatory control), and a structure node's current flow
// rate for listen terms that track a flow instead of a level.
func (m *Model) ListenValue(node graphtopo.NodeId, lookAhead, t float64) float64 {
	switch node.Kind {
	case graphtopo.KindBasin:
		if node.Index < len(m.State.BasinLevel) {
			return m.State.BasinLevel[node.Index]
		}
		return 0
	case graphtopo.KindLevelBoundary:
		s := &m.Store.LevelBoundary
		if node.Index < len(s.Level) && s.Level[node.Index] != nil {
			return s.Level[node.Index].At(t + lookAhead)
		}
		return 0
	case graphtopo.KindFlowBoundary:
		s := &m.Store.FlowBoundary
		if node.Index < len(s.Flow) && s.Flow[node.Index] != nil {
			return s.Flow[node.Index].At(t + lookAhead)
		}
		return 0
	default:
		return m.listenFlow(node)
	}
}

// listenFlow returns the current flow on node's single incident flow
// link, preferring its inflow link (the link carrying water into node)
// and falling back to its outflow link; structure nodes with neither
// (e.g. a node not yet flowed through this call) read as zero.
func (m *Model) listenFlow(node graphtopo.NodeId) float64 {
	if link, err := m.Graph.InflowLink(node); err == nil {
		if idx, err := m.Graph.FlowIndex(link.From, link.To); err == nil {
			return m.Flow[idx]
		}
	}
	if link, err := m.Graph.OutflowLink(node); err == nil {
		if idx, err := m.Graph.FlowIndex(link.From, link.To); err == nil {
			return m.Flow[idx]
		}
	}
	return 0
}
