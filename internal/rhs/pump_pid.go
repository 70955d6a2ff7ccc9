package rhs

import (
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/smoothing"
	"ribasimcore/internal/store"
)

// evalPumpOutlet computes the flow for every node in arrays (shared
// shape for Pump and Outlet), writing it to both the cumulative state
// and the dense flow vector. isOutlet additionally applies the
// crest-freeboard smoothing factor.
func (m *Model) evalPumpOutlet(
	arrays *store.PumpOutletArrays,
	minFlow, maxFlow, minUpstream, maxDownstream, actualFlow []float64,
	cumRange Range,
	dstate []float64,
	isOutlet bool,
) {
	kind := graphtopo.KindPump
	if isOutlet {
		kind = graphtopo.KindOutlet
	}

	for i, id := range arrays.NodeID {
		node := graphtopo.NodeId{Kind: kind, ID: id, Index: i}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}
		out, err := m.Graph.OutflowLink(node)
		if err != nil {
			continue
		}

		q := arrays.LatchedFlowRate[i]

		phiLow := m.phiLowFor(in.From)
		sourceLevel := m.basinOrBoundaryLevel(in.From)
		phiDryDownstream := smoothing.Dry(sourceLevel - maxDownstream[i])

		q *= phiLow * phiDryDownstream
		if isOutlet {
			q *= smoothing.Dry(sourceLevel - arrays.CrestLevel[i])
		}

		q = clamp(q, minFlow[i], maxFlow[i])

		actualFlow[i] = q
		cumRange.setDstate(dstate, i, q)
		m.setFlow(in.From, node, q)
		m.setFlow(node, out.To, q)
	}
}

// evalPid applies the PID continuous-control overwrite (spec §4.5),
// which replaces whatever rate the controlled pump/outlet just wrote
// and adjusts the state entries of the basins connected to it.
func (m *Model) evalPid(state, dstate []float64) {
	s := &m.Store.Pid
	for i := range s.NodeID {
		basinID := s.ListenedBasin[i]
		basinIndex := m.basinIndexByID(basinID)
		if basinIndex < 0 {
			continue
		}

		level := m.State.BasinLevel[basinIndex]
		area := m.State.BasinArea[basinIndex]
		target := m.Time.PidTargetLevel[i]
		targetDeriv := m.Time.PidTargetDerivative[i]

		errVal := target - level
		integralIdx := s.IntegralStateIdx[i]
		m.Layout.PidIntegral.setDstate(dstate, integralIdx-m.Layout.PidIntegral.Start, errVal)
		integral := state[integralIdx]

		kp := m.Time.PidProportionalGain[i]
		ki := m.Time.PidIntegralGain[i]
		kd := m.Time.PidDerivativeGain[i]

		controlledID := s.ControlledNode[i]
		pumpIdx, outletIdx, controlledKind := m.pumpOrOutletIndexByID(controlledID)
		if controlledKind == graphtopo.KindUnspecified {
			continue
		}

		node := graphtopo.NodeId{Kind: controlledKind, ID: controlledID}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}
		out, err := m.Graph.OutflowLink(node)
		if err != nil {
			continue
		}

		var minFlow, maxFlow float64
		var isOutlet bool
		if controlledKind == graphtopo.KindPump {
			minFlow = m.Time.PumpMinFlowRate[pumpIdx]
			maxFlow = m.Time.PumpMaxFlowRate[pumpIdx]
		} else {
			minFlow = m.Time.OutletMinFlowRate[outletIdx]
			maxFlow = m.Time.OutletMaxFlowRate[outletIdx]
			isOutlet = true
		}

		// φ_low/φ_dry are evaluated at the controlled node's actual flow
		// source (in.From), not the listened basin — the two differ
		// whenever the pump draws from a node other than the one it
		// regulates (spec.md §8 scenario 3).
		phi := m.phiLowFor(in.From)
		sourceLevel := m.basinOrBoundaryLevel(in.From)
		if isOutlet {
			phi *= smoothing.Dry(sourceLevel - m.Store.Outlet.CrestLevel[outletIdx])
		}

		if area <= 0 {
			area = 1
		}
		denom := 1 - kd*phi/area
		if denom == 0 {
			denom = 1e-9
		}
		if m.PidDerivativeFloor && denom < 1e-6 {
			denom = 1e-6
		}

		preOverwriteNetDstate := m.basinNetDstate(dstate, basinIndex, basinID)
		q := phi / denom * (kp*errVal + ki*integral + kd*(targetDeriv-preOverwriteNetDstate/area))
		q = clamp(q, minFlow, maxFlow)

		if controlledKind == graphtopo.KindPump {
			m.Layout.PumpCumulative.setDstate(dstate, pumpIdx, q)
		} else {
			m.Layout.OutletCumulative.setDstate(dstate, outletIdx, q)
		}
		m.setFlow(in.From, node, q)
		m.setFlow(node, out.To, q)
	}
}

func (m *Model) basinIndexByID(id int64) int {
	for i, nid := range m.Store.Basin.NodeID {
		if nid == id {
			return i
		}
	}
	return -1
}

func (m *Model) pumpOrOutletIndexByID(id int64) (pumpIdx, outletIdx int, kind graphtopo.NodeKind) {
	for i, nid := range m.Store.Pump.NodeID {
		if nid == id {
			return i, -1, graphtopo.KindPump
		}
	}
	for i, nid := range m.Store.Outlet.NodeID {
		if nid == id {
			return -1, i, graphtopo.KindOutlet
		}
	}
	return -1, -1, graphtopo.KindUnspecified
}
