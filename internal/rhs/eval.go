package rhs

import (
	"math"

	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/smoothing"
)

// Eval computes dstate for the given (state, t), following spec §4.3's
// seven-step order: reset, cache refresh, basin properties, vertical
// fluxes, hydraulic flows in a fixed per-kind order, basin accumulation
// (folded into the cumulative-state design, see model.go), then the PID
// overwrite.
func (m *Model) Eval(state []float64, t float64) []float64 {
	dstate := make([]float64, m.Layout.Size)

	// Step 2: refresh caches.
	m.Time.Refresh(m.Store, t)
	if m.State.Stale(state, t) {
		m.refreshStateCache(state, t)
	}

	// Step 4: vertical fluxes and evaporation/infiltration.
	m.evalVerticalFluxes(dstate)

	// Step 5: hydraulic flows, fixed dispatch order.
	m.evalLinearResistance(state, dstate)
	m.evalManningResistance(dstate)
	m.evalTabulatedRatingCurve(state, dstate)
	m.evalPumpOutlet(&m.Store.Pump, m.Time.PumpMinFlowRate, m.Time.PumpMaxFlowRate,
		m.Time.PumpMinUpstreamLevel, m.Time.PumpMaxDownstreamLevel, m.State.PumpActualFlow,
		m.Layout.PumpCumulative, dstate, false)
	m.evalPumpOutlet(&m.Store.Outlet, m.Time.OutletMinFlowRate, m.Time.OutletMaxFlowRate,
		m.Time.OutletMinUpstreamLevel, m.Time.OutletMaxDownstreamLevel, m.State.OutletActualFlow,
		m.Layout.OutletCumulative, dstate, true)
	m.evalUserDemand(dstate)

	// Step 7: PID overwrite, last so it wins over any rate written above.
	m.evalPid(state, dstate)

	return dstate
}

func (m *Model) refreshStateCache(state []float64, t float64) {
	s := m.Store
	for i, id := range s.Basin.NodeID {
		storage := m.basinStorage(state, i, id)
		level, area := s.Basin.LevelAreaAt(i, storage)
		m.State.BasinLevel[i] = level
		m.State.BasinArea[i] = area
		m.State.BasinLowStorage[i] = smoothing.LowStorage(storage)
	}
	m.State.MarkFresh(state, t)
}

func (m *Model) evalVerticalFluxes(dstate []float64) {
	s := m.Store
	for i := range s.Basin.NodeID {
		depth := 0.0
		if i < len(m.State.BasinLevel) && i < len(s.Basin.ProfileLevel) && len(s.Basin.ProfileLevel[i]) > 0 {
			depth = m.State.BasinLevel[i] - s.Basin.ProfileLevel[i][0]
		}
		phiDry := smoothing.Dry(depth)

		netInflow := m.Time.BasinPrecipitation[i] + m.Time.BasinSurfaceRunoff[i] + m.Time.BasinDrainage[i]
		m.Layout.BasinVerticalInflowCumulative.setDstate(dstate, i, netInflow)

		evap := m.Time.BasinEvaporation[i] * phiDry
		infil := m.Time.BasinInfiltration[i] * phiDry
		m.Layout.EvaporationCumulative.setDstate(dstate, i, evap)
		m.Layout.InfiltrationCumulative.setDstate(dstate, i, infil)
	}
}

// setDstate writes v as the derivative of the i-th cumulative entry in
// r. Cumulative state is, by construction, the running integral of its
// own flow, so dstate[r.Start+i] is simply the flow value.
func (r Range) setDstate(dstate []float64, i int, v float64) {
	dstate[r.Start+i] = v
}

func (m *Model) evalLinearResistance(state []float64, dstate []float64) {
	s := &m.Store.LinearResistance
	for i, id := range s.NodeID {
		node := graphtopo.NodeId{Kind: graphtopo.KindLinearResistance, ID: id, Index: i}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}
		out, err := m.Graph.OutflowLink(node)
		if err != nil {
			continue
		}

		ha := m.basinOrBoundaryLevel(in.From)
		hb := m.basinOrBoundaryLevel(out.To)

		qRaw := (ha - hb) / s.Resistance[i]
		qMax := s.MaxFlow[i]
		q := clamp(qRaw, -qMax, qMax)

		phi := 1.0
		if q >= 0 {
			phi = m.phiLowFor(in.From)
		} else {
			phi = m.phiLowFor(out.To)
		}
		q *= phi

		m.Layout.LinearResistanceCumulative.setDstate(dstate, i, q)
		m.setFlow(in.From, node, q)
		m.setFlow(node, out.To, q)
	}
}

func (m *Model) evalManningResistance(dstate []float64) {
	const k = 1000.0
	const eps = 1e-200
	s := &m.Store.ManningResistance
	for i, id := range s.NodeID {
		node := graphtopo.NodeId{Kind: graphtopo.KindManningResistance, ID: id, Index: i}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}
		out, err := m.Graph.OutflowLink(node)
		if err != nil {
			continue
		}

		ha := m.basinOrBoundaryLevel(in.From)
		hb := m.basinOrBoundaryLevel(out.To)

		da := ha - s.BottomA[i]
		db := hb - s.BottomB[i]
		d := (da + db) / 2

		w, slope := s.ProfileWidth[i], s.ProfileSlope[i]
		areaA := w*d + slope*da*da
		areaB := w*d + slope*db*db
		area := (areaA + areaB) / 2

		wet := math.Sqrt(slope*slope + 1)
		pa := w + 2*da*wet
		pb := w + 2*db*wet
		var rh float64
		if pa > 0 && pb > 0 {
			rh = (areaA/pa + areaB/pb) / 2
		}

		dh := ha - hb
		surrogate := dh/s.Length[i]*(2/math.Pi)*math.Atan(k*dh) + eps
		var sqrtTerm float64
		if surrogate > 0 {
			sqrtTerm = math.Sqrt(surrogate)
		}
		q := sign(dh) * (area / s.Roughness[i]) * math.Pow(rh, 2.0/3.0) * sqrtTerm

		m.Layout.ManningResistanceCumulative.setDstate(dstate, i, q)
		m.setFlow(in.From, node, q)
		m.setFlow(node, out.To, q)
	}
}

func (m *Model) evalTabulatedRatingCurve(state []float64, dstate []float64) {
	s := &m.Store.TabulatedRatingCurve
	for i, id := range s.NodeID {
		node := graphtopo.NodeId{Kind: graphtopo.KindTabulatedRatingCurve, ID: id, Index: i}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}
		out, err := m.Graph.OutflowLink(node)
		if err != nil {
			continue
		}

		hUp := m.basinOrBoundaryLevel(in.From)
		table := s.Tables[i][s.CurrentTable[i]]
		q := m.phiLowFor(in.From) * table.Eval(hUp)

		m.Layout.TabulatedRatingCurveCumulative.setDstate(dstate, i, q)
		m.setFlow(in.From, node, q)
		m.setFlow(node, out.To, q)
	}
}

func (m *Model) evalUserDemand(dstate []float64) {
	s := &m.Store.UserDemand
	for i, id := range s.NodeID {
		node := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: id, Index: i}
		in, err := m.Graph.InflowLink(node)
		if err != nil {
			continue
		}

		var qIn float64
		for p := range s.Priorities[i] {
			allocated := s.Allocated[i][p]
			demand := m.Time.UserDemandCurrent[i][p]
			qIn += math.Min(allocated, demand)
		}

		phiLow := m.phiLowFor(in.From)
		phiDry := m.phiDryFor(in.From, s.MinLevel[i])
		qIn *= phiLow * phiDry

		qOut := m.Time.UserDemandReturnFactor[i] * qIn

		m.Layout.UserDemandInflowCumulative.setDstate(dstate, i, qIn)
		m.Layout.UserDemandOutflowCumulative.setDstate(dstate, i, qOut)
		m.setFlow(in.From, node, qIn)

		for _, out := range m.Graph.OutflowLinks(node) {
			m.setFlow(node, out.To, qOut)
		}
	}
}

// basinOrBoundaryLevel returns the level at a node, whether it is a
// Basin (from the state-and-time cache) or a LevelBoundary (from the
// time cache).
func (m *Model) basinOrBoundaryLevel(n graphtopo.NodeId) float64 {
	switch n.Kind {
	case graphtopo.KindBasin:
		return m.State.BasinLevel[n.Index]
	case graphtopo.KindLevelBoundary:
		return m.Time.LevelBoundaryLevel[n.Index]
	default:
		return 0
	}
}

// phiLowFor returns the low-storage smoothing factor associated with
// node n if it is a Basin (draining basins are smoothed near empty);
// non-basin nodes (boundaries) never run dry in this model, so 1.
func (m *Model) phiLowFor(n graphtopo.NodeId) float64 {
	if n.Kind == graphtopo.KindBasin {
		return m.State.BasinLowStorage[n.Index]
	}
	return 1.0
}

// phiDryFor returns the depth-based smoothing factor for node n against
// minLevel, used by UserDemand and Outlet flows.
func (m *Model) phiDryFor(n graphtopo.NodeId, minLevel float64) float64 {
	level := m.basinOrBoundaryLevel(n)
	return smoothing.Dry(level - minLevel)
}

func (m *Model) setFlow(from, to graphtopo.NodeId, q float64) {
	idx, err := m.Graph.FlowIndex(from, to)
	if err != nil {
		return
	}
	m.Flow[idx] = q
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}
