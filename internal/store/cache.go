package store

import "ribasimcore/internal/interp"

// TimeCache holds every value that depends only on t: refreshed once
// per distinct t seen by RHS, independent of the current state vector.
type TimeCache struct {
	tPrevCall float64
	valid     bool

	BasinPrecipitation []float64
	BasinSurfaceRunoff []float64
	BasinDrainage      []float64
	BasinEvaporation   []float64
	BasinInfiltration  []float64

	FlowBoundaryFlow []float64
	LevelBoundaryLevel []float64

	PumpMinFlowRate []float64
	PumpMaxFlowRate []float64
	PumpMinUpstreamLevel []float64
	PumpMaxDownstreamLevel []float64

	OutletMinFlowRate []float64
	OutletMaxFlowRate []float64
	OutletMinUpstreamLevel []float64
	OutletMaxDownstreamLevel []float64

	PidProportionalGain []float64
	PidIntegralGain     []float64
	PidDerivativeGain   []float64
	PidTargetLevel      []float64
	PidTargetDerivative []float64

	UserDemandCurrent [][]float64 // per node, per priority
	UserDemandReturnFactor []float64
}

// NewTimeCache preallocates a TimeCache sized for s; buffers never grow
// after this.
func NewTimeCache(s *Store) *TimeCache {
	c := &TimeCache{tPrevCall: -1}
	n := s.Basin.Len()
	c.BasinPrecipitation = make([]float64, n)
	c.BasinSurfaceRunoff = make([]float64, n)
	c.BasinDrainage = make([]float64, n)
	c.BasinEvaporation = make([]float64, n)
	c.BasinInfiltration = make([]float64, n)

	c.FlowBoundaryFlow = make([]float64, len(s.FlowBoundary.NodeID))
	c.LevelBoundaryLevel = make([]float64, len(s.LevelBoundary.NodeID))

	c.PumpMinFlowRate = make([]float64, len(s.Pump.NodeID))
	c.PumpMaxFlowRate = make([]float64, len(s.Pump.NodeID))
	c.PumpMinUpstreamLevel = make([]float64, len(s.Pump.NodeID))
	c.PumpMaxDownstreamLevel = make([]float64, len(s.Pump.NodeID))

	c.OutletMinFlowRate = make([]float64, len(s.Outlet.NodeID))
	c.OutletMaxFlowRate = make([]float64, len(s.Outlet.NodeID))
	c.OutletMinUpstreamLevel = make([]float64, len(s.Outlet.NodeID))
	c.OutletMaxDownstreamLevel = make([]float64, len(s.Outlet.NodeID))

	c.PidProportionalGain = make([]float64, len(s.Pid.NodeID))
	c.PidIntegralGain = make([]float64, len(s.Pid.NodeID))
	c.PidDerivativeGain = make([]float64, len(s.Pid.NodeID))
	c.PidTargetLevel = make([]float64, len(s.Pid.NodeID))
	c.PidTargetDerivative = make([]float64, len(s.Pid.NodeID))

	c.UserDemandCurrent = make([][]float64, len(s.UserDemand.NodeID))
	for i, priorities := range s.UserDemand.Priorities {
		c.UserDemandCurrent[i] = make([]float64, len(priorities))
	}
	c.UserDemandReturnFactor = make([]float64, len(s.UserDemand.NodeID))

	return c
}

// Refresh recomputes every entry for the given t, unless t equals the
// cache's last seen time (memoisation per spec.md's lifecycle section).
func (c *TimeCache) Refresh(s *Store, t float64) {
	if c.valid && c.tPrevCall == t {
		return
	}
	c.tPrevCall = t
	c.valid = true

	for i := range s.Basin.NodeID {
		c.BasinPrecipitation[i] = evalOrZero(s.Basin.Precipitation[i], t)
		c.BasinSurfaceRunoff[i] = evalOrZero(s.Basin.SurfaceRunoff[i], t)
		c.BasinDrainage[i] = evalOrZero(s.Basin.Drainage[i], t)
		c.BasinEvaporation[i] = evalOrZero(s.Basin.Evaporation[i], t)
		c.BasinInfiltration[i] = evalOrZero(s.Basin.Infiltration[i], t)
	}
	for i := range s.FlowBoundary.NodeID {
		c.FlowBoundaryFlow[i] = evalOrZero(s.FlowBoundary.Flow[i], t)
	}
	for i := range s.LevelBoundary.NodeID {
		c.LevelBoundaryLevel[i] = evalOrZero(s.LevelBoundary.Level[i], t)
	}
	for i := range s.Pump.NodeID {
		c.PumpMinFlowRate[i] = evalOrZero(s.Pump.MinFlowRate[i], t)
		c.PumpMaxFlowRate[i] = evalOrZero(s.Pump.MaxFlowRate[i], t)
		c.PumpMinUpstreamLevel[i] = evalOrZero(s.Pump.MinUpstreamLevel[i], t)
		c.PumpMaxDownstreamLevel[i] = evalOrZero(s.Pump.MaxDownstreamLevel[i], t)
	}
	for i := range s.Outlet.NodeID {
		c.OutletMinFlowRate[i] = evalOrZero(s.Outlet.MinFlowRate[i], t)
		c.OutletMaxFlowRate[i] = evalOrZero(s.Outlet.MaxFlowRate[i], t)
		c.OutletMinUpstreamLevel[i] = evalOrZero(s.Outlet.MinUpstreamLevel[i], t)
		c.OutletMaxDownstreamLevel[i] = evalOrZero(s.Outlet.MaxDownstreamLevel[i], t)
	}
	for i := range s.Pid.NodeID {
		c.PidProportionalGain[i] = evalOrZero(s.Pid.ProportionalGain[i], t)
		c.PidIntegralGain[i] = evalOrZero(s.Pid.IntegralGain[i], t)
		c.PidDerivativeGain[i] = evalOrZero(s.Pid.DerivativeGain[i], t)
		c.PidTargetLevel[i] = evalOrZero(s.Pid.TargetLevel[i], t)
		if s.Pid.TargetLevel[i] != nil {
			c.PidTargetDerivative[i] = s.Pid.TargetLevel[i].Derivative(t)
		}
	}
	for i, priorities := range s.UserDemand.Demand {
		for p, series := range priorities {
			c.UserDemandCurrent[i][p] = evalOrZero(series, t)
		}
		c.UserDemandReturnFactor[i] = evalOrZero(s.UserDemand.ReturnFactor[i], t)
	}
}

// evalOrZero takes the concrete *interp.Series type rather than an
// interface: a nil *interp.Series boxed into an interface parameter is
// itself a non-nil interface value, so an interface-typed nil check
// here would never fire for the very series the caller means to skip.
func evalOrZero(s *interp.Series, t float64) float64 {
	if s == nil {
		return 0
	}
	return s.At(t)
}

// StateCache holds every value that depends on (state, t): current
// basin level/area, the low-storage factor, and actual structure flow
// rates. It memoises its last (state, t) pair.
type StateCache struct {
	tPrev     float64
	statePrev []float64
	valid     bool

	BasinLevel    []float64
	BasinArea     []float64
	BasinLowStorage []float64 // phi_low per basin

	PumpActualFlow   []float64
	OutletActualFlow []float64
}

// NewStateCache preallocates a StateCache sized for s.
func NewStateCache(s *Store) *StateCache {
	return &StateCache{
		tPrev:           -1,
		BasinLevel:      make([]float64, s.Basin.Len()),
		BasinArea:       make([]float64, s.Basin.Len()),
		BasinLowStorage: make([]float64, s.Basin.Len()),
		PumpActualFlow:  make([]float64, len(s.Pump.NodeID)),
		OutletActualFlow: make([]float64, len(s.Outlet.NodeID)),
	}
}

// Stale reports whether (state, t) differs from the last refresh.
func (c *StateCache) Stale(state []float64, t float64) bool {
	if !c.valid || c.tPrev != t || len(c.statePrev) != len(state) {
		return true
	}
	for i, v := range state {
		if c.statePrev[i] != v {
			return true
		}
	}
	return false
}

// MarkFresh records (state, t) as the cache's current inputs. Callers
// fill the cache's data fields themselves (internal/rhs owns that
// logic); this only updates the memoisation key.
func (c *StateCache) MarkFresh(state []float64, t float64) {
	c.tPrev = t
	c.valid = true
	if cap(c.statePrev) < len(state) {
		c.statePrev = make([]float64, len(state))
	}
	c.statePrev = c.statePrev[:len(state)]
	copy(c.statePrev, state)
}
