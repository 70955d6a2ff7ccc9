// Package store holds the struct-of-arrays parameter storage for every
// node kind, preallocated at load and never resized afterward. It also
// implements the two mutable per-step caches the RHS reads and writes:
// the time-dependent cache (forcings, boundary levels, gains) and the
// state-and-time-dependent cache (levels, areas, smoothing factors).
package store

import (
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
)

// BasinArrays is the struct-of-arrays parameter block for every Basin
// node, indexed by dense index within the Basin kind.
type BasinArrays struct {
	NodeID []int64

	// ProfileLevel/ProfileArea hold one piecewise-linear level<->area
	// profile per basin; profiles are strictly increasing in level with
	// non-decreasing, positive area (invariant 2).
	ProfileLevel [][]float64
	ProfileArea  [][]float64

	Precipitation []*interp.Series
	SurfaceRunoff []*interp.Series
	Drainage      []*interp.Series
	Evaporation   []*interp.Series
	Infiltration  []*interp.Series

	// InitialStorage seeds the reduced state's reconstruction; the ODE
	// state itself holds cumulative flows, not storage directly.
	InitialStorage []float64

	// Concentration is an optional #basins x #substances matrix; nil
	// when no substances are tracked.
	Concentration [][]float64
}

func (b *BasinArrays) Len() int { return len(b.NodeID) }

// LevelAreaAt returns the level and area at the given storage for basin i,
// via linear interpolation over the profile (monotone by invariant 2)
// with constant extrapolation below the first knot and linear
// extension above the last, per spec.md's storage->level contract.
func (b *BasinArrays) LevelAreaAt(i int, storage float64) (level, area float64) {
	levels, areas := b.ProfileLevel[i], b.ProfileArea[i]
	storageAt := make([]float64, len(levels))
	storageAt[0] = 0
	for k := 1; k < len(levels); k++ {
		dLevel := levels[k] - levels[k-1]
		avgArea := (areas[k] + areas[k-1]) / 2
		storageAt[k] = storageAt[k-1] + avgArea*dLevel
	}

	if storage <= storageAt[0] {
		return levels[0], areas[0]
	}
	last := len(storageAt) - 1
	if storage >= storageAt[last] {
		if areas[last] <= 0 {
			return levels[last], areas[last]
		}
		extra := storage - storageAt[last]
		return levels[last] + extra/areas[last], areas[last]
	}

	lo, hi := 0, last
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if storageAt[mid] <= storage {
			lo = mid
		} else {
			hi = mid
		}
	}
	frac := (storage - storageAt[lo]) / (storageAt[hi] - storageAt[lo])
	level = levels[lo] + frac*(levels[hi]-levels[lo])
	area = areas[lo] + frac*(areas[hi]-areas[lo])
	return level, area
}

// FlowBoundaryArrays holds prescribed-outflow boundary nodes.
type FlowBoundaryArrays struct {
	NodeID        []int64
	Flow          []*interp.Series
	Concentration [][]float64
}

// LevelBoundaryArrays holds prescribed-level "infinite basin" nodes.
type LevelBoundaryArrays struct {
	NodeID []int64
	Level  []*interp.Series
}

// LinearResistanceArrays: Q = clamp((h_a - h_b)/R, +-Qmax).
type LinearResistanceArrays struct {
	NodeID   []int64
	Resistance []float64
	MaxFlow    []float64
}

// ManningResistanceArrays: trapezoidal reach, Gauckler-Manning flow.
type ManningResistanceArrays struct {
	NodeID     []int64
	BottomA    []float64
	BottomB    []float64
	ProfileWidth []float64
	ProfileSlope []float64
	Roughness    []float64
	Length       []float64
}

// TabulatedRatingCurveArrays: piecewise-monotone Q(h), possibly
// time-switched by an index lookup (the active table selected by
// CurrentTable, overwritten atomically on a control event).
type TabulatedRatingCurveArrays struct {
	NodeID       []int64
	Tables       [][]RatingCurveTable // candidate tables per node
	CurrentTable []int                // index into Tables[i], set by control
}

// RatingCurveTable is one piecewise-monotone Q(h) lookup table.
type RatingCurveTable struct {
	Level []float64
	Flow  []float64
}

// Eval returns Q(h) via monotone linear interpolation, constant beyond
// the table's range.
func (t RatingCurveTable) Eval(h float64) float64 {
	n := len(t.Level)
	if n == 0 {
		return 0
	}
	if h <= t.Level[0] {
		return t.Flow[0]
	}
	if h >= t.Level[n-1] {
		return t.Flow[n-1]
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.Level[mid] <= h {
			lo = mid
		} else {
			hi = mid
		}
	}
	frac := (h - t.Level[lo]) / (t.Level[hi] - t.Level[lo])
	return t.Flow[lo] + frac*(t.Flow[hi]-t.Flow[lo])
}

// PumpOutletArrays is shared shape for Pump and Outlet nodes: a forced
// flow rate bracketed by min/max, with upstream/downstream limits, all
// time interpolations, and a latched rate that control/allocation
// can overwrite between RHS calls.
type PumpOutletArrays struct {
	NodeID         []int64
	MinFlowRate    []*interp.Series
	MaxFlowRate    []*interp.Series
	MinUpstreamLevel   []*interp.Series
	MaxDownstreamLevel []*interp.Series
	CrestLevel         []float64 // Outlet only; unused (0) for Pump
	IsOutlet           []bool
	AllocationControlled []bool

	// LatchedFlowRate is the rate most recently set by static config,
	// discrete or continuous control, or allocation; RHS reads and smooths
	// it. The PID overwrite replaces the rate in dstate and leaves this
	// field unchanged.
	LatchedFlowRate []float64
}

// TerminalArrays/JunctionArrays contribute no state; tracked only so
// the graph and store agree on dense indices for output purposes.
type TerminalArrays struct {
	NodeID []int64
}

type JunctionArrays struct {
	NodeID []int64
}

// UserDemandArrays: abstractive flow with per-priority demand and a
// return factor; consumed by both RHS (as a flow) and allocation.
type UserDemandArrays struct {
	NodeID       []int64
	Priorities   [][]int
	Demand       [][]*interp.Series // per node, per priority
	Allocated    [][]float64        // per node, per priority; written by allocation
	ReturnFactor []*interp.Series
	MinLevel     []float64
}

// LevelDemandArrays and FlowDemandArrays are consumed only by
// allocation; they contribute no RHS flow of their own.
type LevelDemandArrays struct {
	NodeID   []int64
	MinLevel []*interp.Series
	MaxLevel []*interp.Series
	Priority []int
}

type FlowDemandArrays struct {
	NodeID   []int64
	Demand   []*interp.Series
	Priority []int
}

// Store is the frozen parameter store: one SoA block per node kind plus
// the graph they are indexed against.
type Store struct {
	Graph *graphtopo.Graph

	Basin                 BasinArrays
	FlowBoundary          FlowBoundaryArrays
	LevelBoundary         LevelBoundaryArrays
	LinearResistance      LinearResistanceArrays
	ManningResistance     ManningResistanceArrays
	TabulatedRatingCurve  TabulatedRatingCurveArrays
	Pump                  PumpOutletArrays
	Outlet                PumpOutletArrays
	Terminal              TerminalArrays
	Junction              JunctionArrays
	UserDemand            UserDemandArrays
	LevelDemand           LevelDemandArrays
	FlowDemand            FlowDemandArrays
	Discrete              DiscreteControlArrays
	Continuous            ContinuousControlArrays
	Pid                   PidControlArrays

	// ControlMapping maps (NodeId, control state name) to the ordered
	// list of parameter updates a DiscreteControl transition applies.
	ControlMapping map[ControlKey][]ParameterUpdate
}

// ControlKey identifies one (node, control state) mapping entry.
type ControlKey struct {
	Node  graphtopo.NodeId
	State string
}

// ParameterUpdate names one field to overwrite on a target node when a
// control state becomes active. internal/control applies two Field
// values, "flow_rate" and "active_table"; updates naming any other field
// are ignored.
type ParameterUpdate struct {
	Target graphtopo.NodeId
	Field  string
	Value  float64
	IntVal int
}
