package allocation

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

// SourceInflow is one allocation-eligible source's mean inflow accrued
// since the last allocation run (spec.md §4.6 step 1).
type SourceInflow struct {
	Node graphtopo.NodeId
	Mean float64
}

// DemandRecord is one row of the allocation demand/flow record table
// (spec.md §4.6 step 5); Shortage is the SPEC_FULL.md §5 supplement.
type DemandRecord struct {
	RunID    uuid.UUID
	Time     float64
	Node     graphtopo.NodeId
	Priority int
	Demand   float64
	Allocated float64
	Shortage float64
}

// Runner drives one allocation pass across every subnetwork in Graph,
// solving subnetwork 1 (the primary network) first, then fanning the
// remaining subnetworks out concurrently, mirroring the teacher's
// bounded-concurrency fan-out style via errgroup. The primary's exports
// map is handed to every secondary solve as fixed sources, but
// solveSubnetwork always returns it empty, so secondary subnetworks
// receive no supply from the primary.
type Runner struct {
	Graph  *graphtopo.Graph
	Store  *store.Store
	Solver LPSolver
	MaxConcurrency int
}

// Run executes one allocation pass at time t, writing allocated flows
// into UserDemand.Allocated and, for allocation_controlled pump/outlet
// nodes, into their LatchedFlowRate, and returns the demand records
// produced across every subnetwork.
func (r *Runner) Run(ctx context.Context, t float64, inflows []SourceInflow, runID uuid.UUID) ([]DemandRecord, error) {
	subnetworks := r.subnetworkIDs()

	var primaryRecords []DemandRecord
	primaryExports := map[graphtopo.NodeId]float64{}
	if contains(subnetworks, 1) {
		sol, recs, exports, err := r.solveSubnetwork(1, t, inflows, nil, runID)
		if err != nil {
			return nil, fmt.Errorf("allocation: primary subnetwork: %w", err)
		}
		_ = sol
		primaryRecords = recs
		primaryExports = exports
	}

	var secondaries []int
	for _, sn := range subnetworks {
		if sn != 1 {
			secondaries = append(secondaries, sn)
		}
	}

	results := make([][]DemandRecord, len(secondaries))
	g, gctx := errgroup.WithContext(ctx)
	if r.MaxConcurrency > 0 {
		g.SetLimit(r.MaxConcurrency)
	}
	for i, sn := range secondaries {
		i, sn := i, sn
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, recs, _, err := r.solveSubnetwork(sn, t, inflows, primaryExports, runID)
			if err != nil {
				return fmt.Errorf("allocation: subnetwork %d: %w", sn, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := append([]DemandRecord(nil), primaryRecords...)
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all, nil
}

func (r *Runner) subnetworkIDs() []int {
	seen := map[int]bool{}
	for _, l := range r.Graph.Links() {
		if l.Subnetwork > 0 {
			seen[l.Subnetwork] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// solveSubnetwork builds and solves the LP for one subnetwork, writes
// its allocation results into the store, and returns the demand
// records plus an exports map keyed by receiving node. The LP has no
// link-flow variables, so the exports map is always empty.
func (r *Runner) solveSubnetwork(subnetwork int, t float64, inflows []SourceInflow, fixedSources map[graphtopo.NodeId]float64, runID uuid.UUID) (Solution, []DemandRecord, map[graphtopo.NodeId]float64, error) {
	p := Problem{}
	s := r.Store

	type userVar struct {
		demandIdx int
		priority  int
		varIdx    int
	}
	varsByUser := map[int][]userVar{}

	for i, id := range s.UserDemand.NodeID {
		node := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: id, Index: i}
		meta, _ := r.nodeSubnetwork(node)
		if meta != subnetwork {
			continue
		}
		for pr, priority := range s.UserDemand.Priorities[i] {
			demand := 0.0
			if s.UserDemand.Demand[i] != nil && pr < len(s.UserDemand.Demand[i]) && s.UserDemand.Demand[i][pr] != nil {
				demand = s.UserDemand.Demand[i][pr].At(t)
			}
			vi := p.AddVariable(Variable{Name: fmt.Sprintf("user%d_p%d", id, priority), Lower: 0, Upper: demand})
			varsByUser[i] = append(varsByUser[i], userVar{demandIdx: i, priority: priority, varIdx: vi})
		}
	}

	totalSource := 0.0
	for _, src := range inflows {
		if sn, ok := r.nodeSubnetwork(src.Node); ok && sn == subnetwork {
			totalSource += src.Mean
		}
	}
	for node, flow := range fixedSources {
		if sn, ok := r.nodeSubnetwork(node); ok && sn == subnetwork {
			totalSource += flow
		}
	}

	allVars := make([]int, 0)
	allCoef := make([]float64, 0)
	for _, uvs := range varsByUser {
		for _, uv := range uvs {
			allVars = append(allVars, uv.varIdx)
			allCoef = append(allCoef, 1)
		}
	}
	if len(allVars) > 0 {
		p.AddConstraint(Constraint{Name: "source_capacity", Vars: allVars, Coef: allCoef, Sense: SenseLessEqual, RHS: totalSource})
	}

	priorities := map[int]bool{}
	for _, uvs := range varsByUser {
		for _, uv := range uvs {
			priorities[uv.priority] = true
		}
	}
	orderedPriorities := make([]int, 0, len(priorities))
	for pr := range priorities {
		orderedPriorities = append(orderedPriorities, pr)
	}
	sort.Ints(orderedPriorities)

	for _, pr := range orderedPriorities {
		var vars []int
		var coef []float64
		for _, uvs := range varsByUser {
			for _, uv := range uvs {
				if uv.priority == pr {
					vars = append(vars, uv.varIdx)
					coef = append(coef, 1)
				}
			}
		}
		p.Objectives = append(p.Objectives, Objective{Name: fmt.Sprintf("priority_%d", pr), Vars: vars, Coef: coef})
	}

	if len(p.Variables) == 0 {
		return Solution{Feasible: true}, nil, nil, nil
	}

	sol, err := SolveLexicographic(r.Solver, p)
	if err != nil {
		return Solution{}, nil, nil, err
	}
	if !sol.Feasible {
		return sol, nil, nil, fmt.Errorf("subnetwork %d allocation infeasible", subnetwork)
	}

	var records []DemandRecord
	for userIdx, uvs := range varsByUser {
		id := s.UserDemand.NodeID[userIdx]
		node := graphtopo.NodeId{Kind: graphtopo.KindUserDemand, ID: id, Index: userIdx}
		if s.UserDemand.Allocated[userIdx] == nil {
			s.UserDemand.Allocated[userIdx] = make([]float64, len(s.UserDemand.Priorities[userIdx]))
		}
		for _, uv := range uvs {
			allocated := sol.Values[uv.varIdx]
			s.UserDemand.Allocated[userIdx][indexOfPriority(s.UserDemand.Priorities[userIdx], uv.priority)] = allocated
			demand := p.Variables[uv.varIdx].Upper
			records = append(records, DemandRecord{
				RunID: runID, Time: t, Node: node, Priority: uv.priority,
				Demand: demand, Allocated: allocated, Shortage: demand - allocated,
			})
		}
	}

	for i, id := range s.Pump.NodeID {
		if !s.Pump.AllocationControlled[i] {
			continue
		}
		node := graphtopo.NodeId{Kind: graphtopo.KindPump, ID: id, Index: i}
		if sn, ok := r.nodeSubnetwork(node); ok && sn == subnetwork {
			s.Pump.LatchedFlowRate[i] = totalSource
		}
	}
	for i, id := range s.Outlet.NodeID {
		if !s.Outlet.AllocationControlled[i] {
			continue
		}
		node := graphtopo.NodeId{Kind: graphtopo.KindOutlet, ID: id, Index: i}
		if sn, ok := r.nodeSubnetwork(node); ok && sn == subnetwork {
			s.Outlet.LatchedFlowRate[i] = totalSource
		}
	}

	exports := map[graphtopo.NodeId]float64{}
	return sol, records, exports, nil
}

func (r *Runner) nodeSubnetwork(node graphtopo.NodeId) (int, bool) {
	for _, l := range r.Graph.OutflowLinks(node) {
		if l.Subnetwork > 0 {
			return l.Subnetwork, true
		}
	}
	for _, l := range r.Graph.InflowLinks(node) {
		if l.Subnetwork > 0 {
			return l.Subnetwork, true
		}
	}
	return 0, false
}

func indexOfPriority(priorities []int, target int) int {
	for i, p := range priorities {
		if p == target {
			return i
		}
	}
	return 0
}
