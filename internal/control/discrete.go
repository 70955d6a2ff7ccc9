// Package control implements the discrete and continuous control
// subsystems of spec.md §4.5. PidControl's numerics live in internal/rhs
// instead, because its derivative term needs direct access to the RHS's
// dstate accumulation (the implicit D-denominator resolution) rather
// than a value the time-dependent cache can expose; this package covers
// everything that only needs the cache's already-evaluated values.
package control

import (
	"sort"
	"strings"

	"ribasimcore/internal/apperror"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

// VariableReader resolves a compound variable's listened-node value at a
// given time. internal/rhs's caches satisfy this without internal/control
// importing rhs back (which would cycle): the caller passes a closure
// bound to the live Model/caches.
type VariableReader func(node graphtopo.NodeId, lookAhead, t float64) float64

// EvaluateCompound returns the weighted sum of a compound variable's
// listened terms at time t.
func EvaluateCompound(cv store.CompoundVariable, read VariableReader, t float64) float64 {
	var sum float64
	for _, term := range cv.Listen {
		node, ok := term.Node.(graphtopo.NodeId)
		if !ok {
			continue
		}
		sum += term.Weight * read(node, cv.LookAhead, t)
	}
	return sum
}

// TruthState evaluates one compound variable against its hysteresis
// thresholds given the previous truth value: once true, the condition
// only clears when the value drops below the low threshold; once false,
// it only sets when the value rises above the high threshold (spec.md
// §4.5 "Hysteresis is implemented with two threshold vectors").
func TruthState(value float64, high, low []float64, prev []bool) []bool {
	out := make([]bool, len(high))
	for i := range high {
		wasTrue := i < len(prev) && prev[i]
		switch {
		case wasTrue && i < len(low):
			out[i] = value >= low[i]
		case !wasTrue && i < len(high):
			out[i] = value >= high[i]
		default:
			out[i] = wasTrue
		}
	}
	return out
}

// truthKey concatenates a boolean vector into the "TF..." string the
// logic table is keyed by.
func truthKey(truth []bool) string {
	var b strings.Builder
	for _, v := range truth {
		if v {
			b.WriteByte('T')
		} else {
			b.WriteByte('F')
		}
	}
	return b.String()
}

// ExpandWildcards materializes every concrete truth-state key a pattern
// containing '*' matches, so the logic table lookup in Evaluate never
// needs to special-case wildcards at run time (spec.md §4.5 "expanded at
// load time to all concrete truth states").
func ExpandWildcards(pattern string) []string {
	stars := 0
	for _, c := range pattern {
		if c == '*' {
			stars++
		}
	}
	if stars == 0 {
		return []string{pattern}
	}
	out := make([]string, 0, 1<<uint(stars))
	var expand func(prefix string, rest string)
	expand = func(prefix string, rest string) {
		if rest == "" {
			out = append(out, prefix)
			return
		}
		c, tail := rest[0], rest[1:]
		if c == '*' {
			expand(prefix+"T", tail)
			expand(prefix+"F", tail)
			return
		}
		expand(prefix+string(c), tail)
	}
	expand("", pattern)
	sort.Strings(out)
	return out
}

// BuildLogicTable expands every wildcard row of raw into a flat map from
// concrete truth-state key to control-state name, rejecting rows with
// characters other than T, F, or *.
func BuildLogicTable(raw map[string]string) (map[string]string, error) {
	table := make(map[string]string, len(raw))
	for pattern, state := range raw {
		for _, c := range pattern {
			if c != 'T' && c != 'F' && c != '*' {
				return nil, apperror.New(apperror.CategoryLoadValidation, apperror.CodeIllegalLogicTableRow,
					"logic table row contains a character other than T, F, or *").WithField(pattern)
			}
		}
		for _, key := range ExpandWildcards(pattern) {
			table[key] = state
		}
	}
	return table, nil
}

// Discrete evaluates every DiscreteControl node's compound variables
// against their thresholds, updates hysteresis state, and returns the
// parameter updates to apply for any node whose control state changed.
type Discrete struct {
	Store *store.Store
	Read  VariableReader
}

// Evaluate runs one DiscreteControl evaluation pass at time t. It
// mutates CurrentTruth/CurrentState/TransitionLog in place and returns
// the ordered list of ParameterUpdates newly activated by a transition,
// alongside the NodeId of the DiscreteControl node that issued them (for
// logging).
func (d *Discrete) Evaluate(t float64) []Transition {
	s := &d.Store.Discrete
	var fired []Transition

	for i, id := range s.NodeID {
		truth := make([]bool, 0, len(s.CompoundVariables[i]))
		for c, cv := range s.CompoundVariables[i] {
			value := EvaluateCompound(cv, d.Read, t)
			prevTruth := boolsAt(s.CurrentTruth[i], c, len(s.HighThresholds[i][c]))
			bits := TruthState(value, s.HighThresholds[i][c], s.LowThresholds[i][c], prevTruth)
			truth = append(truth, bits...)
		}

		if s.CurrentTruth[i] == nil {
			s.CurrentTruth[i] = truth
		}
		key := truthKey(truth)
		newState, ok := s.LogicTable[i][key]
		if !ok {
			s.CurrentTruth[i] = truth
			continue
		}

		oldState := s.CurrentState[i]
		if newState != oldState {
			tr := store.Transition{Time: t, From: oldState, To: newState}
			s.TransitionLog[i] = append(s.TransitionLog[i], tr)
			s.CurrentState[i] = newState
			updates := d.Store.ControlMapping[store.ControlKey{
				Node:  graphtopo.NodeId{Kind: graphtopo.KindDiscreteControl, ID: id, Index: i},
				State: newState,
			}]
			fired = append(fired, Transition{
				Node:    graphtopo.NodeId{Kind: graphtopo.KindDiscreteControl, ID: id, Index: i},
				From:    oldState,
				To:      newState,
				Time:    t,
				Updates: updates,
			})
		}
		s.CurrentTruth[i] = truth
	}
	return fired
}

func boolsAt(flat []bool, group, n int) []bool {
	start := group * n
	if start+n > len(flat) {
		return make([]bool, n)
	}
	return flat[start : start+n]
}

// Transition is one fired DiscreteControl transition, carrying the
// updates the caller (the simulation driver's step loop) must apply to the
// store before the next RHS evaluation.
type Transition struct {
	Node    graphtopo.NodeId
	From    string
	To      string
	Time    float64
	Updates []store.ParameterUpdate
}

// Apply writes every ParameterUpdate in updates into s, dispatching on
// the small closed Field vocabulary the loader populates ControlMapping
// with.
func Apply(s *store.Store, updates []store.ParameterUpdate) {
	for _, u := range updates {
		applyOne(s, u)
	}
}

func applyOne(s *store.Store, u store.ParameterUpdate) {
	switch u.Field {
	case "flow_rate":
		if i := indexOf(s.Pump.NodeID, u.Target.ID); i >= 0 {
			s.Pump.LatchedFlowRate[i] = u.Value
			return
		}
		if i := indexOf(s.Outlet.NodeID, u.Target.ID); i >= 0 {
			s.Outlet.LatchedFlowRate[i] = u.Value
			return
		}
	case "active_table":
		if i := indexOf(s.TabulatedRatingCurve.NodeID, u.Target.ID); i >= 0 {
			s.TabulatedRatingCurve.CurrentTable[i] = u.IntVal
		}
	}
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
