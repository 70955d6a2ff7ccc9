package control

import (
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

// Continuous evaluates every ContinuousControl node's function table on
// its compound variable and writes the result to the controlled
// parameter of its single target node (spec.md §4.5). Unlike Discrete,
// this runs on every RHS call through the normal time-dependent cache
// path, not just at scheduled events.
type Continuous struct {
	Store *store.Store
	Read  VariableReader
}

// Evaluate writes every ContinuousControl node's output at time t,
// returning the updates applied (for callers that want to log them; the
// spec does not require an append-only log for continuous control the
// way it does for discrete transitions).
func (c *Continuous) Evaluate(t float64) []store.ParameterUpdate {
	s := &c.Store.Continuous
	var applied []store.ParameterUpdate
	for i, id := range s.NodeID {
		_ = id
		x := EvaluateCompound(s.CompoundVar[i], c.Read, t)
		value := s.FunctionTable[i].Eval(x)
		update := store.ParameterUpdate{
			Target: graphtopo.NodeId{ID: s.TargetNode[i]}, // kind is irrelevant; applyOne resolves by id
			Field:  s.TargetField[i],
			Value:  value,
		}
		applyOne(c.Store, update)
		applied = append(applied, update)
	}
	return applied
}
