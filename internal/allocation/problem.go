// Package allocation builds and solves the lexicographic linear program
// that distributes scarce water between demands once per allocation
// interval (spec.md §4.6). The LP solver itself is an external
// collaborator behind the LPSolver interface, exactly as spec.md §1
// frames it; internal/allocation/simplex ships the one default backend.
package allocation

import "ribasimcore/internal/graphtopo"

// Variable is one decision variable of the LP: the outflow of an
// allocation-eligible flow link, or a demand slack.
type Variable struct {
	Name string
	// Link identifies the flow link this variable's value becomes, or
	// the zero value for a pure demand-slack variable.
	Link  [2]graphtopo.NodeId
	Lower float64
	Upper float64
}

// ConstraintSense distinguishes the three constraint shapes the LP
// assembly in spec.md §4.6 step 2 needs.
type ConstraintSense int

const (
	SenseLessEqual ConstraintSense = iota
	SenseGreaterEqual
	SenseEqual
)

// Constraint is one linear constraint: sum(Coef[i] * Vars[i]) (sense) RHS.
type Constraint struct {
	Name  string
	Vars  []int // indices into Problem.Variables
	Coef  []float64
	Sense ConstraintSense
	RHS   float64
}

// Objective is one stage of the lexicographic solve: a linear
// expression to maximize, subject to every constraint accumulated by
// prior stages (spec.md §4.6 step 3: "each as an epigraph constraint
// added before the next objective").
type Objective struct {
	Name string
	Vars []int
	Coef []float64
}

// Problem is one subnetwork's LP: its decision variables, the
// constraints shared by every stage (conservation, capacity, storage
// caps, non-negativity), and the ordered list of objectives to solve
// lexicographically.
type Problem struct {
	Variables   []Variable
	Constraints []Constraint
	Objectives  []Objective
}

// AddVariable appends v and returns its index.
func (p *Problem) AddVariable(v Variable) int {
	p.Variables = append(p.Variables, v)
	return len(p.Variables) - 1
}

// AddConstraint appends c.
func (p *Problem) AddConstraint(c Constraint) {
	p.Constraints = append(p.Constraints, c)
}

// Solution is the value assigned to each of a Problem's variables plus
// the achieved value of the final objective stage. Unmet demand per
// priority is not carried here; Runner derives it into
// DemandRecord.Shortage.
type Solution struct {
	Values    []float64
	Objective float64
	Feasible  bool
}

// LPSolver is the external collaborator boundary: anything satisfying
// this interface can replace the bundled simplex backend without
// internal/allocation changing.
type LPSolver interface {
	Solve(p Problem) (Solution, error)
}

// SolveLexicographic solves p's Objectives in order, freezing each
// stage's achieved optimum as a >= constraint on that stage's
// expression before solving the next, per spec.md §4.6 step 3. It
// returns the final stage's solution.
func SolveLexicographic(solver LPSolver, p Problem) (Solution, error) {
	working := Problem{
		Variables:   p.Variables,
		Constraints: append([]Constraint(nil), p.Constraints...),
	}

	var last Solution
	for stageIdx, obj := range p.Objectives {
		working.Objectives = []Objective{obj}
		sol, err := solver.Solve(working)
		if err != nil {
			return Solution{}, err
		}
		if !sol.Feasible {
			return sol, nil
		}
		last = sol

		if stageIdx < len(p.Objectives)-1 {
			working.Constraints = append(working.Constraints, Constraint{
				Name:  obj.Name + "_epigraph",
				Vars:  obj.Vars,
				Coef:  obj.Coef,
				Sense: SenseGreaterEqual,
				RHS:   sol.Objective,
			})
		}
	}
	return last, nil
}
