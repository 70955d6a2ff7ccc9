// Package simplex implements the bundled default internal/allocation
// LPSolver: a two-phase dense-tableau simplex method over gonum/mat. No
// LP library appears anywhere in the reference corpus; spec.md §1 frames
// the LP solver as an external, swappable collaborator, so this is the
// one knowingly hand-rolled numerical core in the repository (recorded
// in DESIGN.md), not a substitute for an ecosystem dependency that
// exists.
package simplex

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ribasimcore/internal/allocation"
)

// Solver is a two-phase simplex solver operating on a dense tableau.
// It handles <=, >=, and = constraints by introducing slack, surplus,
// and artificial variables as needed; it shifts each variable by its
// Lower bound and adds one explicit <= row per finite Upper bound.
type Solver struct {
	MaxIterations int
	Tolerance     float64
}

// New returns a Solver with sane default iteration/tolerance limits.
func New() *Solver {
	return &Solver{MaxIterations: 10_000, Tolerance: 1e-9}
}

// Solve maximizes p.Objectives[0] subject to p.Constraints and the
// variable bounds in p.Variables.
func (s *Solver) Solve(p allocation.Problem) (allocation.Solution, error) {
	if len(p.Objectives) != 1 {
		return allocation.Solution{}, fmt.Errorf("simplex: Solve expects exactly one active objective stage, got %d", len(p.Objectives))
	}
	n := len(p.Variables)
	obj := p.Objectives[0]

	// Shift each variable x_i = x_i' + Lower_i so every variable in the
	// working tableau is >= 0; track the shift to undo it afterward.
	shift := make([]float64, n)
	upperShifted := make([]float64, n)
	for i, v := range p.Variables {
		shift[i] = v.Lower
		upperShifted[i] = v.Upper - v.Lower
	}

	rows := len(p.Constraints)
	// One explicit upper-bound row per finite-upper variable.
	for _, u := range upperShifted {
		if !math.IsInf(u, 1) {
			rows++
		}
	}

	cols := n
	slackCols := 0
	artificialCols := 0
	rowKind := make([]allocation.ConstraintSense, 0, rows)

	for _, c := range p.Constraints {
		switch c.Sense {
		case allocation.SenseLessEqual:
			slackCols++
		case allocation.SenseGreaterEqual:
			slackCols++
			artificialCols++
		case allocation.SenseEqual:
			artificialCols++
		}
		rowKind = append(rowKind, c.Sense)
	}
	for _, u := range upperShifted {
		if !math.IsInf(u, 1) {
			slackCols++
			rowKind = append(rowKind, allocation.SenseLessEqual)
		}
	}

	totalCols := cols + slackCols + artificialCols
	A := mat.NewDense(rows, totalCols, nil)
	b := make([]float64, rows)

	slackCursor := cols
	artCursor := cols + slackCols
	artificialRows := make([]int, 0, artificialCols)

	row := 0
	for _, c := range p.Constraints {
		rhs := c.RHS
		for k, vi := range c.Vars {
			rhs -= c.Coef[k] * shift[vi]
			A.Set(row, vi, A.At(row, vi)+c.Coef[k])
		}
		switch c.Sense {
		case allocation.SenseLessEqual:
			A.Set(row, slackCursor, 1)
			slackCursor++
		case allocation.SenseGreaterEqual:
			A.Set(row, slackCursor, -1)
			slackCursor++
			A.Set(row, artCursor, 1)
			artificialRows = append(artificialRows, row)
			artCursor++
		case allocation.SenseEqual:
			A.Set(row, artCursor, 1)
			artificialRows = append(artificialRows, row)
			artCursor++
		}
		if rhs < 0 {
			for k := 0; k < totalCols; k++ {
				A.Set(row, k, -A.At(row, k))
			}
			rhs = -rhs
		}
		b[row] = rhs
		row++
	}
	for vi, u := range upperShifted {
		if math.IsInf(u, 1) {
			continue
		}
		A.Set(row, vi, 1)
		A.Set(row, slackCursor, 1)
		slackCursor++
		b[row] = u
		row++
	}

	c := make([]float64, totalCols)
	for k, vi := range obj.Vars {
		c[vi] += obj.Coef[k]
	}

	basis := make([]int, rows)
	slackRowCursor := cols
	ai := 0
	row = 0
	for _, sense := range rowKind[:len(p.Constraints)] {
		switch sense {
		case allocation.SenseLessEqual:
			basis[row] = slackRowCursor
			slackRowCursor++
		case allocation.SenseGreaterEqual:
			basis[row] = cols + slackCols + ai
			slackRowCursor++
			ai++
		case allocation.SenseEqual:
			basis[row] = cols + slackCols + ai
			ai++
		}
		row++
	}
	for _, u := range upperShifted {
		if math.IsInf(u, 1) {
			continue
		}
		basis[row] = slackRowCursor
		slackRowCursor++
		row++
	}

	artStart := cols + slackCols
	if len(artificialRows) > 0 {
		phase1Cost := make([]float64, totalCols)
		for k := artStart; k < totalCols; k++ {
			phase1Cost[k] = 1
		}
		if !s.runSimplex(A, b, phase1Cost, basis) {
			return allocation.Solution{}, fmt.Errorf("simplex: phase 1 failed to converge")
		}
		sum := 0.0
		for r, bi := range basis {
			if bi >= artStart {
				sum += b[r]
			}
		}
		if sum > s.Tolerance {
			return allocation.Solution{Feasible: false}, nil
		}
	}

	// Artificials still basic after phase 1 sit at zero; a large cost
	// keeps phase 2 from pivoting them back above zero.
	phase2Cost := negate(c)
	for k := artStart; k < totalCols; k++ {
		phase2Cost[k] = 1e6
	}
	if !s.runSimplex(A, b, phase2Cost, basis) {
		return allocation.Solution{}, fmt.Errorf("simplex: phase 2 failed to converge")
	}

	values := make([]float64, n)
	for r, bi := range basis {
		if bi < n {
			values[bi] = b[r]
		}
	}
	result := make([]float64, n)
	objective := 0.0
	for i := range result {
		result[i] = values[i] + shift[i]
		objective += c[i] * result[i]
	}

	return allocation.Solution{Values: result, Objective: objective, Feasible: true}, nil
}

// runSimplex drives the tableau (A, b) to optimality for minimizing
// cost (Bland's rule: the lowest-index column with a positive reduced
// cost enters, the lowest basis index wins ratio ties), given an
// initial feasible basis. Returns false if MaxIterations is exhausted.
func (s *Solver) runSimplex(A *mat.Dense, b []float64, cost []float64, basis []int) bool {
	rows, cols := A.Dims()
	cB := make([]float64, rows)
	for r, bi := range basis {
		cB[r] = cost[bi]
	}

	for iter := 0; iter < s.MaxIterations; iter++ {
		z := make([]float64, cols)
		for j := 0; j < cols; j++ {
			dot := 0.0
			for r := 0; r < rows; r++ {
				dot += cB[r] * A.At(r, j)
			}
			z[j] = dot - cost[j]
		}

		enter := -1
		for j := 0; j < cols; j++ {
			if z[j] > s.Tolerance {
				if enter == -1 || j < enter {
					enter = j
				}
			}
		}
		if enter == -1 {
			return true
		}

		leave := -1
		best := math.Inf(1)
		for r := 0; r < rows; r++ {
			a := A.At(r, enter)
			if a > s.Tolerance {
				ratio := b[r] / a
				if ratio < best-s.Tolerance || (math.Abs(ratio-best) <= s.Tolerance && (leave == -1 || basis[r] < basis[leave])) {
					best = ratio
					leave = r
				}
			}
		}
		if leave == -1 {
			return false // unbounded
		}

		pivot := A.At(leave, enter)
		for j := 0; j < cols; j++ {
			A.Set(leave, j, A.At(leave, j)/pivot)
		}
		b[leave] /= pivot

		for r := 0; r < rows; r++ {
			if r == leave {
				continue
			}
			factor := A.At(r, enter)
			if factor == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				A.Set(r, j, A.At(r, j)-factor*A.At(leave, j))
			}
			b[r] -= factor * b[leave]
		}

		basis[leave] = enter
		cB[leave] = cost[enter]
	}
	return false
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}
