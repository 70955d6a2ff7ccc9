// Package integrate defines the integrator contract spec.md §4.2
// externalizes ("the choice of underlying ODE integration algorithm")
// and ships one reference implementation, an embedded Dormand-Prince
// 4(5) pair whose fourth-order solution gives the local error estimate
// for the fifth-order one. No ODE solver exists
// anywhere in the reference corpus; this is a default, swappable
// behind the Stepper interface like the LP solver is behind
// allocation.LPSolver.
package integrate

import "math"

// RHSFunc is the pure, deterministic right-hand side: given (state, t)
// it returns dstate. Side effects are limited to the caches the RHS
// implementation owns internally (spec.md §4.2).
type RHSFunc func(state []float64, t float64) []float64

// Stepper advances the ODE state by one adaptive step.
type Stepper interface {
	// Step attempts to advance from (state, t) by dt, returning the new
	// time, new state, the step actually taken (which may be smaller
	// than dt if local error control shrank it), and an error if the
	// integrator diverged.
	Step(rhs RHSFunc, state []float64, t, dt float64) (tNew float64, stateNew []float64, dtUsed float64, err error)
}

// Options controls the adaptive step-size behaviour common to every
// Stepper implementation in this package.
type Options struct {
	AbsTol      float64
	RelTol      float64
	MaxTimestep float64
	MinTimestep float64
	SafetyFactor float64
}

// DefaultOptions mirrors spec.md §6's configuration surface defaults.
func DefaultOptions() Options {
	return Options{
		AbsTol:       1e-6,
		RelTol:       1e-5,
		MaxTimestep:  86400,
		MinTimestep:  1e-6,
		SafetyFactor: 0.9,
	}
}

// dopri45 Butcher tableau coefficients (Dormand-Prince).
var (
	dopriC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dopriA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	dopriB5 = [7]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	dopriB4 = [7]float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40}
)

// DormandPrince45 is the reference Stepper: an embedded 4(5) pair whose
// two solutions' difference is the error estimate, matching the error-control style
// most production ODE suites offer as their default explicit method.
type DormandPrince45 struct {
	Opts Options
}

func NewDormandPrince45(opts Options) *DormandPrince45 {
	return &DormandPrince45{Opts: opts}
}

// Step performs one adaptive Dormand-Prince step, shrinking dt by
// max(0.1, SafetyFactor*err^(-1/5)) and retrying (down to MinTimestep)
// until the estimated local error is within tolerance.
func (d *DormandPrince45) Step(rhs RHSFunc, state []float64, t, dt float64) (float64, []float64, float64, error) {
	n := len(state)
	var k [7][]float64

	for {
		if dt < d.Opts.MinTimestep {
			return 0, nil, 0, ErrDiverged
		}

		for stage := 0; stage < 7; stage++ {
			yStage := make([]float64, n)
			copy(yStage, state)
			for j := 0; j < stage; j++ {
				a := dopriA[stage][j]
				if a == 0 {
					continue
				}
				for i := 0; i < n; i++ {
					yStage[i] += dt * a * k[j][i]
				}
			}
			k[stage] = rhs(yStage, t+dopriC[stage]*dt)
		}

		y5 := make([]float64, n)
		y4 := make([]float64, n)
		copy(y5, state)
		copy(y4, state)
		for i := 0; i < n; i++ {
			for stage := 0; stage < 7; stage++ {
				y5[i] += dt * dopriB5[stage] * k[stage][i]
				y4[i] += dt * dopriB4[stage] * k[stage][i]
			}
		}

		errNorm := 0.0
		for i := 0; i < n; i++ {
			scale := d.Opts.AbsTol + d.Opts.RelTol*math.Max(math.Abs(y5[i]), math.Abs(state[i]))
			if scale <= 0 {
				continue
			}
			e := (y5[i] - y4[i]) / scale
			errNorm += e * e
		}
		if n > 0 {
			errNorm = math.Sqrt(errNorm / float64(n))
		}

		if math.IsNaN(errNorm) || math.IsInf(errNorm, 0) {
			return 0, nil, 0, ErrDiverged
		}

		if errNorm <= 1 {
			return t + dt, y5, dt, nil
		}

		dt *= math.Max(0.1, d.Opts.SafetyFactor*math.Pow(1/errNorm, 0.2))
	}
}

// ErrDiverged is returned when the adaptive step size collapses below
// MinTimestep without satisfying the error tolerance (spec.md §7
// RuntimeNumerical: "integrator reported divergence").
var ErrDiverged = divergedError{}

type divergedError struct{}

func (divergedError) Error() string { return "integrator step size collapsed: divergence" }
