package integrate

// ConditionFunc evaluates a scalar whose sign change marks a
// discrete-control threshold crossing (spec.md §4.7: "continuous
// zero-crossings (discrete-control conditions)"). It is independent of
// RHSFunc so the integrator can evaluate it on the already-produced
// state trajectory without another RHS call.
type ConditionFunc func(state []float64, t float64) float64

// FindZeroCrossing bisects [t0, t1] for the root of cond, given its
// signed values at the endpoints, to within tol in time. Returns ok=false
// if f(t0) and f(t1) do not bracket a root (no sign change).
func FindZeroCrossing(cond ConditionFunc, interpolate func(t float64) []float64, t0, t1, tol float64, maxIter int) (tRoot float64, ok bool) {
	f0 := cond(interpolate(t0), t0)
	f1 := cond(interpolate(t1), t1)
	if f0 == 0 {
		return t0, true
	}
	if f1 == 0 {
		return t1, true
	}
	if sameSign(f0, f1) {
		return 0, false
	}

	lo, hi := t0, t1
	flo := f0
	for i := 0; i < maxIter && hi-lo > tol; i++ {
		mid := (lo + hi) / 2
		fmid := cond(interpolate(mid), mid)
		if fmid == 0 {
			return mid, true
		}
		if sameSign(flo, fmid) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
