// Package interp implements the time-interpolation primitives every
// time-dependent parameter in the store is built from: constant,
// linear, PCHIP (shape-preserving cubic Hermite), and index-lookup,
// each with constant or periodic extrapolation.
package interp

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"ribasimcore/internal/apperror"
)

// Method selects the interpolation kernel between knots.
type Method int

const (
	MethodConstant Method = iota
	MethodLinear
	MethodPCHIP
	MethodIndexLookup
)

func ParseMethod(s string) (Method, error) {
	switch s {
	case "constant":
		return MethodConstant, nil
	case "linear":
		return MethodLinear, nil
	case "pchip":
		return MethodPCHIP, nil
	case "index":
		return MethodIndexLookup, nil
	default:
		return 0, apperror.New(apperror.CategoryConfiguration, apperror.CodeUnsupportedInterpolation,
			fmt.Sprintf("unsupported interpolation method %q", s))
	}
}

// Extrapolation selects the behaviour for t outside [t0, tN].
type Extrapolation int

const (
	ExtrapConstant Extrapolation = iota
	ExtrapPeriodic
)

func ParseExtrapolation(s string) (Extrapolation, error) {
	switch s {
	case "constant":
		return ExtrapConstant, nil
	case "periodic":
		return ExtrapPeriodic, nil
	default:
		return 0, apperror.New(apperror.CategoryConfiguration, apperror.CodeUnsupportedInterpolation,
			fmt.Sprintf("unsupported extrapolation mode %q", s))
	}
}

// Series is a single time-interpolated scalar series: monotone knot
// times and matching values, plus the interpolation/extrapolation mode.
// Series is immutable after NewSeries validates it, so it can be shared
// (read-only) across every cache that refreshes from it.
type Series struct {
	t, v    []float64
	method  Method
	extrap  Extrapolation
	period  float64 // only used when extrap == ExtrapPeriodic
	pchipC  []float64 // precomputed PCHIP tangents, len(t), empty otherwise
}

// NewSeries validates that t is strictly increasing and builds any
// precomputed coefficients the method needs.
func NewSeries(t, v []float64, method Method, extrap Extrapolation) (*Series, error) {
	if len(t) != len(v) {
		return nil, fmt.Errorf("interp: time and value series length mismatch (%d != %d)", len(t), len(v))
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("interp: empty series")
	}
	if !sort.Float64sAreSorted(t) {
		return nil, fmt.Errorf("interp: time series must be non-decreasing")
	}
	for i := 1; i < len(t); i++ {
		if t[i] == t[i-1] {
			return nil, apperror.New(apperror.CategoryLoadValidation, apperror.CodeRepeatedTimestamp,
				fmt.Sprintf("repeated timestamp %g in series", t[i]))
		}
	}

	s := &Series{
		t:      append([]float64(nil), t...),
		v:      append([]float64(nil), v...),
		method: method,
		extrap: extrap,
	}
	if extrap == ExtrapPeriodic {
		s.period = t[len(t)-1] - t[0]
	}
	if method == MethodPCHIP {
		s.pchipC = pchipTangents(s.t, s.v)
	}
	return s, nil
}

// At evaluates the series at time t.
func (s *Series) At(t float64) float64 {
	t = s.resolveTime(t)
	i := s.bracket(t)

	switch s.method {
	case MethodConstant:
		return s.v[i]
	case MethodIndexLookup:
		return s.v[i]
	case MethodLinear:
		if i == len(s.t)-1 {
			return s.v[i]
		}
		frac := (t - s.t[i]) / (s.t[i+1] - s.t[i])
		return s.v[i] + frac*(s.v[i+1]-s.v[i])
	case MethodPCHIP:
		if i == len(s.t)-1 {
			return s.v[i]
		}
		return pchipEval(s.t, s.v, s.pchipC, i, t)
	default:
		return s.v[i]
	}
}

// Derivative returns the time derivative of the series at t, needed by
// the PID controller's implicit derivative term (target'(t)).
func (s *Series) Derivative(t float64) float64 {
	t = s.resolveTime(t)
	i := s.bracket(t)

	switch s.method {
	case MethodLinear:
		if i == len(s.t)-1 {
			return 0
		}
		return (s.v[i+1] - s.v[i]) / (s.t[i+1] - s.t[i])
	case MethodPCHIP:
		if i == len(s.t)-1 {
			return s.pchipC[i]
		}
		return pchipDerivative(s.t, s.v, s.pchipC, i, t)
	default:
		return 0
	}
}

// resolveTime maps t into [t0, tN] under periodic extrapolation, or
// clamps it under constant extrapolation.
func (s *Series) resolveTime(t float64) float64 {
	t0, tN := s.t[0], s.t[len(s.t)-1]
	if t < t0 {
		if s.extrap == ExtrapPeriodic && s.period > 0 {
			n := floats_ceilDiv(t0-t, s.period)
			return t + n*s.period
		}
		return t0
	}
	if t > tN {
		if s.extrap == ExtrapPeriodic && s.period > 0 {
			n := floats_ceilDiv(t-tN, s.period)
			return t - n*s.period
		}
		return tN
	}
	return t
}

func floats_ceilDiv(numer, denom float64) float64 {
	q := numer / denom
	n := float64(int64(q))
	if n < q {
		n++
	}
	return n
}

// bracket returns the index i such that t[i] <= t < t[i+1], or the last
// index if t >= t[len-1].
func (s *Series) bracket(t float64) int {
	i := sort.Search(len(s.t), func(i int) bool { return s.t[i] > t })
	if i == 0 {
		return 0
	}
	return i - 1
}

// pchipTangents computes the Fritsch-Carlson shape-preserving tangents
// at every knot, so the interpolant stays monotone between monotone
// knots (the property plain cubic splines do not guarantee).
func pchipTangents(t, v []float64) []float64 {
	n := len(t)
	d := make([]float64, n)
	if n == 1 {
		return d
	}

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = t[i+1] - t[i]
		delta[i] = (v[i+1] - v[i]) / h[i]
	}

	d[0] = delta[0]
	d[n-1] = delta[n-2]
	for i := 1; i < n-1; i++ {
		if delta[i-1] == 0 || delta[i] == 0 || sign(delta[i-1]) != sign(delta[i]) {
			d[i] = 0
			continue
		}
		w1 := 2*h[i] + h[i-1]
		w2 := h[i] + 2*h[i-1]
		d[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}
	return d
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

// pchipEval evaluates the Hermite cubic on [t[i], t[i+1]] at time t,
// summing the four Hermite basis terms with gonum/floats.
func pchipEval(t, v, c []float64, i int, at float64) float64 {
	h := t[i+1] - t[i]
	s := (at - t[i]) / h
	h00 := 2*s*s*s - 3*s*s + 1
	h10 := s*s*s - 2*s*s + s
	h01 := -2*s*s*s + 3*s*s
	h11 := s*s*s - s*s
	terms := []float64{h00 * v[i], h10 * h * c[i], h01 * v[i+1], h11 * h * c[i+1]}
	return floats.Sum(terms)
}

func pchipDerivative(t, v, c []float64, i int, at float64) float64 {
	h := t[i+1] - t[i]
	s := (at - t[i]) / h
	dh00 := 6*s*s - 6*s
	dh10 := 3*s*s - 4*s + 1
	dh01 := -6*s*s + 6*s
	dh11 := 3*s*s - 2*s
	return (dh00*v[i]+dh01*v[i+1])/h + dh10*c[i] + dh11*c[i+1]
}
