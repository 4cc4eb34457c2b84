// Package engine implements the streaming transient extraction core: robust
// linear-predictive model fitting, hysteresis-based transient detection, and
// model-based interpolation of the steady-state signal.
package engine

import (
	"math"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Model is a fitted linear predictor: each sample is estimated as a weighted
// sum of its `order` neighbors. A Model is a plain value holder; it is
// written once by a Fitter and read by the detector and interpolator.
type Model struct {
	order    int
	fwd      []float64 // fwd[k-1] weights x[t±k]
	rev      []float64 // reversed coefficients for contiguous dot products
	variance float64
}

// NewModel creates a zero model of the given order.
func NewModel(order int) *Model {
	return &Model{
		order: order,
		fwd:   make([]float64, order),
		rev:   make([]float64, order),
	}
}

// Order returns the model order.
func (m *Model) Order() int { return m.order }

// Coefficients returns the predictor coefficients a_1..a_p, where the
// forward prediction is x̂[t] = Σ a_k·x[t-k]. The slice is owned by the
// model and must not be modified.
func (m *Model) Coefficients() []float64 { return m.fwd }

// Variance returns the residual-energy estimate of the fit.
func (m *Model) Variance() float64 { return m.variance }

// Sigma returns the residual standard deviation of the fit.
func (m *Model) Sigma() float64 { return math.Sqrt(m.variance) }

// setCoefficients installs a_1..a_p and the reversed layout used by the
// contiguous-window dot products.
func (m *Model) setCoefficients(a []float64) {
	copy(m.fwd, a)
	for i, v := range a {
		m.rev[m.order-1-i] = v
	}
}

// zero resets the model to the trivial all-zero predictor.
func (m *Model) zero() {
	clear(m.fwd)
	clear(m.rev)
	m.variance = 0
}

// predictForward returns the one-step forward prediction of x[t] from the
// `order` samples preceding it. Requires t >= order.
func (m *Model) predictForward(x []float64, t int) float64 {
	return f64.DotProductUnsafe(m.rev, x[t-m.order:t])
}

// predictBackward returns the one-step backward prediction of x[t] from the
// `order` samples following it. Requires t+order < len(x).
func (m *Model) predictBackward(x []float64, t int) float64 {
	return f64.DotProductUnsafe(m.fwd, x[t+1:t+1+m.order])
}

// ForwardErrors fills dst[t] with the forward prediction error x[t]−x̂[t]
// for t in [order, len(x)); earlier positions have no history and read zero.
// dst must have the same length as x.
func (m *Model) ForwardErrors(dst, x []float64) {
	for t := 0; t < m.order && t < len(x); t++ {
		dst[t] = 0
	}
	for t := m.order; t < len(x); t++ {
		dst[t] = x[t] - m.predictForward(x, t)
	}
}

// BackwardErrors fills dst[t] with the backward prediction error for
// t in [0, len(x)−order); trailing positions have no lookahead and read
// zero. dst must have the same length as x.
func (m *Model) BackwardErrors(dst, x []float64) {
	limit := len(x) - m.order
	for t := 0; t < limit; t++ {
		dst[t] = x[t] - m.predictBackward(x, t)
	}
	for t := max(limit, 0); t < len(x); t++ {
		dst[t] = 0
	}
}

// BackwardValid returns the number of leading positions of an n-sample
// window for which the backward prediction error is defined.
func (m *Model) BackwardValid(n int) int {
	return max(n-m.order, 0)
}

// Fitter estimates Model coefficients by forward-backward least squares over
// one analysis window, with optional iterative outlier-robust reweighting.
// All workspaces are allocated at construction and reused across fits, so a
// Fitter is cheap to call per frame but not safe for concurrent use.
type Fitter struct {
	order        int
	frameSize    int
	iterations   int
	robustFactor float64
	refine       bool

	// Normal-equations workspaces. sym and rhs alias symData and rhsData so
	// the accumulation loop can fill flat storage directly.
	symData []float64
	rhsData []float64
	sym     *mat.SymDense
	rhs     *mat.VecDense
	sol     *mat.VecDense
	chol    mat.Cholesky

	weights []float64 // per-sample equation weights for the current pass
	fwdErr  []float64
	backErr []float64
	absErr  []float64
}

// NewFitter creates a fitter for windows of frameSize samples.
// iterations is the total number of least-squares passes; values above one
// enable robust reweighting. robustFactor is the residual deviation multiple
// beyond which samples are downweighted. refine adds a final pass without
// robust weights.
func NewFitter(order, frameSize, iterations int, robustFactor float64, refine bool) *Fitter {
	if iterations < 1 {
		iterations = 1
	}
	f := &Fitter{
		order:        order,
		frameSize:    frameSize,
		iterations:   iterations,
		robustFactor: robustFactor,
		refine:       refine,
		symData:      make([]float64, order*order),
		rhsData:      make([]float64, order),
		sol:          mat.NewVecDense(order, nil),
		weights:      make([]float64, frameSize),
		fwdErr:       make([]float64, frameSize),
		backErr:      make([]float64, frameSize),
		absErr:       make([]float64, frameSize),
	}
	f.sym = mat.NewSymDense(order, f.symData)
	f.rhs = mat.NewVecDense(order, f.rhsData)
	return f
}

// Fit estimates coefficients for frame and writes them into m. mask, when
// non-nil, holds a base weight per sample (zero excludes the sample's
// prediction equations entirely); it must have the same length as frame.
// Fit is deterministic for identical input.
func (f *Fitter) Fit(frame, mask []float64, m *Model) {
	n := len(frame)
	f.resetWeights(mask, n)
	f.solveOnce(frame, m)

	for it := 1; it < f.iterations; it++ {
		f.reweight(frame, mask, m)
		f.solveOnce(frame, m)
	}

	if f.refine && f.iterations > 1 {
		f.resetWeights(mask, n)
		f.solveOnce(frame, m)
	}

	f.estimateVariance(frame, m)
}

// resetWeights restores the base weights (the mask, or all ones).
func (f *Fitter) resetWeights(mask []float64, n int) {
	if mask == nil {
		for t := 0; t < n; t++ {
			f.weights[t] = 1
		}
		return
	}
	copy(f.weights[:n], mask[:n])
}

// reweight recomputes per-sample weights from the current model's residuals.
// Samples whose residual magnitude exceeds robustFactor deviations keep only
// a proportional share of their base weight, bounding the influence of the
// transient itself on the steady-state fit.
func (f *Fitter) reweight(frame, mask []float64, m *Model) {
	n := len(frame)
	m.ForwardErrors(f.fwdErr[:n], frame)
	m.BackwardErrors(f.backErr[:n], frame)

	backValid := m.BackwardValid(n)
	for t := 0; t < n; t++ {
		e := 0.0
		if t >= f.order {
			e = math.Abs(f.fwdErr[t])
		}
		if t < backValid {
			if b := math.Abs(f.backErr[t]); b > e {
				e = b
			}
		}
		f.absErr[t] = e
	}

	sigma := stat.StdDev(f.fwdErr[f.order:n], f.weights[f.order:n])
	threshold := f.robustFactor * sigma
	if math.IsNaN(threshold) || threshold <= 0 {
		f.resetWeights(mask, n)
		return
	}

	for t := 0; t < n; t++ {
		base := 1.0
		if mask != nil {
			base = mask[t]
		}
		if e := f.absErr[t]; e > threshold {
			f.weights[t] = base * threshold / e
		} else {
			f.weights[t] = base
		}
	}
}

// solveOnce accumulates the weighted forward-backward normal equations and
// solves them, regularizing the diagonal when the system is near singular.
func (f *Fitter) solveOnce(frame []float64, m *Model) {
	p := f.order
	n := len(frame)
	clear(f.symData)
	clear(f.rhsData)

	for t := p; t < n; t++ {
		// Forward equation: x[t] ≈ Σ a_k·x[t-k], weighted by the sample
		// being predicted.
		if w := f.weights[t]; w > 0 {
			f.accumulate(w, frame[t], frame, t-1, -1)
		}
		// Backward equation for the mirrored position: x[s] ≈ Σ a_k·x[s+k].
		s := t - p
		if w := f.weights[s]; w > 0 {
			f.accumulate(w, frame[s], frame, s+1, 1)
		}
	}

	trace := 0.0
	for i := 0; i < p; i++ {
		trace += f.symData[i*p+i]
	}
	if trace <= 0 {
		// Degenerate window (all weighted samples zero): the steady state
		// is silence.
		m.zero()
		return
	}

	load := ridgeScale * trace / float64(p)
	for attempt := 0; attempt <= maxRidgeAttempts; attempt++ {
		if f.chol.Factorize(f.sym) {
			if err := f.chol.SolveVecTo(f.sol, f.rhs); err == nil && finiteVec(f.sol) {
				m.setCoefficients(f.sol.RawVector().Data)
				return
			}
		}
		for i := 0; i < p; i++ {
			f.symData[i*p+i] += load
		}
		load *= ridgeGrowth
	}
	m.zero()
}

// accumulate adds one weighted prediction equation to the normal equations.
// The regressor for coefficient a_{i+1} is frame[start + i*step]; target is
// the predicted sample value.
func (f *Fitter) accumulate(w, target float64, frame []float64, start, step int) {
	p := f.order
	for i := 0; i < p; i++ {
		xi := frame[start+i*step]
		if xi == 0 {
			continue
		}
		wxi := w * xi
		f.rhsData[i] += wxi * target
		row := i * p
		for j := i; j < p; j++ {
			f.symData[row+j] += wxi * frame[start+j*step]
		}
	}
}

// estimateVariance computes the weighted mean-square prediction error of the
// final coefficients, used to normalize detection thresholds.
func (f *Fitter) estimateVariance(frame []float64, m *Model) {
	n := len(frame)
	if n <= f.order {
		m.variance = 0
		return
	}
	m.ForwardErrors(f.fwdErr[:n], frame)
	v := stat.MomentAbout(2, f.fwdErr[f.order:n], 0, f.weights[f.order:n])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	m.variance = v
}

// finiteVec reports whether every element of v is finite.
func finiteVec(v *mat.VecDense) bool {
	raw := v.RawVector().Data
	for _, x := range raw {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
