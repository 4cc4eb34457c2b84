package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesb93/go-transients/internal/testutil"
)

const testFrameSize = 384

// TestFitter_RecoversSinusoidPredictor verifies the fit on an exactly
// predictable signal. A pure sinusoid satisfies the order-2 recursion
// x[t] = 2·cos(ω)·x[t-1] − x[t-2] in both time directions, so the
// forward-backward solution is exact up to numerical precision.
func TestFitter_RecoversSinusoidPredictor(t *testing.T) {
	const freq = 0.05 // cycles per sample
	frame := testutil.Sine(testFrameSize, freq, 1.0)

	f := NewFitter(2, testFrameSize, 1, DefaultRobustFactor, false)
	m := NewModel(2)
	f.Fit(frame, nil, m)

	omega := 2 * math.Pi * freq
	coeffs := m.Coefficients()
	assert.InDelta(t, 2*math.Cos(omega), coeffs[0], testutil.CoefficientTol, "a_1")
	assert.InDelta(t, -1.0, coeffs[1], testutil.CoefficientTol, "a_2")
	assert.Less(t, m.Sigma(), 1e-6, "a sinusoid must be predicted near-perfectly")
}

// TestFitter_ZeroInputYieldsZeroModel covers the degenerate all-silence
// window: the normal equations vanish and the model must come back zero
// rather than NaN.
func TestFitter_ZeroInputYieldsZeroModel(t *testing.T) {
	frame := make([]float64, testFrameSize)

	f := NewFitter(DefaultOrder, testFrameSize, DefaultIterations, DefaultRobustFactor, false)
	m := NewModel(DefaultOrder)
	f.Fit(frame, nil, m)

	testutil.AssertNoNaNOrInf(t, m.Coefficients())
	testutil.AssertAllNear(t, m.Coefficients(), 0, 0, "zero input must give zero coefficients")
	assert.Zero(t, m.Variance())
}

// TestFitter_ConstantInputStaysFinite feeds DC, whose normal equations are
// rank one. Diagonal loading must keep the solve finite.
func TestFitter_ConstantInputStaysFinite(t *testing.T) {
	frame := make([]float64, testFrameSize)
	for i := range frame {
		frame[i] = 1.0
	}

	f := NewFitter(DefaultOrder, testFrameSize, DefaultIterations, DefaultRobustFactor, false)
	m := NewModel(DefaultOrder)
	f.Fit(frame, nil, m)

	testutil.AssertNoNaNOrInf(t, m.Coefficients())
	assert.False(t, math.IsNaN(m.Variance()))
	assert.False(t, math.IsInf(m.Variance(), 0))
}

// TestFitter_RobustIterationBoundsOutlierInfluence is the central trick of
// the whole extractor: with reweighting enabled, an embedded impulse must
// not drag the steady-state model, so the fit keeps predicting the clean
// signal and leaves a large residual exactly at the impulse.
func TestFitter_RobustIterationBoundsOutlierInfluence(t *testing.T) {
	const freq = 0.03
	dirty := testutil.AddImpulse(testutil.Sine(testFrameSize, freq, 1.0), testFrameSize/2, 5.0)

	plain := NewFitter(2, testFrameSize, 1, DefaultRobustFactor, false)
	robust := NewFitter(2, testFrameSize, DefaultIterations, DefaultRobustFactor, false)

	mPlain := NewModel(2)
	mRobust := NewModel(2)
	plain.Fit(dirty, nil, mPlain)
	robust.Fit(dirty, nil, mRobust)

	// The robust fit converges toward the clean-signal predictor.
	omega := 2 * math.Pi * freq
	errPlain := math.Abs(mPlain.Coefficients()[0]-2*math.Cos(omega)) + math.Abs(mPlain.Coefficients()[1]+1)
	errRobust := math.Abs(mRobust.Coefficients()[0]-2*math.Cos(omega)) + math.Abs(mRobust.Coefficients()[1]+1)
	assert.Less(t, errRobust, errPlain, "reweighting must pull coefficients toward the clean predictor")

	// The downweighted impulse no longer inflates the residual estimate.
	assert.Less(t, mRobust.Sigma(), mPlain.Sigma())

	// And the prediction error still exposes the impulse.
	fwd := make([]float64, testFrameSize)
	mRobust.ForwardErrors(fwd, dirty)
	assert.Greater(t, math.Abs(fwd[testFrameSize/2]), 1.0,
		"the impulse must stand out against the robust model")
}

// TestFitter_MaskExcludesCorruptedSpan verifies weighted fitting with an
// explicit mask: zero-weight samples contribute no prediction equations, so
// a heavily corrupted span inside the window must not disturb the fit.
func TestFitter_MaskExcludesCorruptedSpan(t *testing.T) {
	const freq = 0.04
	frame := testutil.Sine(testFrameSize, freq, 1.0)
	mask := make([]float64, testFrameSize)
	for i := range mask {
		mask[i] = 1
	}
	// Corrupt a span and mask it out together with the regressor margin.
	for i := 180; i < 200; i++ {
		frame[i] += 50
	}
	for i := 180 - 2; i < 200+2; i++ {
		mask[i] = 0
	}

	f := NewFitter(2, testFrameSize, 1, DefaultRobustFactor, false)
	m := NewModel(2)
	f.Fit(frame, mask, m)

	omega := 2 * math.Pi * freq
	assert.InDelta(t, 2*math.Cos(omega), m.Coefficients()[0], 1e-4)
	assert.InDelta(t, -1.0, m.Coefficients()[1], 1e-4)
}

// TestFitter_Deterministic verifies identical input yields identical fits.
func TestFitter_Deterministic(t *testing.T) {
	frame := testutil.AddImpulse(testutil.Noise(testFrameSize, 0.3, 7), 100, 2.0)

	f1 := NewFitter(DefaultOrder, testFrameSize, DefaultIterations, DefaultRobustFactor, false)
	f2 := NewFitter(DefaultOrder, testFrameSize, DefaultIterations, DefaultRobustFactor, false)
	m1 := NewModel(DefaultOrder)
	m2 := NewModel(DefaultOrder)
	f1.Fit(frame, nil, m1)
	f2.Fit(frame, nil, m2)

	assert.Equal(t, m1.Coefficients(), m2.Coefficients())
	assert.Equal(t, m1.Variance(), m2.Variance())

	// Refitting with the same fitter must not carry state across calls.
	m3 := NewModel(DefaultOrder)
	f1.Fit(frame, nil, m3)
	assert.Equal(t, m1.Coefficients(), m3.Coefficients())
	assert.Equal(t, m1.Variance(), m3.Variance())
}

// TestModel_ErrorArrayBoundaries checks the defined regions of the error
// arrays: no history on the left for forward errors, no lookahead on the
// right for backward errors.
func TestModel_ErrorArrayBoundaries(t *testing.T) {
	const order = 4
	frame := testutil.Noise(64, 1.0, 11)

	f := NewFitter(order, 64, 1, DefaultRobustFactor, false)
	m := NewModel(order)
	f.Fit(frame, nil, m)

	fwd := make([]float64, 64)
	back := make([]float64, 64)
	m.ForwardErrors(fwd, frame)
	m.BackwardErrors(back, frame)

	for tt := 0; tt < order; tt++ {
		assert.Zero(t, fwd[tt], "forward error before first full history at %d", tt)
	}
	for tt := 64 - order; tt < 64; tt++ {
		assert.Zero(t, back[tt], "backward error without lookahead at %d", tt)
	}
	assert.Equal(t, 60, m.BackwardValid(64))

	require.NotPanics(t, func() {
		m.ForwardErrors(fwd, frame)
		m.BackwardErrors(back, frame)
	})
}

func BenchmarkFitter_Fit(b *testing.B) {
	frame := testutil.AddImpulse(testutil.Noise(testFrameSize, 0.3, 3), 200, 2.0)
	f := NewFitter(DefaultOrder, testFrameSize, DefaultIterations, DefaultRobustFactor, false)
	m := NewModel(DefaultOrder)

	b.ReportAllocs()
	for b.Loop() {
		f.Fit(frame, nil, m)
	}
}
