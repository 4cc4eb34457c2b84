// Package testutil provides reusable test helpers for transient extraction
// tests: deterministic signal generators and slice assertions.
package testutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance  = 1e-10
	ReconstructionTol = 1e-9
	CoefficientTol    = 1e-6
)

// Sine returns n samples of a sine wave with the given normalized frequency
// (cycles per sample) and amplitude.
func Sine(n int, freq, amp float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i))
	}
	return s
}

// Noise returns n samples of deterministic uniform noise in [-amp, amp].
// The same seed always yields the same signal.
func Noise(n int, amp float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * (2*rng.Float64() - 1)
	}
	return s
}

// AddImpulse adds a single-sample impulse of the given amplitude at pos.
func AddImpulse(s []float64, pos int, amp float64) []float64 {
	s[pos] += amp
	return s
}

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(v, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertAllInRange verifies that all elements are within [minVal, maxVal].
func AssertAllInRange(t *testing.T, s []float64, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v < minVal || v > maxVal {
			return assert.Fail(t, "value out of range",
				"s[%d]=%f is outside range [%f, %f]", i, v, minVal, maxVal)
		}
	}
	return true
}

// AssertAllNear verifies that every element of s is within tolerance of want.
func AssertAllNear(t *testing.T, s []float64, want, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.Abs(v-want) > tolerance {
			return assert.Fail(t, "value not near target",
				"s[%d]=%g differs from %g by more than %g", i, v, want, tolerance)
		}
	}
	return true
}

// AssertReconstructs verifies that transient + residual equals the original
// signal at every sample, the core guarantee of the extractor.
func AssertReconstructs(t *testing.T, original, transient, residual []float64, tolerance float64) bool {
	t.Helper()
	if !assert.Len(t, transient, len(original)) || !assert.Len(t, residual, len(original)) {
		return false
	}
	for i := range original {
		sum := transient[i] + residual[i]
		if math.Abs(sum-original[i]) > tolerance {
			return assert.Fail(t, "reconstruction mismatch",
				"transient[%d]+residual[%d]=%g, original=%g", i, i, sum, original[i])
		}
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and
// expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}

// PeakAbs returns the largest absolute value in s.
func PeakAbs(s []float64) float64 {
	peak := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}
