package transients

import "github.com/jamesb93/go-transients/internal/engine"

// Analysis geometry limits.
const (
	// MinOrder is the smallest usable model order; below this the
	// predictor cannot track typical audio spectra.
	MinOrder = 10

	// MinBlockSize is the smallest analysis block; it must also exceed
	// the model order.
	MinBlockSize = 100
)

// Default analysis configuration, re-exported from the engine.
const (
	DefaultOrder     = engine.DefaultOrder
	DefaultBlockSize = engine.DefaultBlockSize
	DefaultPadding   = engine.DefaultPadding

	DefaultIterations   = engine.DefaultIterations
	DefaultRobustFactor = engine.DefaultRobustFactor
	DefaultRefine       = engine.DefaultRefine
)

// Default detection parameters.
const (
	// DefaultSkew leaves the forward error unscaled (2^0 = 1).
	DefaultSkew = 0.0

	// DefaultThresholdForward opens a transient at twice the residual
	// deviation of the fitted model.
	DefaultThresholdForward = 2.0

	// DefaultThresholdBackward closes a transient once the backward error
	// settles just above the residual deviation.
	DefaultThresholdBackward = 1.1

	// DefaultWindowSize widens detected regions by half this many samples
	// on each side.
	DefaultWindowSize = 14

	// DefaultDebounce is the number of consecutive quiet samples required
	// before a transient closes.
	DefaultDebounce = 25
)

// Skew bounds, in log2 units.
const (
	minSkew = -10.0
	maxSkew = 10.0
)
