package engine

// Default analysis parameters. These mirror the values the extractor was
// tuned with: a 20th-order model over 256-sample blocks with 128 samples of
// lookahead padding.
const (
	DefaultOrder     = 20
	DefaultBlockSize = 256
	DefaultPadding   = 128

	DefaultIterations   = 3
	DefaultRobustFactor = 3.0
	DefaultRefine       = false
)

// Model fitting constants.
const (
	// ridgeScale sets the initial diagonal loading relative to the average
	// diagonal of the normal-equations matrix.
	ridgeScale = 1e-9

	// ridgeGrowth multiplies the diagonal loading after each failed
	// factorization attempt.
	ridgeGrowth = 100.0

	// maxRidgeAttempts caps factorization retries before the fitter gives
	// up and returns a zero model.
	maxRidgeAttempts = 6
)

// Detection and interpolation constants.
const (
	// sigmaFloor bounds the residual deviation used to normalize the
	// prediction error, so silent input produces zero normalized error
	// instead of 0/0.
	sigmaFloor = 1e-9

	// minCleanFactor is the number of clean samples required per model
	// coefficient before the interpolator refits on clean context instead
	// of reusing the detection model.
	minCleanFactor = 2

	// extrapolationHeadroom bounds recursive extrapolation relative to the
	// frame peak, protecting against marginally unstable models.
	extrapolationHeadroom = 8.0
)
