package transients

import (
	"errors"
	"fmt"
	"math"

	"github.com/jamesb93/go-transients/internal/engine"
)

// Common errors returned by the extractor.
var (
	// ErrInvalidConfig indicates invalid analysis configuration.
	ErrInvalidConfig = errors.New("invalid extractor configuration")

	// ErrInvalidParams indicates invalid detection parameters.
	ErrInvalidParams = errors.New("invalid detection parameters")

	// ErrBlockMismatch indicates mismatched input/output block lengths.
	ErrBlockMismatch = errors.New("output block length does not match input")
)

// Config holds the analysis configuration. Changing any field rebuilds the
// internal stream and discards buffered audio, so reconfiguration belongs at
// stream boundaries, not mid-signal.
type Config struct {
	// Order is the linear predictor order. Minimum MinOrder.
	Order int

	// BlockSize is the analysis block length in samples. Minimum
	// MinBlockSize, and strictly greater than Order.
	BlockSize int

	// Padding is the lookahead context in samples appended to each
	// analysis block. More padding improves offset confirmation and
	// interpolation at the cost of latency.
	Padding int

	// Iterations is the number of model fitting passes; values above one
	// enable outlier-robust reweighting. Zero selects the default.
	Iterations int

	// RobustFactor is the residual deviation multiple beyond which samples
	// are downweighted during refitting. Zero selects the default.
	RobustFactor float64

	// Refine adds a final fitting pass without robust weights.
	Refine bool
}

// DefaultConfig returns the standard analysis configuration: a 20th-order
// model over 256-sample blocks with 128 samples of lookahead.
func DefaultConfig() Config {
	return Config{
		Order:        DefaultOrder,
		BlockSize:    DefaultBlockSize,
		Padding:      DefaultPadding,
		Iterations:   DefaultIterations,
		RobustFactor: DefaultRobustFactor,
		Refine:       DefaultRefine,
	}
}

// withDefaults fills unset fit parameters.
func (c Config) withDefaults() Config {
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.RobustFactor == 0 {
		c.RobustFactor = DefaultRobustFactor
	}
	return c
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Order < MinOrder {
		return fmt.Errorf("%w: order must be at least %d, got %d", ErrInvalidConfig, MinOrder, c.Order)
	}
	if c.BlockSize < MinBlockSize {
		return fmt.Errorf("%w: block size must be at least %d, got %d", ErrInvalidConfig, MinBlockSize, c.BlockSize)
	}
	if c.BlockSize <= c.Order {
		return fmt.Errorf("%w: block size %d must exceed order %d", ErrInvalidConfig, c.BlockSize, c.Order)
	}
	if c.Padding < 0 {
		return fmt.Errorf("%w: padding must be non-negative, got %d", ErrInvalidConfig, c.Padding)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.RobustFactor <= 0 {
		return fmt.Errorf("%w: robust factor must be positive, got %g", ErrInvalidConfig, c.RobustFactor)
	}
	return nil
}

// Latency returns the fixed input-to-output delay this configuration
// produces: padding + blockSize − order samples.
func (c *Config) Latency() int {
	return c.Padding + c.BlockSize - c.Order
}

// DetectionParams are the per-block detection tunables. They take effect on
// the next analysis frame without rebuilding the stream.
type DetectionParams struct {
	// Skew scales the forward detection error, in log2 units within
	// [-10, 10]; the applied multiplier is 2^Skew. Positive values make
	// onset detection more eager.
	Skew float64

	// ThresholdForward is the onset threshold on the normalized forward
	// prediction error. Must be positive.
	ThresholdForward float64

	// ThresholdBackward is the offset threshold on the normalized backward
	// prediction error. Must be positive.
	ThresholdBackward float64

	// WindowSize widens each detected region by half this many samples on
	// each side. Must be within [0, Order].
	WindowSize int

	// Debounce is the number of consecutive below-threshold samples
	// required before a detected region closes.
	Debounce int
}

// DefaultDetectionParams returns the standard detection tuning.
func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		Skew:              DefaultSkew,
		ThresholdForward:  DefaultThresholdForward,
		ThresholdBackward: DefaultThresholdBackward,
		WindowSize:        DefaultWindowSize,
		Debounce:          DefaultDebounce,
	}
}

// Validate checks the detection parameters against the active model order.
func (p *DetectionParams) Validate(order int) error {
	if p.Skew < minSkew || p.Skew > maxSkew {
		return fmt.Errorf("%w: skew must be in [%g, %g], got %g", ErrInvalidParams, minSkew, maxSkew, p.Skew)
	}
	if p.ThresholdForward <= 0 {
		return fmt.Errorf("%w: forward threshold must be positive, got %g", ErrInvalidParams, p.ThresholdForward)
	}
	if p.ThresholdBackward <= 0 {
		return fmt.Errorf("%w: backward threshold must be positive, got %g", ErrInvalidParams, p.ThresholdBackward)
	}
	if p.WindowSize < 0 || p.WindowSize > order {
		return fmt.Errorf("%w: window size must be in [0, %d], got %d", ErrInvalidParams, order, p.WindowSize)
	}
	if p.Debounce < 0 {
		return fmt.Errorf("%w: debounce must be non-negative, got %d", ErrInvalidParams, p.Debounce)
	}
	return nil
}

// engineParams maps host-facing parameters onto the engine's detection
// parameters: skew is de-logged and the window size halved, flooring odd
// values.
func (p *DetectionParams) engineParams() engine.DetectionParams {
	return engine.DetectionParams{
		Gain:         math.Exp2(p.Skew),
		OnThreshold:  p.ThresholdForward,
		OffThreshold: p.ThresholdBackward,
		HalfWindow:   p.WindowSize / 2,
		Debounce:     p.Debounce,
	}
}

// Extractor separates a mono stream into transient and residual components,
// one host block at a time. Create one with New. An Extractor must not be
// shared across concurrent callers without external locking.
type Extractor struct {
	cfg Config
	eng *engine.Extractor
}

// New creates an extractor. A nil config selects DefaultConfig; unset fit
// parameters in a non-nil config are filled with defaults.
func New(cfg *Config) (*Extractor, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = cfg.withDefaults()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	eng, err := engine.NewExtractor(engineConfig(c, c.BlockSize))
	if err != nil {
		return nil, err
	}
	return &Extractor{cfg: c, eng: eng}, nil
}

// engineConfig maps a public configuration onto the engine configuration.
func engineConfig(c Config, hostSize int) engine.Config {
	return engine.Config{
		Order:        c.Order,
		BlockSize:    c.BlockSize,
		Padding:      c.Padding,
		HostSize:     hostSize,
		Iterations:   c.Iterations,
		RobustFactor: c.RobustFactor,
		Refine:       c.Refine,
	}
}

// Configure applies a new analysis configuration. When cfg equals the
// current configuration this is a no-op and the stream continues untouched;
// otherwise the stream buffer is rebuilt, buffered audio is discarded and
// the detector returns to idle.
func (x *Extractor) Configure(cfg Config) error {
	c := cfg.withDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := x.eng.Configure(engineConfig(c, x.eng.Config().HostSize)); err != nil {
		return err
	}
	x.cfg = c
	return nil
}

// Config returns the active configuration.
func (x *Extractor) Config() Config { return x.cfg }

// Latency returns the fixed delay of output relative to input, in samples.
// Hosts should delay parallel signal paths by this amount.
func (x *Extractor) Latency() int { return x.eng.Latency() }

// Reset discards buffered audio and detection state without changing the
// configuration.
func (x *Extractor) Reset() { x.eng.Reset() }

// Process consumes one host block and returns newly allocated transient and
// residual blocks of the same length, delayed by Latency samples.
func (x *Extractor) Process(input []float64, p DetectionParams) (transient, residual []float64, err error) {
	transient = make([]float64, len(input))
	residual = make([]float64, len(input))
	if err := x.ProcessTo(transient, residual, input, p); err != nil {
		return nil, nil, err
	}
	return transient, residual, nil
}

// ProcessTo is like Process but writes into caller-provided blocks, avoiding
// allocation in steady-state streaming. Both output blocks must have the
// same length as input.
func (x *Extractor) ProcessTo(transient, residual, input []float64, p DetectionParams) error {
	if len(transient) != len(input) || len(residual) != len(input) {
		return fmt.Errorf("%w: input %d, transient %d, residual %d",
			ErrBlockMismatch, len(input), len(transient), len(residual))
	}
	if err := p.Validate(x.cfg.Order); err != nil {
		return err
	}
	return x.eng.Process(input, p.engineParams(), transient, residual)
}
