package engine

import (
	"errors"
	"fmt"

	"github.com/jamesb93/go-transients/internal/pipeline"
)

// ErrInvalidConfig indicates an invalid analysis configuration.
var ErrInvalidConfig = errors.New("invalid extractor configuration")

// Config holds the analysis geometry and fit parameters of one streaming
// session. Changing any field requires a stream rebuild.
type Config struct {
	// Order is the linear predictor order.
	Order int

	// BlockSize is the length of the analysis block; together with Padding
	// it sets the frame the model is fitted over.
	BlockSize int

	// Padding is the lookahead context appended to each analysis block.
	Padding int

	// HostSize is the largest block the host delivers per process call.
	HostSize int

	// Iterations, RobustFactor and Refine parameterize the robust model
	// fit; see Fitter.
	Iterations   int
	RobustFactor float64
	Refine       bool
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Order < 1 {
		return fmt.Errorf("%w: order must be at least 1, got %d", ErrInvalidConfig, c.Order)
	}
	if c.BlockSize <= c.Order {
		// An equal block and order would leave a zero hop and stall the
		// stream, so the bound is strict.
		return fmt.Errorf("%w: block size %d must exceed order %d", ErrInvalidConfig, c.BlockSize, c.Order)
	}
	if c.Padding < 0 {
		return fmt.Errorf("%w: padding must be non-negative, got %d", ErrInvalidConfig, c.Padding)
	}
	if c.HostSize < 1 {
		return fmt.Errorf("%w: host size must be at least 1, got %d", ErrInvalidConfig, c.HostSize)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.RobustFactor <= 0 {
		return fmt.Errorf("%w: robust factor must be positive, got %g", ErrInvalidConfig, c.RobustFactor)
	}
	return nil
}

// FrameSize returns the analysis frame length: block plus lookahead padding.
func (c *Config) FrameSize() int { return c.Padding + c.BlockSize }

// HopSize returns the analysis hop. Consecutive frames overlap by
// order + padding samples so every emitted sample has full model context on
// the left and full lookahead on the right.
func (c *Config) HopSize() int { return c.BlockSize - c.Order }

// Latency returns the fixed input-to-output delay in samples.
func (c *Config) Latency() int { return c.Padding + c.BlockSize - c.Order }

// Extractor drives the synchronous per-block transient extraction: windowed
// buffering, model fitting, detection and interpolation. It is
// single-threaded; callers must serialize Process calls per instance.
type Extractor struct {
	cfg Config

	buf      *pipeline.StreamBuffer
	fitter   *Fitter
	detector *Detector
	interp   *Interpolator

	model     *Model
	fwdErr    []float64
	backErr   []float64
	intervals []Interval
	params    DetectionParams
}

// NewExtractor creates an extractor for the given configuration.
func NewExtractor(cfg Config) (*Extractor, error) {
	e := &Extractor{}
	if err := e.Configure(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure applies cfg. A configuration identical to the current one is a
// no-op; any change rebuilds the stream buffer and fit workspaces and resets
// the detector, discarding buffered data and partial frames. Stale state is
// never carried across a rebuild.
func (e *Extractor) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.buf != nil && cfg == e.cfg {
		return nil
	}

	buf, err := pipeline.NewStreamBuffer(pipeline.Geometry{
		HostSize:  cfg.HostSize,
		FrameSize: cfg.FrameSize(),
		Hop:       cfg.HopSize(),
		LeadIn:    cfg.Order,
		// Only the hop-aligned span with full left context is final per
		// frame; the lookahead tail is recomputed by the next frame.
		EmitOffset: cfg.Order,
		EmitLen:    cfg.HopSize(),
		Latency:    cfg.Latency(),
	})
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.buf = buf
	e.fitter = NewFitter(cfg.Order, cfg.FrameSize(), cfg.Iterations, cfg.RobustFactor, cfg.Refine)
	e.detector = NewDetector()
	e.interp = NewInterpolator(cfg.Order, cfg.FrameSize(), cfg.Iterations, cfg.RobustFactor, cfg.Refine)
	e.model = NewModel(cfg.Order)
	e.fwdErr = make([]float64, cfg.FrameSize())
	e.backErr = make([]float64, cfg.FrameSize())
	e.intervals = make([]Interval, 0, cfg.HopSize())
	return nil
}

// Config returns the active configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Latency returns the fixed delay between input and output samples.
func (e *Extractor) Latency() int { return e.cfg.Latency() }

// DetectorState exposes the detector's hysteresis state, mainly for tests
// and diagnostics.
func (e *Extractor) DetectorState() State { return e.detector.State() }

// Reset discards all buffered audio and detection state without changing
// the configuration.
func (e *Extractor) Reset() {
	e.buf.Reset()
	e.detector.Reset()
	e.intervals = e.intervals[:0]
}

// Process consumes one host block and fills transient and residual with the
// corresponding output blocks, delayed by Latency samples. Detection
// parameters take effect on the next analysis frame. A host block larger
// than the configured host size triggers a rebuild, as a host changing its
// vector size invalidates the buffered stream.
func (e *Extractor) Process(input []float64, p DetectionParams, transient, residual []float64) error {
	if len(transient) != len(input) || len(residual) != len(input) {
		return fmt.Errorf("%w: output blocks must match input length %d (got %d, %d)",
			ErrInvalidConfig, len(input), len(transient), len(residual))
	}
	if len(input) > e.cfg.HostSize {
		cfg := e.cfg
		cfg.HostSize = len(input)
		if err := e.Configure(cfg); err != nil {
			return err
		}
	}

	e.params = p
	e.buf.Push(input)
	e.buf.Process(e.analyzeFrame)
	e.buf.Pull(transient, residual)
	return nil
}

// analyzeFrame runs one fit→detect→interpolate pass over a full analysis
// frame. Steady-state processing reuses the workspaces allocated at
// configure time and does not allocate.
func (e *Extractor) analyzeFrame(in, outT, outR []float64) {
	e.fitter.Fit(in, nil, e.model)
	e.model.ForwardErrors(e.fwdErr, in)
	e.model.BackwardErrors(e.backErr, in)

	sigma := e.model.Sigma()
	if sigma < sigmaFloor {
		sigma = sigmaFloor
	}

	regionStart := e.cfg.Order
	regionEnd := regionStart + e.cfg.HopSize()
	e.intervals = e.detector.Detect(e.intervals[:0], e.fwdErr, e.backErr,
		e.model.BackwardValid(len(in)), regionStart, regionEnd, sigma, e.params)

	e.interp.Reconstruct(in, e.model, e.intervals, outR, outT)
}
