package engine

import "math"

// DetectionParams are the per-block detection tunables. They take effect on
// the next analysis frame and never require a stream rebuild.
type DetectionParams struct {
	// Gain is a linear multiplier applied to the normalized forward
	// prediction error before threshold comparison.
	Gain float64

	// OnThreshold opens a transient when the scaled forward error
	// exceeds it.
	OnThreshold float64

	// OffThreshold closes a transient when the backward error stays
	// below it.
	OffThreshold float64

	// HalfWindow widens each detected interval on both sides.
	HalfWindow int

	// Debounce is the number of consecutive below-threshold backward
	// samples required before an interval closes.
	Debounce int
}

// State enumerates the detector's hysteresis states.
type State int

const (
	// StateIdle means no transient is currently open.
	StateIdle State = iota

	// StateInTransient means an onset was seen and no confirmed offset yet.
	StateInTransient
)

// Interval is a half-open span of frame positions covered by one transient.
type Interval struct {
	Start int
	End   int
}

// Detector turns per-sample prediction errors into transient intervals.
// The hysteresis state and debounce count persist across frames within one
// streaming session so a transient spanning a frame boundary is not
// force-closed. The detector never fails; worst case it emits no intervals.
type Detector struct {
	state   State
	confirm int // consecutive below-threshold backward samples
}

// NewDetector creates a detector in the idle state.
func NewDetector() *Detector {
	return &Detector{}
}

// Reset returns the detector to idle, discarding hysteresis continuity.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.confirm = 0
}

// State returns the current hysteresis state.
func (d *Detector) State() State {
	return d.state
}

// Detect scans the detection region [regionStart, regionEnd) of one frame
// and appends the transient intervals found to dst, in ascending
// non-overlapping order. fwdErr and backErr are the per-sample prediction
// errors over the whole frame; backErr is only defined below backValid.
// sigma normalizes both error signals and must be positive.
//
// An interval opens when the scaled forward error exceeds OnThreshold; its
// start is widened by HalfWindow, clamped to the region. It closes once the
// backward error has stayed below OffThreshold for Debounce consecutive
// samples, and ends HalfWindow past the first sample of that confirmed run,
// clamped to the region. A single dip below the threshold does not close the
// interval. Widened intervals that overlap are merged. An interval still
// open at the region end is emitted up to the region boundary and the
// detector carries its state into the next frame.
func (d *Detector) Detect(dst []Interval, fwdErr, backErr []float64, backValid int,
	regionStart, regionEnd int, sigma float64, p DetectionParams) []Interval {

	inv := 1.0 / sigma
	open := regionStart // start of the interval in progress, if any

	for t := regionStart; t < regionEnd; t++ {
		switch d.state {
		case StateIdle:
			if p.Gain*math.Abs(fwdErr[t])*inv > p.OnThreshold {
				open = t - p.HalfWindow
				if open < regionStart {
					open = regionStart
				}
				// A widened start reaching back into the previous interval
				// continues that interval instead of starting a new one.
				if k := len(dst); k > 0 && open <= dst[k-1].End {
					open = dst[k-1].Start
					dst = dst[:k-1]
				}
				d.state = StateInTransient
				d.confirm = 0
			}

		case StateInTransient:
			below := false
			if t < backValid {
				below = math.Abs(backErr[t])*inv < p.OffThreshold
			}
			if !below {
				d.confirm = 0
				continue
			}
			d.confirm++
			if d.confirm < p.Debounce {
				continue
			}
			// The interval ends where the error first dropped, not where
			// the debounce run completed.
			runStart := t - d.confirm + 1
			end := runStart + p.HalfWindow
			if end > regionEnd {
				end = regionEnd
			}
			if end > open {
				dst = append(dst, Interval{Start: open, End: end})
			}
			d.state = StateIdle
			d.confirm = 0
		}
	}

	if d.state == StateInTransient && regionEnd > open {
		// Still open at the frame edge: emit the covered span and carry the
		// state into the next frame.
		dst = append(dst, Interval{Start: open, End: regionEnd})
	}
	return dst
}
