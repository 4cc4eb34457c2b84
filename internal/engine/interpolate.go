package engine

import (
	"math"

	"github.com/tphakala/simd/f64"
)

// Interpolator re-estimates the steady-state signal across detected
// transient intervals by extrapolating a predictive model fitted on the
// clean context surrounding them. Outside intervals the residual passes the
// original signal through bit-exact; inside, transient + residual
// reconstructs the original by construction.
type Interpolator struct {
	order     int
	frameSize int

	fitter *Fitter
	clean  *Model

	mask  []float64  // 1 outside intervals, 0 inside
	ext   []float64  // forward extrapolation: order seed samples + interval
	bext  []float64  // backward extrapolation: interval + order seed samples
	spans []Interval // intervals after bridging near neighbors
}

// NewInterpolator creates an interpolator for frames of frameSize samples.
// The fit parameters match the Fitter used for detection.
func NewInterpolator(order, frameSize, iterations int, robustFactor float64, refine bool) *Interpolator {
	return &Interpolator{
		order:     order,
		frameSize: frameSize,
		fitter:    NewFitter(order, frameSize, iterations, robustFactor, refine),
		clean:     NewModel(order),
		mask:      make([]float64, frameSize),
		ext:       make([]float64, frameSize+order),
		bext:      make([]float64, frameSize+order),
		spans:     make([]Interval, 0, frameSize/2+1),
	}
}

// Reconstruct fills residual and transient for one frame. detected is the
// model fitted during detection, used as a fallback when too little clean
// context remains for a refit. residual and transient must have the same
// length as frame.
func (ip *Interpolator) Reconstruct(frame []float64, detected *Model, intervals []Interval, residual, transient []float64) {
	copy(residual, frame)
	clear(transient)
	if len(intervals) == 0 {
		return
	}

	intervals = ip.bridgeClose(intervals)
	model := ip.contextModel(frame, intervals, detected)
	limit := extrapolationHeadroom*peakAbs(frame) + sigmaFloor

	for _, iv := range intervals {
		ip.fillInterval(frame, model, iv, limit, residual, transient)
	}
}

// bridgeClose joins intervals separated by less than one model order. The
// samples between such intervals are too few to seed a stable extrapolation,
// and a backward seed read across them would include the raw transient of the
// following interval.
func (ip *Interpolator) bridgeClose(intervals []Interval) []Interval {
	ip.spans = ip.spans[:0]
	for _, iv := range intervals {
		if k := len(ip.spans); k > 0 && iv.Start-ip.spans[k-1].End < ip.order {
			ip.spans[k-1].End = iv.End
			continue
		}
		ip.spans = append(ip.spans, iv)
	}
	return ip.spans
}

// contextModel refits the predictor using only samples outside every
// detected interval. Each interval is widened by one model order on both
// sides so no prediction equation straddles transient samples. When fewer
// than minCleanFactor·order clean samples remain, the detection model is
// reused instead.
func (ip *Interpolator) contextModel(frame []float64, intervals []Interval, fallback *Model) *Model {
	n := len(frame)
	for i := 0; i < n; i++ {
		ip.mask[i] = 1
	}
	cleanCount := n
	for _, iv := range intervals {
		lo := max(iv.Start-ip.order, 0)
		hi := min(iv.End+ip.order, n)
		for t := lo; t < hi; t++ {
			if ip.mask[t] != 0 {
				ip.mask[t] = 0
				cleanCount--
			}
		}
	}
	if cleanCount < minCleanFactor*ip.order {
		return fallback
	}
	ip.fitter.Fit(frame, ip.mask[:n], ip.clean)
	return ip.clean
}

// fillInterval reconstructs one interval by recursive forward and backward
// extrapolation, cross-faded with equal-power gains so the two estimates
// hand over smoothly across the span. When one side has no clean context
// the other side's extrapolation is used alone.
func (ip *Interpolator) fillInterval(frame []float64, m *Model, iv Interval, limit float64, residual, transient []float64) {
	p := ip.order
	length := iv.End - iv.Start
	if length <= 0 {
		return
	}
	leftOK := iv.Start >= p
	rightOK := iv.End+p <= len(frame)

	if leftOK {
		// Seed from the residual so a preceding reconstructed interval
		// contributes its steady-state estimate, not the raw transient.
		copy(ip.ext[:p], residual[iv.Start-p:iv.Start])
		for i := 0; i < length; i++ {
			ip.ext[p+i] = clampMagnitude(f64.DotProductUnsafe(m.rev, ip.ext[i:i+p]), limit)
		}
	}
	if rightOK {
		copy(ip.bext[length:length+p], residual[iv.End:iv.End+p])
		for i := length - 1; i >= 0; i-- {
			ip.bext[i] = clampMagnitude(f64.DotProductUnsafe(m.fwd, ip.bext[i+1:i+1+p]), limit)
		}
	}

	switch {
	case leftOK && rightOK:
		for i := 0; i < length; i++ {
			theta := math.Pi / 2 * float64(i+1) / float64(length+1)
			residual[iv.Start+i] = math.Cos(theta)*ip.ext[p+i] + math.Sin(theta)*ip.bext[i]
		}
	case leftOK:
		copy(residual[iv.Start:iv.End], ip.ext[p:p+length])
	case rightOK:
		copy(residual[iv.Start:iv.End], ip.bext[:length])
	default:
		// No clean context on either side: nothing to extrapolate from,
		// leave the span untouched.
		return
	}

	for t := iv.Start; t < iv.End; t++ {
		transient[t] = frame[t] - residual[t]
	}
}

// clampMagnitude bounds v to ±limit and squashes non-finite values, keeping
// a marginally unstable recursion from corrupting the output.
func clampMagnitude(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// peakAbs returns the largest absolute sample value in x.
func peakAbs(x []float64) float64 {
	peak := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}
