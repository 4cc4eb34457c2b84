// Package transients separates an audio stream into a transient component
// and a steady-state residual in pure Go.
//
// The extractor fits a short-horizon linear predictive model to each
// analysis frame, flags regions where the forward prediction error spikes as
// transients, and re-estimates the steady-state signal across those regions
// by extrapolating the model from the surrounding clean context. Transient
// and residual sum back to the original signal exactly outside detected
// regions.
//
// # Features
//
//   - Block-synchronous streaming API with host-determined block sizes and a
//     fixed, queryable latency for delay compensation
//   - Robust iteratively-reweighted model fitting, so the transient itself
//     does not contaminate the steady-state estimate
//   - Independent onset/offset thresholds with debounce hysteresis
//   - Equal-power cross-faded forward/backward interpolation across each
//     detected region
//   - Zero allocation in steady-state processing; pure Go, no CGO
//
// # Quick Start
//
// For offline, one-shot extraction:
//
//	transient, residual, err := transients.ExtractMono(input, nil, transients.DefaultDetectionParams())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For streaming use, create an [Extractor] and feed it host blocks:
//
//	x, err := transients.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	params := transients.DefaultDetectionParams()
//	for block := range blocks {
//	    transient, residual, err := x.Process(block, params)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    emit(transient, residual)
//	}
//
// Output is delayed by [Extractor.Latency] samples relative to input; hosts
// that need sample alignment should compensate by that fixed amount.
//
// # Configuration
//
// [Config] sets the analysis geometry: model order, block size and lookahead
// padding. Changing it rebuilds the stream and discards buffered audio, so
// it belongs at configuration boundaries only. [DetectionParams] (onset and
// offset thresholds, skew, detection window, debounce) may change on every
// processed block without disturbing the stream.
//
// # Thread Safety
//
// An [Extractor] is single-threaded: one Process call completes fully before
// returning, and calls on the same instance must be serialized by the caller.
// Independent instances are fully isolated.
//
// # Attribution
//
// The algorithm follows the transient extraction design of the Fluid Corpus
// Manipulation project (FluCoMa) by Pierre Alexandre Tremblay et al.: robust
// forward-backward linear prediction with threshold hysteresis, as described
// in the FluCoMa toolkit documentation.
package transients
