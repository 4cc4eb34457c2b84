package transients

// ExtractMono runs one-shot offline extraction over a complete mono signal.
// The input is streamed through an extractor in block-sized chunks with
// silent padding to flush the pipeline, and the reported latency is
// compensated, so the returned transient and residual slices align
// sample-for-sample with the input. A nil config selects DefaultConfig.
func ExtractMono(input []float64, cfg *Config, p DetectionParams) (transient, residual []float64, err error) {
	x, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}

	n := len(input)
	block := x.cfg.BlockSize
	latency := x.Latency()
	blocks := (n + latency + block - 1) / block

	in := make([]float64, block)
	outT := make([]float64, block)
	outR := make([]float64, block)
	transient = make([]float64, 0, blocks*block)
	residual = make([]float64, 0, blocks*block)

	for b := 0; b < blocks; b++ {
		clear(in)
		if start := b * block; start < n {
			copy(in, input[start:min(n, start+block)])
		}
		if err := x.ProcessTo(outT, outR, in, p); err != nil {
			return nil, nil, err
		}
		transient = append(transient, outT...)
		residual = append(residual, outR...)
	}

	return transient[latency : latency+n], residual[latency : latency+n], nil
}

// Split is a convenience wrapper over ExtractMono using the default
// configuration and detection parameters.
func Split(input []float64) (transient, residual []float64, err error) {
	return ExtractMono(input, nil, DefaultDetectionParams())
}
