package transients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesb93/go-transients/internal/testutil"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"minimum geometry", func(c *Config) { c.Order = MinOrder; c.BlockSize = MinBlockSize; c.Padding = 0 }, true},
		{"order below minimum", func(c *Config) { c.Order = MinOrder - 1 }, false},
		{"block below minimum", func(c *Config) { c.BlockSize = MinBlockSize - 1 }, false},
		{"block not above order", func(c *Config) { c.Order = 128; c.BlockSize = 128 }, false},
		{"negative padding", func(c *Config) { c.Padding = -1 }, false},
		{"negative iterations", func(c *Config) { c.Iterations = -1 }, false},
		{"negative robust factor", func(c *Config) { c.RobustFactor = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestDetectionParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DetectionParams)
		ok     bool
	}{
		{"defaults", func(p *DetectionParams) {}, true},
		{"skew at bounds", func(p *DetectionParams) { p.Skew = 10 }, true},
		{"skew too large", func(p *DetectionParams) { p.Skew = 10.5 }, false},
		{"skew too small", func(p *DetectionParams) { p.Skew = -11 }, false},
		{"zero forward threshold", func(p *DetectionParams) { p.ThresholdForward = 0 }, false},
		{"zero backward threshold", func(p *DetectionParams) { p.ThresholdBackward = 0 }, false},
		{"window exceeds order", func(p *DetectionParams) { p.WindowSize = DefaultOrder + 1 }, false},
		{"zero window", func(p *DetectionParams) { p.WindowSize = 0 }, true},
		{"negative debounce", func(p *DetectionParams) { p.Debounce = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultDetectionParams()
			tt.mutate(&p)
			err := p.Validate(DefaultOrder)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}
}

func TestDetectionParams_EngineMapping(t *testing.T) {
	p := DefaultDetectionParams()
	p.Skew = 2.0
	p.WindowSize = 15

	ep := p.engineParams()
	assert.Equal(t, 4.0, ep.Gain, "skew is applied as 2^skew")
	assert.Equal(t, 7, ep.HalfWindow, "odd window sizes halve by flooring")
	assert.Equal(t, p.ThresholdForward, ep.OnThreshold)
	assert.Equal(t, p.ThresholdBackward, ep.OffThreshold)
	assert.Equal(t, p.Debounce, ep.Debounce)

	p.WindowSize = 14
	assert.Equal(t, 7, p.engineParams().HalfWindow)
	p.WindowSize = 0
	assert.Equal(t, 0, p.engineParams().HalfWindow)
}

func TestConfig_Latency(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"defaults", DefaultConfig(), 364},
		{"no padding", Config{Order: 10, BlockSize: 100}, 90},
		{"long lookahead", Config{Order: 16, BlockSize: 512, Padding: 256}, 752},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Latency())

			cfg := tt.cfg.withDefaults()
			x, err := New(&cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, x.Latency(), "extractor must report the configured latency")
		})
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	x, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), x.Config())
}

func TestNew_FillsUnsetFitParameters(t *testing.T) {
	x, err := New(&Config{Order: 20, BlockSize: 256, Padding: 128})
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, x.Config().Iterations)
	assert.Equal(t, DefaultRobustFactor, x.Config().RobustFactor)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Order: 5, BlockSize: 256})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProcessTo_RejectsMismatchedBlocks(t *testing.T) {
	x, err := New(nil)
	require.NoError(t, err)

	in := make([]float64, 256)
	err = x.ProcessTo(make([]float64, 128), make([]float64, 256), in, DefaultDetectionParams())
	assert.ErrorIs(t, err, ErrBlockMismatch)
}

func TestProcessTo_RejectsInvalidParams(t *testing.T) {
	x, err := New(nil)
	require.NoError(t, err)

	p := DefaultDetectionParams()
	p.ThresholdForward = -1
	in := make([]float64, 256)
	err = x.ProcessTo(make([]float64, 256), make([]float64, 256), in, p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

// TestExtractor_StationaryNoiseHasNoTransients runs broadband noise with a
// raised onset threshold: a stationary signal the model predicts well must
// come back entirely in the residual, exactly delayed, with a silent
// transient channel.
func TestExtractor_StationaryNoiseHasNoTransients(t *testing.T) {
	x, err := New(nil)
	require.NoError(t, err)

	p := DefaultDetectionParams()
	p.ThresholdForward = 8.0

	const blocks = 10
	block := x.Config().BlockSize
	input := testutil.Noise(blocks*block, 0.3, 41)
	latency := x.Latency()

	outT := make([]float64, block)
	outR := make([]float64, block)
	var gotT, gotR []float64
	for b := 0; b < blocks; b++ {
		require.NoError(t, x.ProcessTo(outT, outR, input[b*block:(b+1)*block], p))
		gotT = append(gotT, outT...)
		gotR = append(gotR, outR...)
	}

	testutil.AssertAllNear(t, gotT, 0, 0, "stationary noise must produce no transients")
	for n := latency; n < len(gotR); n++ {
		assert.Equal(t, input[n-latency], gotR[n], "residual sample %d", n)
	}
}

// TestExtractor_ConfigureSameMidStreamIsNoOp reconfigures with the identical
// configuration halfway through a stream; the output must be bit-identical
// to an uninterrupted run.
func TestExtractor_ConfigureSameMidStreamIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	a, err := New(&cfg)
	require.NoError(t, err)
	b, err := New(&cfg)
	require.NoError(t, err)

	const blocks = 8
	block := cfg.BlockSize
	input := testutil.AddImpulse(testutil.Noise(blocks*block, 0.3, 43), 700, 3.0)
	p := DefaultDetectionParams()

	outT := make([]float64, block)
	outR := make([]float64, block)
	wantT := make([]float64, block)
	wantR := make([]float64, block)
	for i := 0; i < blocks; i++ {
		if i == blocks/2 {
			require.NoError(t, a.Configure(cfg))
		}
		in := input[i*block : (i+1)*block]
		require.NoError(t, a.ProcessTo(outT, outR, in, p))
		require.NoError(t, b.ProcessTo(wantT, wantR, in, p))
		assert.Equal(t, wantT, outT, "transient block %d", i)
		assert.Equal(t, wantR, outR, "residual block %d", i)
	}
}

// TestExtractor_ConfigureChangeDiscardsStream verifies that changing the
// geometry starts a new stream: buffered audio is gone and the startup
// silence appears again.
func TestExtractor_ConfigureChangeDiscardsStream(t *testing.T) {
	x, err := New(nil)
	require.NoError(t, err)

	block := x.Config().BlockSize
	p := DefaultDetectionParams()
	outT := make([]float64, block)
	outR := make([]float64, block)

	// Fill the pipeline past its latency.
	noise := testutil.Noise(4*block, 0.3, 47)
	for i := 0; i < 4; i++ {
		require.NoError(t, x.ProcessTo(outT, outR, noise[i*block:(i+1)*block], p))
	}

	cfg := x.Config()
	cfg.Padding = 64
	require.NoError(t, x.Configure(cfg))

	// The first post-rebuild outputs are startup silence, not leftovers.
	latency := x.Latency()
	require.NoError(t, x.ProcessTo(outT, outR, noise[:block], p))
	for n := 0; n < min(block, latency); n++ {
		assert.Zero(t, outR[n], "expected startup silence at %d after rebuild", n)
		assert.Zero(t, outT[n], "expected transient silence at %d after rebuild", n)
	}
}

// TestExtractor_SmallHostBlocksMatchFullBlocks splits the same signal into
// irregular small host blocks and full analysis blocks; both streams must
// produce identical samples.
func TestExtractor_SmallHostBlocksMatchFullBlocks(t *testing.T) {
	cfg := DefaultConfig()
	a, err := New(&cfg)
	require.NoError(t, err)
	b, err := New(&cfg)
	require.NoError(t, err)

	const total = 8 * 256
	input := testutil.AddImpulse(testutil.Noise(total, 0.3, 53), 1500, 3.0)
	p := DefaultDetectionParams()

	var gotA, gotB []float64

	// Stream A: irregular chunks no larger than the block size.
	sizes := []int{128, 64, 200, 256, 32, 96, 256, 17, 239, 128, 100, 156, 256, 120}
	pos := 0
	for _, size := range sizes {
		if pos+size > total {
			size = total - pos
		}
		outT := make([]float64, size)
		outR := make([]float64, size)
		require.NoError(t, a.ProcessTo(outT, outR, input[pos:pos+size], p))
		gotA = append(gotA, outR...)
		pos += size
		if pos == total {
			break
		}
	}
	require.Equal(t, total, pos, "chunk plan must cover the input")

	// Stream B: full blocks.
	outT := make([]float64, 256)
	outR := make([]float64, 256)
	for i := 0; i < total/256; i++ {
		require.NoError(t, b.ProcessTo(outT, outR, input[i*256:(i+1)*256], p))
		gotB = append(gotB, outR...)
	}

	assert.Equal(t, gotB, gotA, "output must not depend on host block chunking")
}
