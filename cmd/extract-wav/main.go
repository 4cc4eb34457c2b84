// Command extract-wav separates a WAV file into transient and residual
// component files.
//
// Usage:
//
//	extract-wav input.wav transients.wav residual.wav
//	extract-wav -threshfwd 3 -debounce 40 drums.wav clicks.wav body.wav
//	extract-wav -order 50 -block 512 -padding 256 input.wav t.wav r.wav
//
// Each channel is processed independently with its own extractor, so stereo
// and multichannel files keep their channel layout. The fixed analysis
// latency is compensated: both outputs align sample-for-sample with the
// input.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	transients "github.com/jamesb93/go-transients"
)

const (
	// Samples per channel read per chunk. Larger chunks reduce I/O overhead.
	chunkSize = 4096

	minRequiredArgs = 3
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	order := flag.Int("order", transients.DefaultOrder, "Model order (higher follows pitched material more closely)")
	block := flag.Int("block", transients.DefaultBlockSize, "Analysis block size in samples")
	padding := flag.Int("padding", transients.DefaultPadding, "Lookahead padding in samples")
	skew := flag.Float64("skew", transients.DefaultSkew, "Detection skew in log2 units, -10..10")
	threshFwd := flag.Float64("threshfwd", transients.DefaultThresholdForward, "Onset threshold on the forward prediction error")
	threshBack := flag.Float64("threshback", transients.DefaultThresholdBackward, "Offset threshold on the backward prediction error")
	window := flag.Int("window", transients.DefaultWindowSize, "Detection window size in samples")
	debounce := flag.Int("debounce", transients.DefaultDebounce, "Minimum quiet samples before a transient closes")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input.wav transients.wav residual.wav\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s drums.wav clicks.wav body.wav             # Default settings\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -threshfwd 3 in.wav t.wav r.wav           # Less eager onsets\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -order 50 -block 512 in.wav t.wav r.wav   # Track pitched material\n", os.Args[0])
		return fmt.Errorf("insufficient arguments")
	}

	cfg := transients.Config{
		Order:     *order,
		BlockSize: *block,
		Padding:   *padding,
	}
	params := transients.DetectionParams{
		Skew:              *skew,
		ThresholdForward:  *threshFwd,
		ThresholdBackward: *threshBack,
		WindowSize:        *window,
		Debounce:          *debounce,
	}

	if *verbose {
		log.Printf("Input: %s", args[0])
		log.Printf("Transients: %s", args[1])
		log.Printf("Residual: %s", args[2])
		log.Printf("Model: order %d, block %d, padding %d", cfg.Order, cfg.BlockSize, cfg.Padding)
		log.Printf("Detection: skew %g, thresholds %g/%g, window %d, debounce %d",
			params.Skew, params.ThresholdForward, params.ThresholdBackward,
			params.WindowSize, params.Debounce)
	}

	start := time.Now()
	stats, err := extractWAV(args[0], args[1], args[2], cfg, params, *verbose)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Extracted %s -> %s + %s\n",
		filepath.Base(args[0]), filepath.Base(args[1]), filepath.Base(args[2]))
	fmt.Printf("  %d Hz, %d channels, %d-bit, %d samples\n",
		stats.rate, stats.channels, stats.bitDepth, stats.samples)
	fmt.Printf("  Latency compensated: %d samples\n", stats.latency)
	fmt.Printf("  Duration: %.2fs, Speed: %.1fx realtime\n",
		elapsed.Seconds(),
		float64(stats.samples)/float64(stats.rate)/elapsed.Seconds())

	return nil
}

type extractStats struct {
	rate     int
	channels int
	bitDepth int
	samples  int64
	latency  int
}

func extractWAV(inputPath, transientPath, residualPath string,
	cfg transients.Config, params transients.DetectionParams, verbose bool) (stats *extractStats, err error) {

	input, err := openWAVInput(inputPath, verbose)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	extractors, err := newChannelExtractors(input.channels, cfg)
	if err != nil {
		return nil, err
	}
	latency := extractors[0].Latency()

	transientOut, err := createWAVOutput(transientPath, input.rate, input.bitDepth, input.channels)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := transientOut.Close(); err == nil {
			err = closeErr
		}
	}()

	residualOut, err := createWAVOutput(residualPath, input.rate, input.bitDepth, input.channels)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := residualOut.Close(); err == nil {
			err = closeErr
		}
	}()

	bufs := newExtractBuffers(input.channels, input.bitDepth, input.format)
	stats = &extractStats{
		rate:     input.rate,
		channels: input.channels,
		bitDepth: input.bitDepth,
		latency:  latency,
	}
	progress := newProgressTracker(input.totalSamples, verbose)

	// The first latency output samples per channel are startup silence and
	// are dropped so the outputs align with the input.
	skip := latency

	for {
		read, err := input.decoder.PCMBuffer(bufs.intBuffer)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read audio data: %w", err)
		}
		if read == 0 {
			break
		}
		// PCMBuffer counts interleaved samples, not frames.
		n := read / input.channels
		stats.samples += int64(n)

		bufs.deinterleave(n)
		if err := processChannels(extractors, bufs, n, params); err != nil {
			return nil, err
		}

		emit := n - skip
		if emit < 0 {
			skip -= n
			emit = 0
		} else {
			skip = 0
		}
		if emit > 0 {
			if err := writeOutputs(transientOut, residualOut, bufs, n-emit, n); err != nil {
				return nil, err
			}
		}
		progress.reportIfNeeded(stats.samples)
	}

	// Flush: push latency samples of silence so the buffered tail drains.
	if err := flushTail(extractors, bufs, latency, skip, params, transientOut, residualOut); err != nil {
		return nil, err
	}

	return stats, nil
}

// processChannels runs one chunk of every channel through its extractor.
func processChannels(extractors []*transients.Extractor, bufs *extractBuffers, n int, params transients.DetectionParams) error {
	for ch, x := range extractors {
		err := x.ProcessTo(bufs.transientBufs[ch][:n], bufs.residualBufs[ch][:n], bufs.channelBufs[ch][:n], params)
		if err != nil {
			return fmt.Errorf("extraction failed on channel %d: %w", ch, err)
		}
	}
	return nil
}

// writeOutputs interleaves and writes the output span [from, to) of the
// current chunk to both files.
func writeOutputs(transientOut, residualOut *wavOutputWriter, bufs *extractBuffers, from, to int) error {
	n := bufs.interleave(bufs.transientBufs, from, to)
	if err := transientOut.WriteSamples(bufs.outputIntBuf[:n]); err != nil {
		return fmt.Errorf("failed to write transient data: %w", err)
	}
	n = bufs.interleave(bufs.residualBufs, from, to)
	if err := residualOut.WriteSamples(bufs.outputIntBuf[:n]); err != nil {
		return fmt.Errorf("failed to write residual data: %w", err)
	}
	return nil
}

// flushTail feeds latency samples of silence through the extractors so the
// last real input samples reach the output. skip is whatever part of the
// startup padding is still undropped when the input is shorter than the
// latency.
func flushTail(extractors []*transients.Extractor, bufs *extractBuffers, latency, skip int,
	params transients.DetectionParams, transientOut, residualOut *wavOutputWriter) error {

	for ch := range bufs.channelBufs {
		clear(bufs.channelBufs[ch])
	}
	remaining := latency
	for remaining > 0 {
		n := min(remaining, chunkSize)
		if err := processChannels(extractors, bufs, n, params); err != nil {
			return err
		}

		emit := n - skip
		if emit < 0 {
			skip -= n
			emit = 0
		} else {
			skip = 0
		}
		if emit > 0 {
			if err := writeOutputs(transientOut, residualOut, bufs, n-emit, n); err != nil {
				return err
			}
		}
		remaining -= n
	}
	return nil
}
