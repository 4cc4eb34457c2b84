package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	transients "github.com/jamesb93/go-transients"
)

const (
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	progressInterval = 10 // percent between progress lines
	percentScale     = 100

	wavHeaderSize     = 44
	wavRiffHeaderSize = 36
	wavDataSizeOffset = 40
	wavFileSizeOffset = 4

	writerBufferSize = 256 * 1024
)

// wavInputInfo holds validated input file information.
type wavInputInfo struct {
	file         *os.File
	decoder      *wav.Decoder
	rate         int
	channels     int
	bitDepth     int
	totalSamples int64
	format       *audio.Format
}

// openWAVInput opens and validates a WAV file, returning format information.
func openWAVInput(path string, verbose bool) (*wavInputInfo, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	decoder := wav.NewDecoder(inputFile)
	if !decoder.IsValidFile() {
		_ = inputFile.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	if verbose {
		log.Printf("Input format: %d Hz, %d channels, %d-bit",
			format.SampleRate, format.NumChannels, decoder.BitDepth)
	}

	duration, err := decoder.Duration()
	if err != nil {
		duration = 0
	}

	return &wavInputInfo{
		file:         inputFile,
		decoder:      decoder,
		rate:         format.SampleRate,
		channels:     format.NumChannels,
		bitDepth:     int(decoder.BitDepth),
		totalSamples: int64(duration.Seconds() * float64(format.SampleRate)),
		format:       format,
	}, nil
}

// Close closes the input file.
func (w *wavInputInfo) Close() error {
	return w.file.Close()
}

// newChannelExtractors creates one extractor per channel.
func newChannelExtractors(numChannels int, cfg transients.Config) ([]*transients.Extractor, error) {
	extractors := make([]*transients.Extractor, numChannels)
	for ch := range numChannels {
		x, err := transients.New(&cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create extractor for channel %d: %w", ch, err)
		}
		extractors[ch] = x
	}
	return extractors, nil
}

// extractBuffers holds all preallocated buffers for one extraction run.
type extractBuffers struct {
	intBuffer     *audio.IntBuffer
	channelBufs   [][]float64
	transientBufs [][]float64
	residualBufs  [][]float64
	outputIntBuf  []int
	maxVal        float64
	invMaxVal     float64
}

// newExtractBuffers preallocates all processing buffers, sized for chunkSize
// samples per channel.
func newExtractBuffers(channels, bitDepth int, format *audio.Format) *extractBuffers {
	perChannel := func() [][]float64 {
		bufs := make([][]float64, channels)
		for ch := range channels {
			bufs[ch] = make([]float64, chunkSize)
		}
		return bufs
	}

	maxVal := maxSampleValue(bitDepth)
	return &extractBuffers{
		intBuffer: &audio.IntBuffer{
			Data:   make([]int, chunkSize*channels),
			Format: format,
		},
		channelBufs:   perChannel(),
		transientBufs: perChannel(),
		residualBufs:  perChannel(),
		outputIntBuf:  make([]int, chunkSize*channels),
		maxVal:        maxVal,
		invMaxVal:     1.0 / maxVal,
	}
}

// maxSampleValue returns the full-scale sample value for the given bit depth.
func maxSampleValue(bitDepth int) float64 {
	switch bitDepth {
	case bitsPerSample24:
		return maxInt24
	case bitsPerSample32:
		return maxInt32
	default:
		return maxInt16
	}
}

// deinterleave converts the first n frames of the interleaved int buffer
// into normalized per-channel floats.
func (b *extractBuffers) deinterleave(n int) {
	channels := len(b.channelBufs)
	if channels == 1 {
		buf := b.channelBufs[0]
		for i := range n {
			buf[i] = float64(b.intBuffer.Data[i]) * b.invMaxVal
		}
		return
	}
	for i := range n {
		base := i * channels
		for ch := range channels {
			b.channelBufs[ch][i] = float64(b.intBuffer.Data[base+ch]) * b.invMaxVal
		}
	}
}

// interleave converts the span [from, to) of per-channel floats into the
// interleaved int buffer, clamping to full scale. Returns elements written.
func (b *extractBuffers) interleave(channelBufs [][]float64, from, to int) int {
	channels := len(channelBufs)
	w := 0
	for i := from; i < to; i++ {
		for ch := range channels {
			sample := channelBufs[ch][i]
			if sample > 1.0 {
				sample = 1.0
			} else if sample < -1.0 {
				sample = -1.0
			}
			b.outputIntBuf[w] = int(sample * b.maxVal)
			w++
		}
	}
	return w
}

// wavOutputWriter writes PCM data directly through a buffered writer and
// patches the RIFF sizes on close.
type wavOutputWriter struct {
	f        *os.File
	w        *bufio.Writer
	bitDepth int
	dataSize uint32
	byteBuf  []byte
}

// createWAVOutput creates the output file and writes a placeholder header.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*wavOutputWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := &wavOutputWriter{
		f:        f,
		w:        bufio.NewWriterSize(f, writerBufferSize),
		bitDepth: bitDepth,
		byteBuf:  make([]byte, chunkSize*channels*(bitDepth/8)),
	}
	if err := w.writeHeader(sampleRate, channels); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

func (w *wavOutputWriter) writeHeader(sampleRate, channels int) error {
	bytesPerFrame := channels * (w.bitDepth / 8)
	header := make([]byte, wavHeaderSize)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 0) // patched on close
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*bytesPerFrame))
	binary.LittleEndian.PutUint16(header[32:34], uint16(bytesPerFrame))
	binary.LittleEndian.PutUint16(header[34:36], uint16(w.bitDepth))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], 0) // patched on close

	_, err := w.w.Write(header)
	return err
}

// WriteSamples writes interleaved integer samples at the writer's bit depth.
func (w *wavOutputWriter) WriteSamples(samples []int) error {
	bytesPerSample := w.bitDepth / 8
	needed := len(samples) * bytesPerSample
	if len(w.byteBuf) < needed {
		w.byteBuf = make([]byte, needed)
	}

	buf := w.byteBuf[:needed]
	switch w.bitDepth {
	case bitsPerSample24:
		for i, s := range samples {
			buf[i*3] = byte(s)
			buf[i*3+1] = byte(s >> 8)
			buf[i*3+2] = byte(s >> 16)
		}
	case bitsPerSample32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(s)))
		}
	default:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s)))
		}
	}

	written, err := w.w.Write(buf)
	w.dataSize += uint32(written)
	return err
}

// Close flushes buffered data and patches the header sizes.
func (w *wavOutputWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}

	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, wavRiffHeaderSize+w.dataSize)
	if _, err := w.f.Seek(wavFileSizeOffset, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.f.Write(sizeBytes); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(sizeBytes, w.dataSize)
	if _, err := w.f.Seek(wavDataSizeOffset, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.f.Write(sizeBytes); err != nil {
		return err
	}

	return w.f.Close()
}

// progressTracker handles verbose progress reporting.
type progressTracker struct {
	totalSamples int64
	lastProgress int
	verbose      bool
}

func newProgressTracker(totalSamples int64, verbose bool) *progressTracker {
	return &progressTracker{totalSamples: totalSamples, verbose: verbose}
}

func (p *progressTracker) reportIfNeeded(currentSamples int64) {
	if !p.verbose || p.totalSamples == 0 {
		return
	}
	progress := int(float64(currentSamples) / float64(p.totalSamples) * percentScale)
	if progress >= p.lastProgress+progressInterval {
		log.Printf("Progress: %d%%", progress)
		p.lastProgress = progress
	}
}
