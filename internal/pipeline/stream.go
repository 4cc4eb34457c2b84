// Package pipeline implements the windowed stream buffering that reconciles
// host-delivered block sizes with the analysis frame and hop of the engine.
package pipeline

import (
	"fmt"
)

// Geometry describes the fixed buffering layout of one streaming session.
// All values are in samples.
type Geometry struct {
	// HostSize is the largest block the host will push in one call.
	HostSize int

	// FrameSize is the length of one analysis frame handed to the frame
	// callback.
	FrameSize int

	// Hop is the number of samples the read cursor advances between
	// successive frames.
	Hop int

	// LeadIn is the number of implicit silent samples preceding the stream.
	// The first frame starts LeadIn samples before stream position zero so
	// the first emitted region begins exactly at position zero.
	LeadIn int

	// EmitOffset is the frame-relative start of the span that is final for
	// the frame that produced it. Earlier frame positions are context,
	// later ones are lookahead that the next frame recomputes.
	EmitOffset int

	// EmitLen is the length of the finalized span per frame. Consecutive
	// frames tile the output stream when EmitLen == Hop.
	EmitLen int

	// Latency is the delay of pulled output relative to pushed input.
	Latency int
}

// Validate checks the geometry for internal consistency.
func (g *Geometry) Validate() error {
	if g.HostSize < 1 {
		return fmt.Errorf("pipeline: host size must be at least 1, got %d", g.HostSize)
	}
	if g.FrameSize < 1 {
		return fmt.Errorf("pipeline: frame size must be at least 1, got %d", g.FrameSize)
	}
	if g.Hop < 1 || g.Hop > g.FrameSize {
		return fmt.Errorf("pipeline: hop %d out of range [1, %d]", g.Hop, g.FrameSize)
	}
	if g.LeadIn < 0 || g.Latency < 0 {
		return fmt.Errorf("pipeline: lead-in %d and latency %d must be non-negative", g.LeadIn, g.Latency)
	}
	if g.EmitOffset < 0 || g.EmitLen < 0 || g.EmitOffset+g.EmitLen > g.FrameSize {
		return fmt.Errorf("pipeline: emit span [%d, %d) exceeds frame size %d",
			g.EmitOffset, g.EmitOffset+g.EmitLen, g.FrameSize)
	}
	return nil
}

// FrameFn processes one analysis frame. All three slices have FrameSize
// samples. The callback reads in and fills outA and outB; only the emit span
// of the outputs is kept by the buffer.
type FrameFn func(in, outA, outB []float64)

// StreamBuffer accumulates host blocks of arbitrary size into a rolling
// sample store, hands the engine fixed-size frames at a fixed hop, and
// reassembles the two engine output channels into host-sized blocks.
//
// Cursors are absolute stream positions; ring indices are derived modulo
// capacity. The buffer allocates only at construction and Reset is cheap.
// It is not safe for concurrent use.
type StreamBuffer struct {
	geom     Geometry
	capacity int

	in   []float64 // input samples, indexed by stream position mod capacity
	outA []float64 // first output channel
	outB []float64 // second output channel

	frameIn []float64 // scratch handed to the frame callback
	frameA  []float64
	frameB  []float64

	writePos int64 // next input position to be written
	readPos  int64 // start position of the next frame
	pullPos  int64 // next output position to be pulled
}

// NewStreamBuffer creates a stream buffer for the given geometry.
func NewStreamBuffer(g Geometry) (*StreamBuffer, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	// Worst-case live spans: input holds one full frame plus lead-in plus a
	// pending host block; output holds the latency window plus a host block
	// of slack on either side.
	capacity := g.FrameSize + g.LeadIn + g.Latency + 2*g.HostSize

	b := &StreamBuffer{
		geom:     g,
		capacity: capacity,
		in:       make([]float64, capacity),
		outA:     make([]float64, capacity),
		outB:     make([]float64, capacity),
		frameIn:  make([]float64, g.FrameSize),
		frameA:   make([]float64, g.FrameSize),
		frameB:   make([]float64, g.FrameSize),
	}
	b.Reset()
	return b, nil
}

// Push appends one host block of input samples.
// Pushing more than the configured host size is a caller bug: the write
// cursor would lap unread data, so it panics rather than corrupt the stream.
func (b *StreamBuffer) Push(block []float64) {
	if len(block) > b.geom.HostSize {
		panic(fmt.Sprintf("pipeline: pushed block of %d samples exceeds host size %d",
			len(block), b.geom.HostSize))
	}
	b.writeRange(b.in, b.writePos, block)
	b.writePos += int64(len(block))
}

// Process runs the frame callback for every complete frame available,
// advancing the read cursor by the hop each time. Output samples in the emit
// span are written back at their stream positions; everything else the
// callback produced is lookahead and is recomputed by a later frame.
// Processing defers until enough input has accumulated, so a call may run
// zero frames.
func (b *StreamBuffer) Process(fn FrameFn) {
	for b.writePos-b.readPos >= int64(b.geom.FrameSize) {
		b.readRange(b.frameIn, b.in, b.readPos)
		fn(b.frameIn, b.frameA, b.frameB)

		emitPos := b.readPos + int64(b.geom.EmitOffset)
		emitEnd := b.geom.EmitOffset + b.geom.EmitLen
		b.writeRange(b.outA, emitPos, b.frameA[b.geom.EmitOffset:emitEnd])
		b.writeRange(b.outB, emitPos, b.frameB[b.geom.EmitOffset:emitEnd])

		b.readPos += int64(b.geom.Hop)
	}
}

// Pull copies the next host block of processed output into dstA and dstB,
// delayed by the configured latency. Positions before the start of the
// stream read as silence. Both slices must have the same length.
func (b *StreamBuffer) Pull(dstA, dstB []float64) {
	if len(dstA) != len(dstB) {
		panic(fmt.Sprintf("pipeline: pull channel lengths differ (%d vs %d)", len(dstA), len(dstB)))
	}

	start := b.pullPos - int64(b.geom.Latency)
	for i := range dstA {
		pos := start + int64(i)
		if pos < 0 {
			dstA[i] = 0
			dstB[i] = 0
			continue
		}
		idx := b.index(pos)
		dstA[i] = b.outA[idx]
		dstB[i] = b.outB[idx]
	}
	b.pullPos += int64(len(dstA))
}

// Buffered returns the number of samples available to the next frame,
// including the implicit lead-in silence at stream start.
func (b *StreamBuffer) Buffered() int {
	return int(b.writePos - b.readPos)
}

// Latency returns the configured input-to-output delay in samples.
func (b *StreamBuffer) Latency() int {
	return b.geom.Latency
}

// Reset discards all buffered content and rewinds every cursor. Data in
// flight is lost, so this belongs only at configuration-change boundaries.
func (b *StreamBuffer) Reset() {
	clear(b.in)
	clear(b.outA)
	clear(b.outB)
	b.writePos = 0
	b.readPos = -int64(b.geom.LeadIn)
	b.pullPos = 0
}

// index maps an absolute stream position onto a ring index.
func (b *StreamBuffer) index(pos int64) int {
	m := int(pos % int64(b.capacity))
	if m < 0 {
		m += b.capacity
	}
	return m
}

// readRange copies len(dst) samples starting at pos from a ring into dst,
// splitting the copy at the wrap point.
func (b *StreamBuffer) readRange(dst, ring []float64, pos int64) {
	idx := b.index(pos)
	n := copy(dst, ring[idx:])
	if n < len(dst) {
		copy(dst[n:], ring[:len(dst)-n])
	}
}

// writeRange copies src into a ring starting at pos, splitting at the wrap
// point.
func (b *StreamBuffer) writeRange(ring []float64, pos int64, src []float64) {
	idx := b.index(pos)
	n := copy(ring[idx:], src)
	if n < len(src) {
		copy(ring[:len(src)-n], src[n:])
	}
}
