// Package aec implements streaming acoustic echo cancellation for the
// capture pipeline: the speaker tap is the reference signal, and a
// normalised-LMS adaptive filter subtracts its estimated echo from the mic
// chunk. State carries across chunks; one canceller serves one session.
//
// Cancellation quality is deliberately modest — the goal is keeping the
// user's own speaker audio from being transcribed as mic speech, not studio
// echo removal. Failures are non-fatal: the pipeline logs and passes the mic
// signal through unchanged.
package aec

import (
	"errors"
	"fmt"
)

const (
	// filterTaps is the adaptive filter length: 256 samples ≈ 16 ms of echo
	// tail at the engine rate.
	filterTaps = 256

	// stepSize is the NLMS adaptation rate.
	stepSize = 0.5

	// regularization keeps the NLMS update stable over silent reference audio.
	regularization = 1e-6
)

// ErrChunkMismatch is returned when the mic and speaker chunks differ in
// length; the joiner guarantees equal-length pairs, so this indicates a bug
// upstream.
var ErrChunkMismatch = errors.New("aec: mic and speaker chunks differ in length")

// Canceller is a streaming NLMS echo canceller. Not safe for concurrent use;
// the pipeline owns one and calls it from a single goroutine.
type Canceller struct {
	weights []float64
	history []float64 // ring buffer of reference (speaker) samples
	pos     int
	power   float64 // running ||x||² over the filter window
}

// New creates a canceller with zeroed filter state.
func New() *Canceller {
	return &Canceller{
		weights: make([]float64, filterTaps),
		history: make([]float64, filterTaps),
	}
}

// Process removes the estimated speaker echo from mic and returns the cleaned
// chunk. The input slices are not modified. Both chunks must be the same
// length.
func (c *Canceller) Process(mic, spk []float32) ([]float32, error) {
	if len(mic) != len(spk) {
		return nil, fmt.Errorf("%w: mic=%d spk=%d", ErrChunkMismatch, len(mic), len(spk))
	}

	out := make([]float32, len(mic))
	for i := range mic {
		ref := float64(spk[i])

		// Slide the reference into the ring and maintain the window power.
		old := c.history[c.pos]
		c.power += ref*ref - old*old
		if c.power < 0 {
			c.power = 0
		}
		c.history[c.pos] = ref

		// Echo estimate: convolution of the filter with recent reference.
		var estimate float64
		idx := c.pos
		for k := range filterTaps {
			estimate += c.weights[k] * c.history[idx]
			idx--
			if idx < 0 {
				idx = filterTaps - 1
			}
		}

		err := float64(mic[i]) - estimate
		out[i] = float32(err)

		// NLMS weight update.
		norm := stepSize / (regularization + c.power)
		idx = c.pos
		for k := range filterTaps {
			c.weights[k] += norm * err * c.history[idx]
			idx--
			if idx < 0 {
				idx = filterTaps - 1
			}
		}

		c.pos++
		if c.pos == filterTaps {
			c.pos = 0
		}
	}
	return out, nil
}

// Reset zeroes the filter and reference history. Used when the source
// restarts and the speaker/mic alignment is lost.
func (c *Canceller) Reset() {
	for i := range c.weights {
		c.weights[i] = 0
		c.history[i] = 0
	}
	c.pos = 0
	c.power = 0
}
