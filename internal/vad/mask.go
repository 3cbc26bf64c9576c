// Package vad provides the in-place voice-activity mask applied to the mic
// signal before it reaches the listener. Chunks classified as non-speech are
// zeroed so the provider never bills or transcribes silence and keyboard
// noise. The detector is a lightweight energy gate with hangover, stateful
// across chunks.
package vad

import "github.com/auralis-ai/auralis/pkg/audio"

const (
	// defaultThreshold is the RMS level above which a chunk counts as active.
	defaultThreshold = 0.012

	// hangoverChunks keeps the gate open after the last active chunk so word
	// endings and short pauses are not clipped (15 × 20 ms = 300 ms).
	hangoverChunks = 15
)

// Mask is the stateful VAD gate. The zero value is not ready; use [NewMask].
// Not safe for concurrent use.
type Mask struct {
	threshold float32
	hang      int
}

// NewMask creates a mask with the default threshold.
func NewMask() *Mask {
	return &Mask{threshold: defaultThreshold}
}

// Process classifies the chunk and zeroes it in place when the gate is
// closed. Returns true when the chunk passed through as speech.
func (m *Mask) Process(chunk []float32) bool {
	if audio.RMS(chunk) > m.threshold {
		m.hang = hangoverChunks
		return true
	}
	if m.hang > 0 {
		m.hang--
		return true
	}
	for i := range chunk {
		chunk[i] = 0
	}
	return false
}

// Reset closes the gate and clears the hangover state.
func (m *Mask) Reset() {
	m.hang = 0
}
