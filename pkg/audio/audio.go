// Package audio defines the shared audio types and sample-level utilities used
// across the Auralis listening engine.
//
// All engine-internal audio is mono 32-bit float PCM at [SampleRate]. Capture
// backends may deliver arbitrary rates and channel counts; the resampler and
// chunker in this package normalise everything to fixed-size engine chunks
// before the rest of the pipeline sees it.
package audio

import "time"

const (
	// SampleRate is the engine sample rate in Hz. Every chunk flowing through
	// the pipeline is mono float32 PCM at this rate.
	SampleRate = 16000

	// ChunkDuration is the pacing interval of the pipeline. Mic and speaker
	// chunks are always paired at this granularity.
	ChunkDuration = 20 * time.Millisecond

	// ChunkSamples is the number of samples per engine chunk
	// (SampleRate * ChunkDuration).
	ChunkSamples = 320
)

// Format describes the sample rate and channel count of a capture stream.
type Format struct {
	SampleRate int
	Channels   int
}
