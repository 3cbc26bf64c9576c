package audio

import "context"

// Stream is a live capture stream. Samples delivers blocks of interleaved
// float samples in the stream's native format; the channel is closed when the
// stream ends, after which Err reports why (nil for a clean close).
//
// Callers must call Close when done; failing to do so leaks the underlying
// device handle.
type Stream interface {
	// Format reports the native sample rate and channel count of the stream.
	// The engine resamples and downmixes to 16 kHz mono itself.
	Format() Format

	// Samples returns the channel of captured sample blocks. Block sizes are
	// backend-dependent.
	Samples() <-chan []float32

	// Err returns the terminal error after Samples is closed, or nil if the
	// stream ended by Close.
	Err() error

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Capture is the platform audio capture surface: a microphone stream, an
// optional system-speaker tap, and default-input-device change notification.
//
// Implementations must be safe for concurrent use.
type Capture interface {
	// OpenMic opens a capture stream on the named input device, or the system
	// default when device is empty.
	OpenMic(ctx context.Context, device string) (Stream, error)

	// OpenSpeakerTap opens a loopback stream of the system speaker output.
	// Returns [ErrNoSpeakerTap] on platforms without loopback capture; callers
	// degrade to mic-only operation.
	OpenSpeakerTap(ctx context.Context) (Stream, error)

	// DefaultMicName reports the current default input device name, or empty
	// if it cannot be determined.
	DefaultMicName() string

	// WatchDefaultInput invokes fn (debounced) whenever the default input
	// device changes. The returned stop function cancels the watch.
	WatchDefaultInput(ctx context.Context, fn func()) (stop func(), err error)
}
