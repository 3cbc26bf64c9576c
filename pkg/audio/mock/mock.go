// Package mock provides scripted [audio.Capture] and [audio.Stream]
// implementations for tests. Streams replay pre-loaded sample blocks and can
// be failed or ended on demand to exercise source restart paths.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/auralis-ai/auralis/pkg/audio"
)

// Stream is a scripted capture stream.
type Stream struct {
	format  audio.Format
	samples chan []float32

	mu     sync.Mutex
	closed bool
	err    error
}

// NewStream creates a stream with the given format and buffer depth.
func NewStream(format audio.Format, buffer int) *Stream {
	return &Stream{
		format:  format,
		samples: make(chan []float32, buffer),
	}
}

// Push delivers one block of samples to the consumer. Returns false if the
// stream has ended.
func (s *Stream) Push(block []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.samples <- block
	return true
}

// Fail ends the stream with err, simulating a device failure.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.samples)
}

// End closes the sample channel cleanly, simulating the device going away.
func (s *Stream) End() {
	s.Fail(nil)
}

func (s *Stream) Format() audio.Format      { return s.format }
func (s *Stream) Samples() <-chan []float32 { return s.samples }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	s.End()
	return nil
}

// Capture is a scripted [audio.Capture]. Each OpenMic/OpenSpeakerTap call pops
// the next queued stream; an empty queue returns the configured error.
type Capture struct {
	mu sync.Mutex

	MicStreams     []*Stream
	SpeakerStreams []*Stream

	// MicErr / SpeakerErr are returned when the corresponding queue is empty.
	MicErr     error
	SpeakerErr error

	// DefaultName is returned from DefaultMicName.
	DefaultName string

	// MicOpens counts OpenMic calls (restart assertions).
	MicOpens int

	watchFn func()
}

// NewCapture creates an empty scripted capture. Queue streams with QueueMic
// and QueueSpeaker before use.
func NewCapture() *Capture {
	return &Capture{
		MicErr:      errors.New("mock: no mic stream queued"),
		SpeakerErr:  audio.ErrNoSpeakerTap,
		DefaultName: "Mock Microphone",
	}
}

// QueueMic appends a stream returned by a future OpenMic call.
func (c *Capture) QueueMic(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MicStreams = append(c.MicStreams, s)
}

// QueueSpeaker appends a stream returned by a future OpenSpeakerTap call.
func (c *Capture) QueueSpeaker(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SpeakerStreams = append(c.SpeakerStreams, s)
}

func (c *Capture) OpenMic(_ context.Context, _ string) (audio.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MicOpens++
	if len(c.MicStreams) == 0 {
		return nil, c.MicErr
	}
	s := c.MicStreams[0]
	c.MicStreams = c.MicStreams[1:]
	return s, nil
}

func (c *Capture) OpenSpeakerTap(_ context.Context) (audio.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.SpeakerStreams) == 0 {
		return nil, c.SpeakerErr
	}
	s := c.SpeakerStreams[0]
	c.SpeakerStreams = c.SpeakerStreams[1:]
	return s, nil
}

func (c *Capture) DefaultMicName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DefaultName
}

func (c *Capture) WatchDefaultInput(_ context.Context, fn func()) (func(), error) {
	c.mu.Lock()
	c.watchFn = fn
	c.mu.Unlock()
	return func() {}, nil
}

// Opens reports how many times OpenMic was called.
func (c *Capture) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.MicOpens
}

// TriggerDeviceChange fires the registered default-input watcher, simulating
// an OS device switch.
func (c *Capture) TriggerDeviceChange() {
	c.mu.Lock()
	fn := c.watchFn
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
