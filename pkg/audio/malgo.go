package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gen2brain/malgo"
)

// ErrNoSpeakerTap is returned by OpenSpeakerTap on platforms where the audio
// backend has no loopback capture support.
var ErrNoSpeakerTap = errors.New("audio: system speaker capture is not supported on this platform")

const (
	// streamBuffer is the capture channel depth. Sends are non-blocking; a
	// full buffer drops the block (the pipeline's own buffer absorbs listener
	// backpressure, not this one).
	streamBuffer = 64

	// devicePollInterval is how often the default-input watcher re-reads the
	// default device name.
	devicePollInterval = time.Second

	// deviceDebounce collapses bursts of device-change events, which some
	// backends emit while a device is still settling.
	deviceDebounce = 300 * time.Millisecond
)

// MalgoCapture is the miniaudio-backed implementation of [Capture]. One
// instance owns a single backend context and may serve multiple streams.
type MalgoCapture struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	closed  bool
	streams []*malgoStream
}

// NewMalgoCapture initialises the audio backend context.
func NewMalgoCapture() (*MalgoCapture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("audio backend", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init backend context: %w", err)
	}
	return &MalgoCapture{ctx: ctx}, nil
}

// Close stops all open streams and tears down the backend context.
func (c *MalgoCapture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	if err := c.ctx.Uninit(); err != nil {
		return fmt.Errorf("audio: uninit backend context: %w", err)
	}
	c.ctx.Free()
	return nil
}

// OpenMic opens a capture stream on the named device, or the default input
// when device is empty.
func (c *MalgoCapture) OpenMic(ctx context.Context, device string) (Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1

	if device != "" {
		id, err := c.findCaptureDevice(device)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	return c.openStream(ctx, cfg, "mic")
}

// OpenSpeakerTap opens a loopback stream of the system speaker output.
// Loopback capture exists only on backends that support it (WASAPI); other
// platforms get [ErrNoSpeakerTap] and the engine degrades to mic-only.
func (c *MalgoCapture) OpenSpeakerTap(ctx context.Context) (Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = malgo.FormatF32

	stream, err := c.openStream(ctx, cfg, "speaker")
	if err != nil {
		return nil, errors.Join(ErrNoSpeakerTap, err)
	}
	return stream, nil
}

// DefaultMicName reports the name of the current default capture device.
func (c *MalgoCapture) DefaultMicName() string {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info.Name()
		}
	}
	if len(infos) > 0 {
		return infos[0].Name()
	}
	return ""
}

// WatchDefaultInput polls the default capture device and invokes fn, debounced,
// when its name changes. The watch ends when ctx is cancelled or stop is called.
func (c *MalgoCapture) WatchDefaultInput(ctx context.Context, fn func()) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	debounced := debounce.New(deviceDebounce)
	last := c.DefaultMicName()

	go func() {
		ticker := time.NewTicker(devicePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				current := c.DefaultMicName()
				if current != "" && current != last {
					slog.Info("default input device changed", "from", last, "to", current)
					last = current
					debounced(fn)
				}
			}
		}
	}()

	return cancel, nil
}

func (c *MalgoCapture) findCaptureDevice(name string) (malgo.DeviceID, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("audio: enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("audio: capture device %q not found", name)
}

func (c *MalgoCapture) openStream(ctx context.Context, cfg malgo.DeviceConfig, kind string) (Stream, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("audio: capture context is closed")
	}
	c.mu.Unlock()

	s := &malgoStream{
		samples: make(chan []float32, streamBuffer),
		done:    make(chan struct{}),
	}

	onRecv := func(_, input []byte, frameCount uint32) {
		if frameCount == 0 || len(input) == 0 {
			return
		}
		block := f32leToF32(input)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ended {
			return
		}
		select {
		case s.samples <- block:
		default:
			// Capture runs on the device thread; dropping beats blocking it.
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: onRecv,
		Stop: func() {
			s.markEnded(nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init %s device: %w", kind, err)
	}
	s.device = device
	s.format = Format{
		SampleRate: int(device.SampleRate()),
		Channels:   int(device.CaptureChannels()),
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start %s device: %w", kind, err)
	}

	// Release the stream if the caller's context dies before Close.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()

	slog.Debug("capture stream opened",
		"kind", kind,
		"sample_rate", s.format.SampleRate,
		"channels", s.format.Channels,
	)
	return s, nil
}

type malgoStream struct {
	device  *malgo.Device
	format  Format
	samples chan []float32

	mu     sync.Mutex
	ended  bool
	closed bool
	err    error
	done   chan struct{}
}

func (s *malgoStream) Format() Format            { return s.format }
func (s *malgoStream) Samples() <-chan []float32 { return s.samples }

func (s *malgoStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.device.Uninit()
	s.markEnded(nil)
	return nil
}

func (s *malgoStream) markEnded(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	close(s.done)
	close(s.samples)
}

// f32leToF32 reinterprets little-endian float32 PCM bytes as samples.
func f32leToF32(pcm []byte) []float32 {
	n := len(pcm) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return out
}
