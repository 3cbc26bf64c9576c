package listener

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/auralis-ai/auralis/pkg/audio"
	"github.com/auralis-ai/auralis/pkg/audio/wav"
)

const (
	recorderFlushInterval = time.Second
	recorderMailboxDepth  = 64

	// reasonSessionStop is the clean child exit reason.
	reasonSessionStop = "session_stop"
)

// exitStatus is the death notification a child posts to the supervisor.
// A nil err with reason [reasonSessionStop] is a clean stop; anything else is
// a failure the supervisor classifies.
type exitStatus struct {
	reason string
	err    error
}

// recorderFrame is one audio delivery from the pipeline.
type recorderFrame struct {
	mic  []float32
	spk  []float32
	dual bool
}

// Recorder is the actor that persists the session WAV. It owns its file
// exclusively, flushes at most once per second, and finalises with fsync of
// the file and its parent directory on stop.
type Recorder struct {
	audio  chan recorderFrame
	stop   chan struct{}
	exited chan exitStatus
}

type recorderConfig struct {
	dir       string
	sessionID string
	mode      ChannelMode
}

// startRecorder opens (or append-opens) the session WAV and starts the write
// loop. Open failure fails the spawn: at session start that fails Start; on a
// restart the supervisor retries under budget.
func startRecorder(cfg recorderConfig) (*Recorder, error) {
	dir := filepath.Join(cfg.dir, cfg.sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create session dir: %w", err)
	}
	path := filepath.Join(dir, "audio.wav")

	var writer *wav.Writer
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		// Resuming after a restart: the existing header decides the layout.
		writer, err = wav.Append(path)
	} else {
		channels := 1
		if cfg.mode == MicAndSpeaker {
			channels = 2
		}
		writer, err = wav.Create(path, audio.SampleRate, channels)
	}
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		audio:  make(chan recorderFrame, recorderMailboxDepth),
		stop:   make(chan struct{}),
		exited: make(chan exitStatus, 1),
	}
	go r.run(writer, path)

	slog.Info("recorder started", "path", path, "channels", writer.Channels())
	return r, nil
}

// trySend queues a frame without blocking the pipeline; a full mailbox drops
// the frame.
func (r *Recorder) trySend(frame recorderFrame) {
	select {
	case r.audio <- frame:
	case <-r.stop:
	default:
		slog.Debug("recorder mailbox full, dropping frame")
	}
}

// requestStop asks the write loop to finalise and exit. Safe to call more
// than once.
func (r *Recorder) requestStop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Exited delivers the recorder's death notification.
func (r *Recorder) Exited() <-chan exitStatus {
	return r.exited
}

func (r *Recorder) run(writer *wav.Writer, path string) {
	ticker := time.NewTicker(recorderFlushInterval)
	defer ticker.Stop()

	fail := func(context string, err error) {
		slog.Error("recorder failed", "context", context, "path", path, "err", err)
		_ = writer.Finalize()
		r.exited <- exitStatus{reason: "io_error", err: err}
	}

	for {
		select {
		case frame := <-r.audio:
			if err := r.write(writer, frame); err != nil {
				fail("write", err)
				return
			}

		case <-ticker.C:
			if err := writer.Flush(); err != nil {
				fail("flush", err)
				return
			}

		case <-r.stop:
			// Drain whatever the pipeline already handed over, then finalise.
			for {
				select {
				case frame := <-r.audio:
					if err := r.write(writer, frame); err != nil {
						fail("drain", err)
						return
					}
					continue
				default:
				}
				break
			}
			if err := writer.Finalize(); err != nil {
				fail("finalize", err)
				return
			}
			r.exited <- exitStatus{reason: reasonSessionStop}
			return
		}
	}
}

// write maps a frame onto the file layout. A mono frame landing in a stereo
// file (mode changed across an append) is duplicated onto both channels; a
// dual frame landing in a mono file is mixed down.
func (r *Recorder) write(writer *wav.Writer, frame recorderFrame) error {
	stereo := writer.Channels() == 2

	switch {
	case frame.dual && stereo:
		return writer.WriteSamples(interleave(frame.mic, frame.spk))
	case frame.dual:
		return writer.WriteSamples(mixDown(frame.mic, frame.spk))
	case stereo:
		return writer.WriteSamples(interleave(frame.mic, frame.mic))
	default:
		return writer.WriteSamples(frame.mic)
	}
}

func interleave(left, right []float32) []float32 {
	n := max(len(left), len(right))
	out := make([]float32, n*2)
	for i := range n {
		var l, s float32
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			s = right[i]
		}
		out[i*2] = l
		out[i*2+1] = s
	}
	return out
}

func mixDown(mic, spk []float32) []float32 {
	n := max(len(mic), len(spk))
	out := make([]float32, n)
	for i := range n {
		var m, s float32
		if i < len(mic) {
			m = mic[i]
		}
		if i < len(spk) {
			s = spk[i]
		}
		out[i] = (m + s) / 2
	}
	return out
}
