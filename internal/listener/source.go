package listener

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/auralis-ai/auralis/pkg/audio"
)

const (
	sourceMailboxDepth = 64

	// speakerStartDelay spaces the mic and speaker stream starts apart; some
	// backends contend when both devices initialise at the same instant.
	speakerStartDelay = 50 * time.Millisecond

	reasonDeviceChange = "device_change"
)

type sourceMsgKind int

const (
	srcMicChunk sourceMsgKind = iota
	srcSpkChunk
	srcSetListener
	srcSetRecorder
	srcSetMute
	srcStreamFailed
)

type sourceMsg struct {
	kind     sourceMsgKind
	chunk    []float32
	listener *Listener
	recorder *Recorder
	mute     bool
	reason   string
}

// Source is the actor that owns audio capture: it runs the stream task
// reading both devices, feeds the pipeline from its mailbox, honours the
// shared mute flag, and stops itself when the default input device changes so
// the supervisor can restart it against the new device.
type Source struct {
	mailbox chan sourceMsg
	stopReq chan string
	exited  chan exitStatus

	muted     atomic.Bool
	micDevice string
}

type sourceConfig struct {
	capture   audio.Capture
	micDevice string
	mode      ChannelMode
	sessionID string
	sink      EventSink
}

// startSource opens the device watcher and the capture stream task, then
// starts the actor loop. Open failures are reported by the stream task as
// fatal stream failures rather than failing the spawn, except that the actor
// itself always starts.
func startSource(ctx context.Context, cfg sourceConfig) (*Source, error) {
	cfg.sink.Emit(ProgressEvent{
		SessionID: cfg.sessionID,
		Kind:      ProgressAudioInitializing,
	})

	micDevice := cfg.micDevice
	if micDevice == "" {
		micDevice = cfg.capture.DefaultMicName()
	}
	slog.Info("source starting", "mic_device", micDevice, "mode", cfg.mode.String())

	s := &Source{
		mailbox:   make(chan sourceMsg, sourceMailboxDepth),
		stopReq:   make(chan string, 1),
		exited:    make(chan exitStatus, 1),
		micDevice: micDevice,
	}

	streamCtx, cancelStreams := context.WithCancel(ctx)

	stopWatch, err := cfg.capture.WatchDefaultInput(ctx, func() {
		slog.Info("default input changed, restarting source")
		s.stopWithReason(reasonDeviceChange)
	})
	if err != nil {
		slog.Warn("device watcher unavailable", "err", err)
		stopWatch = func() {}
	}

	pipe := newPipeline(cfg.sink, cfg.sessionID)
	go s.run(pipe, cfg, cancelStreams, stopWatch)
	go s.streamLoop(streamCtx, cfg, micDevice)

	return s, nil
}

// setListener registers (or clears) the listener the pipeline dispatches to.
func (s *Source) setListener(l *Listener) {
	s.trySend(sourceMsg{kind: srcSetListener, listener: l})
}

// setRecorder registers (or clears) the recorder the pipeline dispatches to.
func (s *Source) setRecorder(r *Recorder) {
	s.trySend(sourceMsg{kind: srcSetRecorder, recorder: r})
}

// SetMicMute flips the shared mute flag. Muted mic chunks are replaced by
// zero buffers of the same length so pairing stays intact.
func (s *Source) SetMicMute(muted bool) {
	s.trySend(sourceMsg{kind: srcSetMute, mute: muted})
}

// MicMuted reports the current mute state.
func (s *Source) MicMuted() bool {
	return s.muted.Load()
}

// MicDevice reports the device the source opened.
func (s *Source) MicDevice() string {
	return s.micDevice
}

// stopWithReason asks the actor loop to exit with the given reason.
func (s *Source) stopWithReason(reason string) {
	select {
	case s.stopReq <- reason:
	default:
	}
}

// requestStop is the supervisor's clean-stop entry point.
func (s *Source) requestStop() {
	s.stopWithReason(reasonSessionStop)
}

// Exited delivers the source's death notification.
func (s *Source) Exited() <-chan exitStatus {
	return s.exited
}

func (s *Source) run(pipe *pipeline, cfg sourceConfig, cancelStreams context.CancelFunc, stopWatch func()) {
	defer func() {
		stopWatch()
		cancelStreams()
	}()

	for {
		select {
		case msg := <-s.mailbox:
			switch msg.kind {
			case srcMicChunk:
				pipe.ingestMic(msg.chunk)
				pipe.flush(cfg.mode)
			case srcSpkChunk:
				pipe.ingestSpeaker(msg.chunk)
				pipe.flush(cfg.mode)
			case srcSetListener:
				pipe.setListener(msg.listener)
			case srcSetRecorder:
				pipe.setRecorder(msg.recorder)
			case srcSetMute:
				s.muted.Store(msg.mute)
				cfg.sink.Emit(DataEvent{
					SessionID: cfg.sessionID,
					Kind:      DataMicMuted,
					Muted:     msg.mute,
				})
			case srcStreamFailed:
				slog.Error("source stream failed, stopping", "reason", msg.reason)
				cfg.sink.Emit(ErrorEvent{
					SessionID: cfg.sessionID,
					Kind:      ErrorAudio,
					Error:     msg.reason,
					Device:    s.micDevice,
					IsFatal:   true,
				})
				s.exited <- exitStatus{reason: msg.reason, err: nil}
				return
			}

		case reason := <-s.stopReq:
			s.exited <- exitStatus{reason: reason}
			return
		}
	}
}

// trySend delivers a message to the actor mailbox without blocking the
// caller; audio chunks that find the mailbox full are dropped (the joiner
// and audio buffer absorb backpressure downstream).
func (s *Source) trySend(msg sourceMsg) {
	select {
	case s.mailbox <- msg:
	default:
		slog.Debug("source mailbox full, dropping message")
	}
}

// streamLoop is the long-lived capture task: it opens the device streams,
// resamples to the engine rate, chunks to the pacing size, and feeds the
// actor mailbox. Every failure mode reports a fatal reason and ends the task;
// the supervisor restarts the whole source under its budget.
func (s *Source) streamLoop(ctx context.Context, cfg sourceConfig, micDevice string) {
	report := func(reason string) {
		select {
		case s.mailbox <- sourceMsg{kind: srcStreamFailed, reason: reason}:
		case <-ctx.Done():
		}
	}

	var micStream, spkStream audio.Stream

	if cfg.mode.UsesMic() {
		stream, err := cfg.capture.OpenMic(ctx, micDevice)
		if err != nil {
			slog.Error("mic open failed", "device", micDevice, "err", err)
			report("mic_open_failed")
			return
		}
		defer stream.Close()
		if stream.Format().SampleRate <= 0 || stream.Format().Channels <= 0 {
			slog.Error("mic stream setup failed", "format", stream.Format())
			report("mic_stream_setup_failed")
			return
		}
		micStream = stream
	}

	if cfg.mode.UsesSpeaker() {
		if cfg.mode == MicAndSpeaker {
			select {
			case <-time.After(speakerStartDelay):
			case <-ctx.Done():
				return
			}
		}
		stream, err := cfg.capture.OpenSpeakerTap(ctx)
		if err != nil {
			slog.Error("speaker open failed", "err", err)
			report("speaker_open_failed")
			return
		}
		defer stream.Close()
		if stream.Format().SampleRate <= 0 || stream.Format().Channels <= 0 {
			slog.Error("speaker stream setup failed", "format", stream.Format())
			report("speaker_stream_setup_failed")
			return
		}
		spkStream = stream
	}

	cfg.sink.Emit(ProgressEvent{
		SessionID: cfg.sessionID,
		Kind:      ProgressAudioReady,
		Device:    micDevice,
	})

	mic := newStreamNormalizer(micStream)
	spk := newStreamNormalizer(spkStream)

	for {
		select {
		case <-ctx.Done():
			return

		case block, ok := <-mic.samples():
			if !ok {
				if ctx.Err() == nil {
					slog.Error("mic stream ended", "device", micDevice, "err", micStream.Err())
					report(micEndReason(micStream.Err()))
				}
				return
			}
			for _, chunk := range mic.normalize(block) {
				if s.muted.Load() {
					chunk = make([]float32, len(chunk))
				}
				s.trySend(sourceMsg{kind: srcMicChunk, chunk: chunk})
			}

		case block, ok := <-spk.samples():
			if !ok {
				if ctx.Err() == nil {
					slog.Error("speaker stream ended", "err", spkStream.Err())
					report(spkEndReason(spkStream.Err()))
				}
				return
			}
			for _, chunk := range spk.normalize(block) {
				s.trySend(sourceMsg{kind: srcSpkChunk, chunk: chunk})
			}
		}
	}
}

func micEndReason(err error) string {
	if err != nil {
		return "mic_resample_failed"
	}
	return "mic_stream_ended"
}

func spkEndReason(err error) string {
	if err != nil {
		return "speaker_resample_failed"
	}
	return "speaker_stream_ended"
}

// streamNormalizer downmixes, resamples, and chunks one capture stream to the
// engine format. A nil stream yields a permanently blocking sample channel so
// the select loop needs no per-mode cases.
type streamNormalizer struct {
	stream    audio.Stream
	resampler *audio.Resampler
	chunker   *audio.Chunker
	channels  int
}

func newStreamNormalizer(stream audio.Stream) *streamNormalizer {
	if stream == nil {
		return &streamNormalizer{}
	}
	format := stream.Format()
	return &streamNormalizer{
		stream:    stream,
		resampler: audio.NewResampler(format.SampleRate, audio.SampleRate),
		chunker:   audio.NewChunker(audio.ChunkSamples),
		channels:  format.Channels,
	}
}

func (n *streamNormalizer) samples() <-chan []float32 {
	if n.stream == nil {
		return nil
	}
	return n.stream.Samples()
}

func (n *streamNormalizer) normalize(block []float32) [][]float32 {
	mono := audio.DownmixInterleaved(block, n.channels)
	return n.chunker.Push(n.resampler.Process(mono))
}
