package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/auralis-ai/auralis/internal/observe"
	"github.com/auralis-ai/auralis/pkg/audio"
	"github.com/auralis-ai/auralis/pkg/stt"
)

const (
	listenerMailboxDepth = 256

	// finalizeTimeout bounds how long session shutdown waits for the
	// provider's terminal response after the finalize frame.
	finalizeTimeout = 10 * time.Second
)

// listenerFrame is one audio delivery from the pipeline: a single mixed
// channel or a (mic, spk) pair for native multichannel providers.
type listenerFrame struct {
	single []byte
	mic    []byte
	spk    []byte
	dual   bool
}

// Listener is the actor that owns one streaming provider connection. It
// forwards pipeline audio to the adapter, publishes normalised responses in
// socket-receive order, and terminates with a serialised [DegradedError]
// reason the supervisor classifies.
type Listener struct {
	audio  chan listenerFrame
	stop   chan struct{}
	exited chan exitStatus

	adapterName string
	mode        ChannelMode
}

type listenerConfig struct {
	adapter     stt.Adapter
	params      SessionParams
	mode        ChannelMode
	sink        EventSink
	fingerprint string
}

// startListener dials the provider and starts the forward/receive loop. Dial
// failure fails the spawn; the supervisor enters degraded mode instead of
// restarting.
func startListener(ctx context.Context, cfg listenerConfig) (*Listener, error) {
	cfg.sink.Emit(ProgressEvent{
		SessionID: cfg.params.SessionID,
		Kind:      ProgressConnecting,
	})

	channels := cfg.mode.Channels()
	if !cfg.adapter.SupportsNativeMultichannel() {
		channels = 1
	}

	session, err := stt.Dial(ctx, stt.DialConfig{
		Adapter: cfg.adapter,
		BaseURL: cfg.params.BaseURL,
		APIKey:  cfg.params.APIKey,
		Params: stt.ListenParams{
			Model:      cfg.params.Model,
			Languages:  cfg.params.Languages,
			Keywords:   cfg.params.Keywords,
			SampleRate: audio.SampleRate,
			Channels:   channels,
		},
		Fingerprint: cfg.fingerprint,
	})
	if err != nil {
		return nil, err
	}

	cfg.sink.Emit(ProgressEvent{
		SessionID: cfg.params.SessionID,
		Kind:      ProgressConnected,
		Adapter:   cfg.adapter.ProviderName(),
	})

	l := &Listener{
		audio:       make(chan listenerFrame, listenerMailboxDepth),
		stop:        make(chan struct{}),
		exited:      make(chan exitStatus, 1),
		adapterName: cfg.adapter.ProviderName(),
		mode:        cfg.mode,
	}
	go l.run(session, cfg)
	return l, nil
}

// trySendSingle queues a single-channel frame without blocking the pipeline.
func (l *Listener) trySendSingle(frame []byte) {
	select {
	case l.audio <- listenerFrame{single: frame}:
	case <-l.stop:
	default:
		slog.Debug("listener mailbox full, dropping frame")
	}
}

// trySendDual queues a (mic, spk) pair without blocking the pipeline.
func (l *Listener) trySendDual(mic, spk []byte) {
	select {
	case l.audio <- listenerFrame{mic: mic, spk: spk, dual: true}:
	case <-l.stop:
	default:
		slog.Debug("listener mailbox full, dropping frame")
	}
}

// requestStop triggers the finalize path. Safe to call more than once.
func (l *Listener) requestStop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// Exited delivers the listener's death notification. The reason is a
// serialised [DegradedError] for failures, [reasonSessionStop] for a clean
// finalize.
func (l *Listener) Exited() <-chan exitStatus {
	return l.exited
}

func (l *Listener) run(session *stt.LiveSession, cfg listenerConfig) {
	exitDegraded := func(degraded DegradedError) {
		session.Close()
		l.exited <- exitStatus{reason: degraded.serializeReason(), err: &degraded}
	}

	for {
		select {
		case frame := <-l.audio:
			if frame.dual {
				session.SendAudio(audio.InterleaveS16LE(frame.mic, frame.spk))
			} else {
				session.SendAudio(frame.single)
			}

		case resp, ok := <-session.Responses():
			if !ok {
				exitDegraded(l.classifyStreamEnd(session.Err()))
				return
			}
			if degraded, fatal := l.handleResponse(cfg, resp); fatal {
				exitDegraded(degraded)
				return
			}

		case <-l.stop:
			finalizeCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
			started := time.Now()
			if _, err := session.Finalize(finalizeCtx); err != nil {
				slog.Warn("listener finalize incomplete", "err", err)
			}
			observe.DefaultMetrics().FinalizeDuration.Record(
				context.Background(), time.Since(started).Seconds())
			cancel()
			l.exited <- exitStatus{reason: reasonSessionStop}
			return
		}
	}
}

// handleResponse publishes one provider response, remapping mono-mode channel
// indices onto the canonical numbering. Provider errors terminate the stream
// with the matching degraded classification.
func (l *Listener) handleResponse(cfg listenerConfig, resp stt.StreamResponse) (DegradedError, bool) {
	if resp.Type == stt.ResponseError {
		code := "none"
		if resp.ErrorCode != nil {
			code = fmt.Sprintf("%d", *resp.ErrorCode)
		}
		slog.Error("stream provider error",
			"provider", resp.Provider,
			"code", code,
			"message", resp.ErrorMessage,
		)
		cfg.sink.Emit(ErrorEvent{
			SessionID: cfg.params.SessionID,
			Kind:      ErrorConnection,
			Error:     fmt.Sprintf("[%s] %s (code: %s)", resp.Provider, resp.ErrorMessage, code),
		})

		if resp.ErrorCode != nil && (*resp.ErrorCode == 401 || *resp.ErrorCode == 403) {
			return DegradedError{
				Kind:     DegradedAuthenticationFailed,
				Provider: resp.Provider,
			}, true
		}
		return DegradedError{
			Kind:    DegradedStreamError,
			Message: fmt.Sprintf("%s: %s", resp.Provider, resp.ErrorMessage),
		}, true
	}

	switch l.mode {
	case MicOnly:
		resp.RemapChannelIndex(0, 2)
	case SpeakerOnly:
		resp.RemapChannelIndex(1, 2)
	case MicAndSpeaker:
	}

	if resp.Type == stt.ResponseTranscript {
		observe.DefaultMetrics().RecordStreamResponse(
			context.Background(), l.adapterName, resp.IsFinal)
	}
	cfg.sink.Emit(DataEvent{
		SessionID: cfg.params.SessionID,
		Kind:      DataStreamResponse,
		Response:  &resp,
	})
	return DegradedError{}, false
}

func (l *Listener) classifyStreamEnd(err error) DegradedError {
	switch {
	case errors.Is(err, stt.ErrIdleTimeout):
		return DegradedError{Kind: DegradedConnectionTimeout}
	case errors.Is(err, stt.ErrStreamEnded), err == nil:
		return DegradedError{
			Kind:    DegradedUpstreamUnavailable,
			Message: "stream ended",
		}
	default:
		return DegradedError{Kind: DegradedStreamError, Message: err.Error()}
	}
}
