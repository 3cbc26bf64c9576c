package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/auralis-ai/auralis/internal/hooks"
	"github.com/auralis-ai/auralis/internal/observe"
	"github.com/auralis-ai/auralis/internal/resilience"
	"github.com/auralis-ai/auralis/pkg/audio"
	"github.com/auralis-ai/auralis/pkg/stt"
)

const (
	// reasonRestartLimitExceeded is the supervisor's meltdown exit reason.
	reasonRestartLimitExceeded = "restart_limit_exceeded"

	// childStopTimeout bounds how long shutdown waits for one child's exit
	// notification.
	childStopTimeout = 5 * time.Second
)

// restartBudget is the per-child restart allowance.
var restartBudget = resilience.RestartBudget{
	MaxRestarts: 3,
	Window:      15 * time.Second,
	ResetAfter:  30 * time.Second,
}

// spawnRetry bounds each restart's spawn attempts.
var spawnRetry = resilience.RetryStrategy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
}

// Config wires a [Session]'s collaborators.
type Config struct {
	Params  SessionParams
	Capture audio.Capture
	Adapter stt.Adapter
	Sink    EventSink

	// RecordingsDir is where the recorder writes session WAVs.
	RecordingsDir string

	// MicDevice names the input device to capture. Empty uses the system
	// default.
	MicDevice string

	// Fingerprint is forwarded to providers that bind streams to a device.
	Fingerprint string

	// Hooks, when non-nil, runs user scripts at session boundaries.
	Hooks *hooks.Runner

	// Mode overrides the automatically determined channel mode (tests,
	// speaker-only capture setups).
	Mode *ChannelMode
}

// Session is the supervisor: it owns the source, recorder, and listener
// actors, enforces the restart policy, and escalates to degraded mode or
// meltdown. External observers see the strict lifecycle sequence
// Inactive → Active (with optional degraded error) → Finalizing → Inactive.
type Session struct {
	cfg  Config
	mode ChannelMode

	source   atomic.Pointer[Source]
	recorder *Recorder
	listener *Listener

	sourceRestarts   resilience.RestartTracker
	recorderRestarts resilience.RestartTracker

	shutdownReq chan struct{}
	done        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// Start spawns the session's children and begins supervising. The source is
// spawned first so audio capture is live even if transcription fails; the
// listener is spawned last, and its failure does not fail Start — the session
// enters degraded mode instead.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}

	mode := DetermineMode(cfg.Params.Onboarding)
	if cfg.Mode != nil {
		mode = *cfg.Mode
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		cfg:         cfg,
		mode:        mode,
		shutdownReq: make(chan struct{}, 1),
		done:        make(chan struct{}),
		ctx:         sessionCtx,
		cancel:      cancel,
	}

	if cfg.Hooks != nil {
		cfg.Hooks.SessionStart(sessionCtx, cfg.Params.SessionID)
	}

	source, err := startSource(sessionCtx, s.sourceConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: start source: %w", err)
	}
	s.source.Store(source)

	if cfg.Params.RecordEnabled {
		recorder, err := startRecorder(s.recorderConfig())
		if err != nil {
			source.requestStop()
			cancel()
			return nil, fmt.Errorf("session: start recorder: %w", err)
		}
		s.recorder = recorder
		source.setRecorder(recorder)
	}

	// Post-start phase: a listener spawn failure degrades instead of failing.
	listener, err := startListener(sessionCtx, s.listenerConfig())
	if err != nil {
		slog.Warn("listener spawn failed, entering degraded mode", "err", err)
		degraded := classifySpawnError(err, cfg.Adapter.ProviderName(), cfg.Params.BaseURL)
		cfg.Sink.Emit(LifecycleEvent{
			SessionID: cfg.Params.SessionID,
			State:     LifecycleActive,
			Error:     &degraded,
		})
	} else {
		s.listener = listener
		source.setListener(listener)
		cfg.Sink.Emit(LifecycleEvent{
			SessionID: cfg.Params.SessionID,
			State:     LifecycleActive,
		})
	}

	observe.DefaultMetrics().ActiveSessions.Add(sessionCtx, 1)
	go s.supervise()

	slog.Info("session started",
		"session_id", cfg.Params.SessionID,
		"mode", mode.String(),
		"adapter", cfg.Adapter.ProviderName(),
		"record_enabled", cfg.Params.RecordEnabled,
	)
	return s, nil
}

// Mode reports the channel mode decided at start.
func (s *Session) Mode() ChannelMode {
	return s.mode
}

// SetMicMute flips the session's mic mute flag.
func (s *Session) SetMicMute(muted bool) {
	if source := s.source.Load(); source != nil {
		source.SetMicMute(muted)
	}
}

// MicMuted reports the session's mic mute flag.
func (s *Session) MicMuted() bool {
	if source := s.source.Load(); source != nil {
		return source.MicMuted()
	}
	return false
}

// Shutdown drains and stops the session: the recorder first (awaiting its WAV
// flush), then source and listener, then the supervisor itself. Blocks until
// teardown completes or ctx expires.
func (s *Session) Shutdown(ctx context.Context) error {
	select {
	case s.shutdownReq <- struct{}{}:
	default:
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: shutdown: %w", ctx.Err())
	}
}

// Done is closed once the supervisor has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) sourceConfig() sourceConfig {
	return sourceConfig{
		capture:   s.cfg.Capture,
		micDevice: s.cfg.MicDevice,
		mode:      s.mode,
		sessionID: s.cfg.Params.SessionID,
		sink:      s.cfg.Sink,
	}
}

func (s *Session) recorderConfig() recorderConfig {
	return recorderConfig{
		dir:       s.cfg.RecordingsDir,
		sessionID: s.cfg.Params.SessionID,
		mode:      s.mode,
	}
}

func (s *Session) listenerConfig() listenerConfig {
	return listenerConfig{
		adapter:     s.cfg.Adapter,
		params:      s.cfg.Params,
		mode:        s.mode,
		sink:        s.cfg.Sink,
		fingerprint: s.cfg.Fingerprint,
	}
}

// supervise is the supervisor loop: it watches every child's exit
// notification and applies the restart policy. Receiving from a nil channel
// blocks forever, so absent children simply never fire.
func (s *Session) supervise() {
	defer close(s.done)
	defer s.cancel()

	for {
		var sourceExit, recorderExit, listenerExit <-chan exitStatus
		source := s.source.Load()
		if source != nil {
			sourceExit = source.Exited()
		}
		if s.recorder != nil {
			recorderExit = s.recorder.Exited()
		}
		if s.listener != nil {
			listenerExit = s.listener.Exited()
		}

		s.sourceRestarts.MaybeReset(restartBudget)
		s.recorderRestarts.MaybeReset(restartBudget)

		select {
		case <-s.shutdownReq:
			s.shutdown()
			return

		case status := <-listenerExit:
			// The listener is never restarted: the session continues
			// degraded with capture and recording alive.
			slog.Info("listener terminated, entering degraded mode", "reason", status.reason)
			degraded := parseDegradedReason(status.reason)
			observe.DefaultMetrics().RecordDegraded(s.ctx, string(degraded.Kind))
			s.listener = nil
			if source != nil {
				source.setListener(nil)
			}
			s.cfg.Sink.Emit(LifecycleEvent{
				SessionID: s.cfg.Params.SessionID,
				State:     LifecycleActive,
				Error:     &degraded,
			})

		case status := <-sourceExit:
			slog.Info("source terminated, attempting restart", "reason", status.reason)
			s.source.Store(nil)
			if !s.restartSource() {
				slog.Error("source restart limit exceeded, meltdown")
				s.meltdown()
				return
			}

		case status := <-recorderExit:
			slog.Info("recorder terminated, attempting restart", "reason", status.reason)
			s.recorder = nil
			if !s.restartRecorder() {
				slog.Error("recorder restart limit exceeded, meltdown")
				s.meltdown()
				return
			}
		}
	}
}

func (s *Session) restartSource() bool {
	if !s.sourceRestarts.RecordRestart(restartBudget) {
		return false
	}

	observe.DefaultMetrics().RecordChildRestart(s.ctx, "source")
	source, err := resilience.Retry(s.ctx, spawnRetry, func() (*Source, error) {
		return startSource(s.ctx, s.sourceConfig())
	})
	if err != nil {
		slog.Error("source restart failed", "err", err)
		return false
	}

	s.source.Store(source)
	if s.recorder != nil {
		source.setRecorder(s.recorder)
	}
	if s.listener != nil {
		source.setListener(s.listener)
	}
	return true
}

func (s *Session) restartRecorder() bool {
	if !s.cfg.Params.RecordEnabled {
		return true
	}
	if !s.recorderRestarts.RecordRestart(restartBudget) {
		return false
	}

	observe.DefaultMetrics().RecordChildRestart(s.ctx, "recorder")
	recorder, err := resilience.Retry(s.ctx, spawnRetry, func() (*Recorder, error) {
		return startRecorder(s.recorderConfig())
	})
	if err != nil {
		slog.Error("recorder restart failed", "err", err)
		return false
	}

	s.recorder = recorder
	if source := s.source.Load(); source != nil {
		source.setRecorder(recorder)
	}
	return true
}

// shutdown executes the clean stop sequence. The recorder goes first and is
// awaited so the WAV is flushed and finalised before capture stops feeding it.
func (s *Session) shutdown() {
	s.cfg.Sink.Emit(LifecycleEvent{
		SessionID: s.cfg.Params.SessionID,
		State:     LifecycleFinalizing,
	})

	if s.recorder != nil {
		s.recorder.requestStop()
		awaitExit(s.recorder.Exited())
		s.recorder = nil
	}
	if source := s.source.Load(); source != nil {
		source.requestStop()
		awaitExit(source.Exited())
		s.source.Store(nil)
	}
	if s.listener != nil {
		s.listener.requestStop()
		awaitExit(s.listener.Exited())
		s.listener = nil
	}

	if s.cfg.Hooks != nil {
		s.cfg.Hooks.SessionStop(context.Background(), s.cfg.Params.SessionID)
	}

	observe.DefaultMetrics().ActiveSessions.Add(context.Background(), -1)
	s.cfg.Sink.Emit(LifecycleEvent{
		SessionID: s.cfg.Params.SessionID,
		State:     LifecycleInactive,
	})
	slog.Info("session stopped", "session_id", s.cfg.Params.SessionID)
}

// meltdown stops every surviving child (recorder awaited for its WAV flush)
// and ends the supervisor with the restart-limit reason.
func (s *Session) meltdown() {
	if source := s.source.Load(); source != nil {
		source.requestStop()
		awaitExit(source.Exited())
		s.source.Store(nil)
	}
	if s.listener != nil {
		s.listener.requestStop()
		awaitExit(s.listener.Exited())
		s.listener = nil
	}
	if s.recorder != nil {
		s.recorder.requestStop()
		awaitExit(s.recorder.Exited())
		s.recorder = nil
	}

	observe.DefaultMetrics().Meltdowns.Add(context.Background(), 1)
	observe.DefaultMetrics().ActiveSessions.Add(context.Background(), -1)
	s.cfg.Sink.Emit(LifecycleEvent{
		SessionID: s.cfg.Params.SessionID,
		State:     LifecycleInactive,
		Error: &DegradedError{
			Kind:    DegradedStreamError,
			Message: reasonRestartLimitExceeded,
		},
	})
	slog.Error("session melted down", "session_id", s.cfg.Params.SessionID)
}

func awaitExit(exited <-chan exitStatus) {
	select {
	case <-exited:
	case <-time.After(childStopTimeout):
		slog.Warn("child did not stop in time")
	}
}
