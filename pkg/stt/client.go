package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	// ConnectTimeout bounds the WebSocket upgrade.
	ConnectTimeout = 5 * time.Second

	// StreamIdleTimeout ends a session that has not received any provider
	// message for this long.
	StreamIdleTimeout = 15 * time.Minute

	// DeviceFingerprintHeader is attached to upgrade requests when the host
	// supplies a fingerprint (used by the relay provider for device binding).
	DeviceFingerprintHeader = "x-device-fingerprint"

	keepAliveInterval = 10 * time.Second
	audioBuffer       = 256
	responseBuffer    = 64
	maxMessageBytes   = 4 << 20
)

// Sentinel errors reported by [LiveSession.Err] after the response channel
// closes. The listener layer classifies them into degraded reasons.
var (
	// ErrStreamEnded means the upstream closed the socket outside finalize.
	ErrStreamEnded = errors.New("stt: stream ended")

	// ErrIdleTimeout means no provider message arrived within
	// [StreamIdleTimeout].
	ErrIdleTimeout = errors.New("stt: stream idle timeout")
)

// HTTPError is returned by [Dial] when the upgrade request is rejected with
// an HTTP status (401/403 signal bad credentials).
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("stt: upgrade rejected with status %d", e.Status)
}

// DialConfig carries everything needed to open a streaming session.
type DialConfig struct {
	Adapter Adapter
	BaseURL string
	APIKey  string
	Params  ListenParams

	// Fingerprint, when non-empty, is sent as the device fingerprint header.
	Fingerprint string
}

// LiveSession is one open streaming transcription connection. Audio goes in
// via SendAudio; normalised responses come out of Responses in socket-receive
// order. The session owns its socket exclusively.
//
// All methods are safe for concurrent use.
type LiveSession struct {
	adapter Adapter
	conn    *websocket.Conn

	audio     chan []byte
	responses chan StreamResponse
	terminal  chan StreamResponse

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	finalizing atomic.Bool

	mu  sync.Mutex
	err error
}

// Dial opens the WebSocket, applies the adapter's auth style, sends the
// initial message if the protocol has one, and starts the send/receive loops.
// The upgrade is bounded by [ConnectTimeout].
func Dial(ctx context.Context, cfg DialConfig) (*LiveSession, error) {
	wsURL, err := cfg.Adapter.BuildWSURL(cfg.BaseURL, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("stt: build url: %w", err)
	}

	headers := http.Header{}
	if name, value, ok := cfg.Adapter.AuthHeader(cfg.APIKey); ok {
		headers.Set(name, value)
	}
	if cfg.Fingerprint != "" {
		headers.Set(DeviceFingerprintHeader, cfg.Fingerprint)
	}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &HTTPError{Status: resp.StatusCode}
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("stt: connect timeout after %s: %w", ConnectTimeout, err)
		}
		return nil, fmt.Errorf("stt: dial %s: %w", cfg.Adapter.ProviderName(), err)
	}
	conn.SetReadLimit(maxMessageBytes)

	s := &LiveSession{
		adapter:   cfg.Adapter,
		conn:      conn,
		audio:     make(chan []byte, audioBuffer),
		responses: make(chan StreamResponse, responseBuffer),
		terminal:  make(chan StreamResponse, 1),
		done:      make(chan struct{}),
	}

	if msg, ok := cfg.Adapter.InitialMessage(cfg.APIKey, cfg.Params); ok {
		if err := s.write(ctx, msg); err != nil {
			s.Close()
			return nil, fmt.Errorf("stt: send initial message: %w", err)
		}
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()
	if _, ok := cfg.Adapter.KeepAliveMessage(); ok {
		s.wg.Add(1)
		go s.keepAliveLoop()
	}

	return s, nil
}

// SendAudio queues one s16le PCM frame. The send is non-blocking: when the
// outbound queue is full the frame is dropped (the pipeline's own buffer is
// the intended backpressure absorber, not this queue).
func (s *LiveSession) SendAudio(frame []byte) {
	select {
	case s.audio <- frame:
	case <-s.done:
	default:
		slog.Debug("stt: outbound audio queue full, dropping frame",
			"provider", s.adapter.ProviderName())
	}
}

// Responses returns the inbound event channel. It is closed when the stream
// ends for any reason; Err then reports why.
func (s *LiveSession) Responses() <-chan StreamResponse {
	return s.responses
}

// Err reports the terminal stream error once Responses has closed: nil after
// a clean finalize, [ErrStreamEnded], [ErrIdleTimeout], or a transport error.
func (s *LiveSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Finalize tells the provider no more audio is coming and waits for its
// terminal response or the context deadline, whichever comes first. The
// session is closed either way. Best-effort: a missing terminal response is
// reported but not an error severe enough to discard the session's output.
func (s *LiveSession) Finalize(ctx context.Context) (*StreamResponse, error) {
	s.finalizing.Store(true)

	if err := s.write(ctx, s.adapter.FinalizeMessage()); err != nil {
		s.Close()
		return nil, fmt.Errorf("stt: send finalize: %w", err)
	}

	select {
	case resp := <-s.terminal:
		s.Close()
		return &resp, nil
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("stt: finalize: %w", ctx.Err())
	case <-s.done:
		return nil, nil
	}
}

// Close tears the session down immediately. Safe to call more than once.
func (s *LiveSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	s.wg.Wait()
}

func (s *LiveSession) write(ctx context.Context, msg Message) error {
	typ := websocket.MessageText
	if msg.Type == MessageBinary {
		typ = websocket.MessageBinary
	}
	return s.conn.Write(ctx, typ, msg.Data)
}

func (s *LiveSession) writeLoop() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case frame := <-s.audio:
			if err := s.write(ctx, s.adapter.AudioToMessage(frame)); err != nil {
				if !s.closed() {
					slog.Debug("stt: audio write failed", "err", err)
				}
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *LiveSession) keepAliveLoop() {
	defer s.wg.Done()
	msg, _ := s.adapter.KeepAliveMessage()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(context.Background(), msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *LiveSession) readLoop() {
	defer s.wg.Done()
	defer close(s.responses)

	for {
		readCtx, cancel := context.WithTimeout(context.Background(), StreamIdleTimeout)
		_, data, err := s.conn.Read(readCtx)
		cancel()

		if err != nil {
			s.setErr(s.classifyReadError(err))
			return
		}

		for _, resp := range s.adapter.ParseResponse(data) {
			if resp.Type == ResponseTerminal {
				select {
				case s.terminal <- resp:
				default:
				}
			}
			select {
			case s.responses <- resp:
			case <-s.done:
				return
			}
		}
	}
}

func (s *LiveSession) classifyReadError(err error) error {
	switch {
	case s.closed():
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrIdleTimeout
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure && s.finalizing.Load():
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrStreamEnded, err)
	}
}

func (s *LiveSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *LiveSession) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}
