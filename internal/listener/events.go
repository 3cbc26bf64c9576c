// Package listener implements the live listening engine core: a supervised
// actor set — source, pipeline, recorder, listener — that captures mic and
// system-speaker audio, routes it through echo cancellation and VAD, drives a
// streaming transcription adapter, and survives partial failure in degraded
// mode.
package listener

import (
	"log/slog"
	"sync"

	"github.com/auralis-ai/auralis/pkg/stt"
)

// LifecycleState is the externally visible session state. Observers see the
// strict sequence Inactive → Active (optionally with a degraded error) →
// Finalizing → Inactive.
type LifecycleState string

const (
	LifecycleInactive   LifecycleState = "inactive"
	LifecycleActive     LifecycleState = "active"
	LifecycleFinalizing LifecycleState = "finalizing"
)

// Event is one observability event published to the host. Concrete types:
// [LifecycleEvent], [ProgressEvent], [ErrorEvent], [DataEvent].
type Event interface {
	eventType() string
}

// LifecycleEvent reports session state transitions. A non-nil Error on the
// active state marks degraded mode: audio capture and recording continue
// with no live transcription path.
type LifecycleEvent struct {
	SessionID string         `json:"session_id"`
	State     LifecycleState `json:"type"`
	Error     *DegradedError `json:"error,omitempty"`
}

func (LifecycleEvent) eventType() string { return "lifecycle" }

// ProgressKind tags session startup milestones.
type ProgressKind string

const (
	ProgressAudioInitializing ProgressKind = "audio_initializing"
	ProgressAudioReady        ProgressKind = "audio_ready"
	ProgressConnecting        ProgressKind = "connecting"
	ProgressConnected         ProgressKind = "connected"
)

// ProgressEvent reports startup milestones.
type ProgressEvent struct {
	SessionID string       `json:"session_id"`
	Kind      ProgressKind `json:"type"`
	Device    string       `json:"device,omitempty"`
	Adapter   string       `json:"adapter,omitempty"`
}

func (ProgressEvent) eventType() string { return "progress" }

// ErrorKind tags error events.
type ErrorKind string

const (
	ErrorAudio      ErrorKind = "audio_error"
	ErrorConnection ErrorKind = "connection_error"
)

// ErrorEvent reports a component error to the host. Fatal audio errors end
// the source actor (the supervisor then restarts it under budget).
type ErrorEvent struct {
	SessionID string    `json:"session_id"`
	Kind      ErrorKind `json:"type"`
	Error     string    `json:"error"`
	Device    string    `json:"device,omitempty"`
	IsFatal   bool      `json:"is_fatal,omitempty"`
}

func (ErrorEvent) eventType() string { return "error" }

// DataKind tags data events.
type DataKind string

const (
	DataAudioAmplitude DataKind = "audio_amplitude"
	DataMicMuted       DataKind = "mic_muted"
	DataStreamResponse DataKind = "stream_response"
)

// DataEvent carries streaming payloads: amplitude meter readings, mute state
// changes, and normalised provider responses.
type DataEvent struct {
	SessionID string   `json:"session_id"`
	Kind      DataKind `json:"type"`

	// Amplitude fields, linearised to [0, 1000].
	Mic     uint16 `json:"mic,omitempty"`
	Speaker uint16 `json:"speaker,omitempty"`

	// Mute field.
	Muted bool `json:"value,omitempty"`

	// Stream response field.
	Response *stt.StreamResponse `json:"response,omitempty"`
}

func (DataEvent) eventType() string { return "data" }

// EventSink receives engine events. Implementations must not block: Emit is
// called from pipeline hot paths.
type EventSink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// Bus is a fan-out [EventSink] for hosts that consume events over channels.
// Slow subscribers lose events rather than stalling the engine.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber channel with the given buffer depth.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Emit delivers the event to every subscriber, dropping it for subscribers
// whose buffer is full.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			slog.Debug("event bus subscriber full, dropping event",
				"event", event.eventType())
		}
	}
}

// Close closes all subscriber channels. Emit must not be called afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
