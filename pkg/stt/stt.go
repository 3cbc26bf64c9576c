// Package stt defines the streaming speech-to-text surface of the Auralis
// engine: the normalised [StreamResponse] event model, the [Adapter] contract
// each provider implements, and the [LiveSession] WebSocket client that drives
// an adapter.
//
// The engine core speaks only this package. Concrete providers live in
// subpackages (deepgram, assemblyai, soniox, dashscope, relay) and are
// selected by configuration; provider change requires a new session.
package stt

// ListenParams carries the session-scoped recognition configuration passed to
// an adapter when building the stream. Immutable for the session's lifetime.
type ListenParams struct {
	// Model is the provider model name. Empty selects the provider default.
	Model string

	// Languages is the list of BCP-47 language tags to recognise. Empty lets
	// the provider auto-detect where supported.
	Languages []string

	// Keywords is a list of vocabulary hints (proper nouns, product names)
	// passed to providers that support recognition boosting.
	Keywords []string

	// SampleRate of the audio frames in Hz. The engine always streams 16 kHz.
	SampleRate int

	// Channels is the stream channel count: 1 for a single mixed stream, 2
	// for mic+speaker interleaved. Providers without native multichannel
	// support still receive 1.
	Channels int
}

// MessageType distinguishes text and binary WebSocket frames.
type MessageType int

const (
	// MessageText is a UTF-8 text frame (JSON for every current provider).
	MessageText MessageType = iota + 1

	// MessageBinary is a binary frame carrying raw s16le PCM.
	MessageBinary
)

// Message is one outbound WebSocket frame built by an adapter.
type Message struct {
	Type MessageType
	Data []byte
}

// TextMessage builds a text frame.
func TextMessage(s string) Message {
	return Message{Type: MessageText, Data: []byte(s)}
}

// BinaryMessage builds a binary frame.
func BinaryMessage(b []byte) Message {
	return Message{Type: MessageBinary, Data: b}
}

// Adapter is the provider-polymorphic wire protocol: URL and auth
// construction, framing of outbound audio, and parsing of inbound events into
// the normalised [StreamResponse] model. One inbound message may produce zero
// or more responses.
//
// Adapters are stateless value types; all per-connection state lives in the
// [LiveSession]. Implementations must be safe for concurrent use.
type Adapter interface {
	// ProviderName is the stable identifier used in events and error
	// attribution (e.g. "deepgram").
	ProviderName() string

	// SupportsNativeMultichannel reports whether the provider accepts a
	// 2-channel interleaved stream and attaches per-channel indices itself.
	SupportsNativeMultichannel() bool

	// SupportsLanguages reports whether the provider can recognise all of the
	// given BCP-47 tags. An empty list is always supported.
	SupportsLanguages(langs []string) bool

	// BuildWSURL constructs the WebSocket endpoint URL from the configured
	// base and the session parameters.
	BuildWSURL(base string, params ListenParams) (string, error)

	// AuthHeader returns the HTTP header carrying the API key, when the
	// provider authenticates at the upgrade request. Providers that instead
	// authenticate inside the first message return ok == false and consume
	// the key in InitialMessage.
	AuthHeader(apiKey string) (name, value string, ok bool)

	// InitialMessage returns the session-configure frame sent immediately
	// after the socket opens, if the protocol has one.
	InitialMessage(apiKey string, params ListenParams) (Message, bool)

	// AudioToMessage wraps one s16le PCM frame for the wire: a binary
	// passthrough for most providers, a base64-wrapped JSON event for others.
	AudioToMessage(audio []byte) Message

	// KeepAliveMessage returns the periodic keep-alive frame, if the protocol
	// needs one to hold the stream open across silence.
	KeepAliveMessage() (Message, bool)

	// FinalizeMessage returns the end-of-stream frame telling the provider no
	// more audio is coming.
	FinalizeMessage() Message

	// ParseResponse parses one inbound message into normalised responses.
	// Malformed input is logged by the implementation and yields nil; it must
	// never panic or fail the stream.
	ParseResponse(raw []byte) []StreamResponse
}
