// Package dashscope implements the DashScope realtime adapter: an
// event-envelope protocol where audio is base64-wrapped inside
// input_audio_buffer.append events and the session is configured with a
// session.update message. Transcript events carry plain text only, so word
// detail is synthesised. It implements stt.Adapter.
package dashscope

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const (
	defaultModel = "qwen3-asr-flash-realtime"

	vadDetectionType   = "server_vad"
	vadThreshold       = 0.5
	vadPrefixPaddingMS = 300
	vadSilenceDuration = 500
)

// Adapter is the DashScope wire protocol. The zero value is ready to use.
type Adapter struct{}

func (Adapter) ProviderName() string             { return "dashscope" }
func (Adapter) SupportsNativeMultichannel() bool { return false }
func (Adapter) SupportsLanguages([]string) bool  { return true }

func (Adapter) BuildWSURL(base string, params stt.ListenParams) (string, error) {
	u, existing, err := stt.ParseWSBase(base)
	if err != nil {
		return "", err
	}

	model := params.Model
	if model == "" {
		model = defaultModel
	}

	q := u.Query()
	q.Set("model", model)
	for key, values := range existing {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (Adapter) AuthHeader(apiKey string) (string, string, bool) {
	if apiKey == "" {
		return "", "", false
	}
	return "Authorization", "Bearer " + apiKey, true
}

type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities    []string             `json:"modalities"`
	Transcription *transcriptionConfig `json:"transcription,omitempty"`
	TurnDetection *turnDetection       `json:"turn_detection,omitempty"`
}

type transcriptionConfig struct {
	Language         string `json:"language,omitempty"`
	InputAudioFormat string `json:"input_audio_format"`
	InputSampleRate  int    `json:"input_sample_rate"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

func (Adapter) InitialMessage(_ string, params stt.ListenParams) (stt.Message, bool) {
	var language string
	if len(params.Languages) > 0 {
		language = params.Languages[0]
	}

	cfg := sessionUpdateEvent{
		Type: "session.update",
		Session: sessionConfig{
			Modalities: []string{"text"},
			Transcription: &transcriptionConfig{
				Language:         language,
				InputAudioFormat: "pcm",
				InputSampleRate:  params.SampleRate,
			},
			TurnDetection: &turnDetection{
				Type:              vadDetectionType,
				Threshold:         vadThreshold,
				PrefixPaddingMS:   vadPrefixPaddingMS,
				SilenceDurationMS: vadSilenceDuration,
			},
		},
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return stt.Message{}, false
	}
	return stt.Message{Type: stt.MessageText, Data: payload}, true
}

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func (Adapter) AudioToMessage(audio []byte) stt.Message {
	payload, _ := json.Marshal(audioAppendEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
	return stt.Message{Type: stt.MessageText, Data: payload}
}

func (Adapter) KeepAliveMessage() (stt.Message, bool) {
	return stt.Message{}, false
}

func (Adapter) FinalizeMessage() stt.Message {
	return stt.TextMessage(`{"type":"session.finish"}`)
}

type inboundEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponse maps envelope events onto the normalised model. Lifecycle
// events (session.created, buffer commits, speech markers) carry no
// transcript content and are dropped.
func (a Adapter) ParseResponse(raw []byte) []stt.StreamResponse {
	var event inboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		slog.Warn("dashscope: malformed message", "err", err)
		return nil
	}

	switch event.Type {
	case "conversation.item.input_audio_transcription.completed":
		return a.transcriptResponse(event.Transcript, true)

	case "conversation.item.input_audio_transcription.text":
		return a.transcriptResponse(event.Text, false)

	case "conversation.item.input_audio_transcription.failed", "error":
		message := "unknown error"
		if event.Error != nil {
			message = event.Error.Type + ": " + event.Error.Message
		}
		return []stt.StreamResponse{stt.ErrorResponse(a.ProviderName(), message, nil)}

	case "session.finished":
		return []stt.StreamResponse{{Type: stt.ResponseTerminal, Channels: 1}}

	case "session.created", "session.updated",
		"input_audio_buffer.committed", "input_audio_buffer.cleared",
		"input_audio_buffer.speech_started", "input_audio_buffer.speech_stopped":
		return nil

	default:
		slog.Debug("dashscope: ignoring event", "type", event.Type)
		return nil
	}
}

func (Adapter) transcriptResponse(text string, isFinal bool) []stt.StreamResponse {
	if text == "" {
		return nil
	}
	words := stt.SyntheticWords(text)
	resp := stt.TranscriptResponse(text, words, isFinal, isFinal)
	resp.ChannelIndex = []int{0, 1}
	return []stt.StreamResponse{resp}
}
