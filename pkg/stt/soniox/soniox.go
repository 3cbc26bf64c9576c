// Package soniox implements the Soniox realtime adapter. Authentication and
// session configuration travel inside the first JSON message rather than an
// HTTP header; inbound messages carry a flat token list split by finality,
// and an empty text frame signals end-of-stream. It implements stt.Adapter.
package soniox

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const defaultModel = "stt-rt-preview"

// Adapter is the Soniox wire protocol. The zero value is ready to use.
type Adapter struct{}

func (Adapter) ProviderName() string             { return "soniox" }
func (Adapter) SupportsNativeMultichannel() bool { return false }
func (Adapter) SupportsLanguages([]string) bool  { return true }

func (Adapter) BuildWSURL(base string, params stt.ListenParams) (string, error) {
	u, existing, err := stt.ParseWSBase(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range existing {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AuthHeader returns no header: Soniox authenticates inside the configure
// message.
func (Adapter) AuthHeader(string) (string, string, bool) {
	return "", "", false
}

type configureMessage struct {
	APIKey                  string   `json:"api_key"`
	Model                   string   `json:"model"`
	AudioFormat             string   `json:"audio_format"`
	SampleRate              int      `json:"sample_rate"`
	NumChannels             int      `json:"num_channels"`
	LanguageHints           []string `json:"language_hints,omitempty"`
	Context                 string   `json:"context,omitempty"`
	EnableEndpointDetection bool     `json:"enable_endpoint_detection"`
}

func (Adapter) InitialMessage(apiKey string, params stt.ListenParams) (stt.Message, bool) {
	model := params.Model
	if model == "" {
		model = defaultModel
	}
	cfg := configureMessage{
		APIKey:                  apiKey,
		Model:                   model,
		AudioFormat:             "pcm_s16le",
		SampleRate:              params.SampleRate,
		NumChannels:             params.Channels,
		LanguageHints:           params.Languages,
		Context:                 strings.Join(params.Keywords, ", "),
		EnableEndpointDetection: true,
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return stt.Message{}, false
	}
	return stt.Message{Type: stt.MessageText, Data: payload}, true
}

func (Adapter) AudioToMessage(audio []byte) stt.Message {
	return stt.BinaryMessage(audio)
}

func (Adapter) KeepAliveMessage() (stt.Message, bool) {
	return stt.Message{}, false
}

// FinalizeMessage is the protocol's end-of-stream marker: an empty text frame.
func (Adapter) FinalizeMessage() stt.Message {
	return stt.TextMessage("")
}

type inboundMessage struct {
	Tokens []struct {
		Text       string  `json:"text"`
		StartMS    float64 `json:"start_ms"`
		EndMS      float64 `json:"end_ms"`
		Confidence float64 `json:"confidence"`
		IsFinal    bool    `json:"is_final"`
		Speaker    *int    `json:"speaker,omitempty"`
		Language   string  `json:"language,omitempty"`
	} `json:"tokens"`
	FinalAudioProcMS float64 `json:"final_audio_proc_ms"`
	TotalAudioProcMS float64 `json:"total_audio_proc_ms"`
	Finished         bool    `json:"finished"`
	ErrorCode        *int    `json:"error_code,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// ParseResponse splits the token list by finality: final tokens become one
// final transcript response, the remainder one partial. Token timings arrive
// in milliseconds.
func (a Adapter) ParseResponse(raw []byte) []stt.StreamResponse {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("soniox: malformed message", "err", err)
		return nil
	}

	if msg.ErrorCode != nil {
		return []stt.StreamResponse{
			stt.ErrorResponse(a.ProviderName(), msg.ErrorMessage, msg.ErrorCode),
		}
	}

	var finals, partials []stt.Word
	for _, tok := range msg.Tokens {
		if tok.Text == "" || tok.Text == "<end>" || tok.Text == "<fin>" {
			continue
		}
		word := stt.Word{
			Word:           tok.Text,
			Start:          tok.StartMS / 1000.0,
			End:            tok.EndMS / 1000.0,
			Confidence:     tok.Confidence,
			Speaker:        tok.Speaker,
			PunctuatedWord: tok.Text,
			Language:       tok.Language,
		}
		if tok.IsFinal {
			finals = append(finals, word)
		} else {
			partials = append(partials, word)
		}
	}

	var out []stt.StreamResponse
	if len(finals) > 0 {
		out = append(out, stt.TranscriptResponse(joinTokens(finals), finals, true, true))
	}
	if len(partials) > 0 {
		out = append(out, stt.TranscriptResponse(joinTokens(partials), partials, false, false))
	}
	if msg.Finished {
		out = append(out, stt.StreamResponse{
			Type:          stt.ResponseTerminal,
			TotalDuration: msg.TotalAudioProcMS / 1000.0,
			Channels:      1,
		})
	}
	return out
}

// joinTokens concatenates token texts; Soniox tokens carry their own leading
// whitespace.
func joinTokens(words []stt.Word) string {
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(w.Word)
	}
	return sb.String()
}
