// Package deepgram implements the Deepgram-style streaming adapter: binary
// PCM frames over WebSocket, recognition configured through URL query
// parameters, JSON events inbound. It implements stt.Adapter.
package deepgram

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const (
	defaultModel = "nova-3"
	listenPath   = "/v1/listen"
)

// Adapter is the Deepgram wire protocol. The zero value is ready to use.
type Adapter struct{}

func (Adapter) ProviderName() string             { return "deepgram" }
func (Adapter) SupportsNativeMultichannel() bool { return true }
func (Adapter) SupportsLanguages([]string) bool  { return true }

// BuildWSURL constructs the listen endpoint with recognition parameters in
// the query string.
func (Adapter) BuildWSURL(base string, params stt.ListenParams) (string, error) {
	u, existing, err := stt.ParseWSBase(base)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = listenPath
	}

	model := params.Model
	if model == "" {
		model = defaultModel
	}

	q := u.Query()
	for key, values := range existing {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(params.SampleRate))
	q.Set("channels", strconv.Itoa(params.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if params.Channels == 2 {
		q.Set("multichannel", "true")
	}
	if len(params.Languages) == 1 {
		q.Set("language", params.Languages[0])
	} else if len(params.Languages) > 1 {
		q.Set("detect_language", "true")
	}
	for _, kw := range params.Keywords {
		q.Add("keywords", kw)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (Adapter) AuthHeader(apiKey string) (string, string, bool) {
	if apiKey == "" {
		return "", "", false
	}
	return "Authorization", "Token " + apiKey, true
}

func (Adapter) InitialMessage(string, stt.ListenParams) (stt.Message, bool) {
	return stt.Message{}, false
}

func (Adapter) AudioToMessage(audio []byte) stt.Message {
	return stt.BinaryMessage(audio)
}

func (Adapter) KeepAliveMessage() (stt.Message, bool) {
	return stt.TextMessage(`{"type":"KeepAlive"}`), true
}

func (Adapter) FinalizeMessage() stt.Message {
	return stt.TextMessage(`{"type":"CloseStream"}`)
}

// envelope is the minimal shape needed to route an inbound message.
type envelope struct {
	Type string `json:"type"`
}

type resultsMessage struct {
	IsFinal      bool        `json:"is_final"`
	SpeechFinal  bool        `json:"speech_final"`
	FromFinalize bool        `json:"from_finalize"`
	Start        float64     `json:"start"`
	Duration     float64     `json:"duration"`
	ChannelIndex []int       `json:"channel_index"`
	Channel      stt.Channel `json:"channel"`
	Metadata     *struct {
		RequestID string         `json:"request_id"`
		Extra     map[string]any `json:"extra"`
	} `json:"metadata"`
}

type speechStartedMessage struct {
	Channel   []int   `json:"channel"`
	Timestamp float64 `json:"timestamp"`
}

type utteranceEndMessage struct {
	Channel     []int   `json:"channel"`
	LastWordEnd float64 `json:"last_word_end"`
}

type metadataMessage struct {
	Duration float64 `json:"duration"`
	Channels int     `json:"channels"`
}

type errorMessage struct {
	ErrCode    *int   `json:"err_code"`
	ErrMsg     string `json:"err_msg"`
	Message    string `json:"message"`
	Descriptor string `json:"description"`
}

// ParseResponse maps inbound JSON events onto the normalised model.
func (a Adapter) ParseResponse(raw []byte) []stt.StreamResponse {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("deepgram: malformed message", "err", err)
		return nil
	}

	switch env.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("deepgram: malformed results", "err", err)
			return nil
		}
		resp := stt.StreamResponse{
			Type:         stt.ResponseTranscript,
			IsFinal:      msg.IsFinal,
			SpeechFinal:  msg.SpeechFinal,
			FromFinalize: msg.FromFinalize,
			Start:        msg.Start,
			Duration:     msg.Duration,
			Channel:      msg.Channel,
			ChannelIndex: msg.ChannelIndex,
		}
		if msg.Metadata != nil {
			resp.Metadata = &stt.Metadata{
				RequestID: msg.Metadata.RequestID,
				Extra:     msg.Metadata.Extra,
			}
		}
		return []stt.StreamResponse{resp}

	case "SpeechStarted":
		var msg speechStartedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		resp := stt.StreamResponse{
			Type:         stt.ResponseSpeechStarted,
			Timestamp:    msg.Timestamp,
			ChannelIndex: msg.Channel,
		}
		return []stt.StreamResponse{resp}

	case "UtteranceEnd":
		var msg utteranceEndMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		resp := stt.StreamResponse{
			Type:         stt.ResponseUtteranceEnd,
			LastWordEnd:  msg.LastWordEnd,
			ChannelIndex: msg.Channel,
		}
		return []stt.StreamResponse{resp}

	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		return []stt.StreamResponse{{
			Type:          stt.ResponseTerminal,
			TotalDuration: msg.Duration,
			Channels:      msg.Channels,
		}}

	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		text := msg.ErrMsg
		if text == "" {
			text = msg.Message
		}
		if text == "" {
			text = msg.Descriptor
		}
		return []stt.StreamResponse{stt.ErrorResponse(a.ProviderName(), text, msg.ErrCode)}

	default:
		slog.Debug("deepgram: ignoring message", "type", env.Type)
		return nil
	}
}
