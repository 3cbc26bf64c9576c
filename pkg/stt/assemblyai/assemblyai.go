// Package assemblyai implements the AssemblyAI realtime adapter: base64
// audio inside JSON events, word timings in integer milliseconds, and a
// partial/final message-type split. It implements stt.Adapter.
package assemblyai

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const realtimePath = "/v2/realtime/ws"

// Adapter is the AssemblyAI wire protocol. The zero value is ready to use.
type Adapter struct{}

func (Adapter) ProviderName() string             { return "assemblyai" }
func (Adapter) SupportsNativeMultichannel() bool { return false }

// SupportsLanguages reports true only for English variants; the realtime
// endpoint is English-only.
func (Adapter) SupportsLanguages(langs []string) bool {
	for _, l := range langs {
		if l != "en" && !strings.HasPrefix(l, "en-") {
			return false
		}
	}
	return true
}

func (Adapter) BuildWSURL(base string, params stt.ListenParams) (string, error) {
	u, existing, err := stt.ParseWSBase(base)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = realtimePath
	}

	q := u.Query()
	for key, values := range existing {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("sample_rate", strconv.Itoa(params.SampleRate))
	if len(params.Keywords) > 0 {
		boost, err := json.Marshal(params.Keywords)
		if err == nil {
			q.Set("word_boost", string(boost))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (Adapter) AuthHeader(apiKey string) (string, string, bool) {
	if apiKey == "" {
		return "", "", false
	}
	return "Authorization", apiKey, true
}

func (Adapter) InitialMessage(string, stt.ListenParams) (stt.Message, bool) {
	return stt.Message{}, false
}

type audioEvent struct {
	AudioData string `json:"audio_data"`
}

func (Adapter) AudioToMessage(audio []byte) stt.Message {
	payload, _ := json.Marshal(audioEvent{
		AudioData: base64.StdEncoding.EncodeToString(audio),
	})
	return stt.Message{Type: stt.MessageText, Data: payload}
}

func (Adapter) KeepAliveMessage() (stt.Message, bool) {
	return stt.Message{}, false
}

func (Adapter) FinalizeMessage() stt.Message {
	return stt.TextMessage(`{"terminate_session":true}`)
}

type inboundMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	AudioStart  float64 `json:"audio_start"`
	AudioEnd    float64 `json:"audio_end"`
	Words       []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
	Error string `json:"error"`
}

// ParseResponse maps realtime events onto the normalised model. Word timings
// arrive in milliseconds and are converted to seconds.
func (a Adapter) ParseResponse(raw []byte) []stt.StreamResponse {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("assemblyai: malformed message", "err", err)
		return nil
	}

	if msg.Error != "" {
		return []stt.StreamResponse{stt.ErrorResponse(a.ProviderName(), msg.Error, nil)}
	}

	switch msg.MessageType {
	case "PartialTranscript", "FinalTranscript":
		if msg.Text == "" {
			return nil
		}
		isFinal := msg.MessageType == "FinalTranscript"
		words := make([]stt.Word, 0, len(msg.Words))
		for _, w := range msg.Words {
			words = append(words, stt.Word{
				Word:           " " + w.Text,
				Start:          w.Start / 1000.0,
				End:            w.End / 1000.0,
				Confidence:     w.Confidence,
				PunctuatedWord: " " + w.Text,
			})
		}
		resp := stt.TranscriptResponse(" "+msg.Text, words, isFinal, isFinal)
		resp.Channel.Alternatives[0].Confidence = msg.Confidence
		return []stt.StreamResponse{resp}

	case "SessionTerminated":
		return []stt.StreamResponse{{
			Type:          stt.ResponseTerminal,
			TotalDuration: msg.AudioEnd / 1000.0,
			Channels:      1,
		}}

	case "SessionBegins":
		return nil

	default:
		slog.Debug("assemblyai: ignoring message", "message_type", msg.MessageType)
		return nil
	}
}
