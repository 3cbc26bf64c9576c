// Package relay implements the adapter for the Auralis transcription relay:
// a cloud-agnostic WebSocket endpoint that already speaks the canonical
// stt.StreamResponse model, so parsing is a straight decode. Binary PCM out,
// bearer-token auth, device binding via the fingerprint header handled by the
// client layer.
package relay

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const listenPath = "/v1/listen"

// Adapter is the relay wire protocol. The zero value is ready to use.
type Adapter struct{}

func (Adapter) ProviderName() string             { return "relay" }
func (Adapter) SupportsNativeMultichannel() bool { return true }
func (Adapter) SupportsLanguages([]string) bool  { return true }

func (Adapter) BuildWSURL(base string, params stt.ListenParams) (string, error) {
	u, existing, err := stt.ParseWSBase(base)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = listenPath
	}

	q := u.Query()
	for key, values := range existing {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	if params.Model != "" {
		q.Set("model", params.Model)
	}
	q.Set("sample_rate", strconv.Itoa(params.SampleRate))
	q.Set("channels", strconv.Itoa(params.Channels))
	for _, lang := range params.Languages {
		q.Add("languages", lang)
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
	return "Authorization", "Bearer " + apiKey, true
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

// ParseResponse decodes a canonical StreamResponse document. A terminal
// carries its session length in "duration", which is moved to TotalDuration.
func (Adapter) ParseResponse(raw []byte) []stt.StreamResponse {
	var resp stt.StreamResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("relay: malformed message", "err", err)
		return nil
	}
	if resp.Type == "" {
		slog.Debug("relay: message without type, ignoring")
		return nil
	}
	if resp.Type == stt.ResponseTerminal && resp.TotalDuration == 0 {
		resp.TotalDuration = resp.Duration
		resp.Duration = 0
	}
	return []stt.StreamResponse{resp}
}
