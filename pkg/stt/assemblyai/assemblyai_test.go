package assemblyai

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/auralis-ai/auralis/pkg/stt"
)

func TestBuildWSURL(t *testing.T) {
	a := Adapter{}
	url, err := a.BuildWSURL("https://api.assemblyai.com", stt.ListenParams{
		SampleRate: 16000,
		Keywords:   []string{"Auralis"},
	})
	if err != nil {
		t.Fatalf("BuildWSURL: %v", err)
	}
	for _, want := range []string{"wss://", "/v2/realtime/ws", "sample_rate=16000", "word_boost"} {
		if !strings.Contains(url, want) {
			t.Errorf("url %q missing %q", url, want)
		}
	}
}

func TestSupportsLanguages(t *testing.T) {
	a := Adapter{}
	if !a.SupportsLanguages([]string{"en", "en-US"}) {
		t.Error("English variants should be supported")
	}
	if a.SupportsLanguages([]string{"de"}) {
		t.Error("non-English should be unsupported")
	}
}

func TestAudioToMessage(t *testing.T) {
	a := Adapter{}
	pcm := []byte{0x01, 0x02, 0x03}
	msg := a.AudioToMessage(pcm)
	if msg.Type != stt.MessageText {
		t.Fatal("audio should be wrapped in a text frame")
	}
	var event struct {
		AudioData string `json:"audio_data"`
	}
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		t.Fatalf("unmarshal audio event: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(event.AudioData)
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Error("decoded audio does not match input")
	}
}

func TestParseResponse_FinalTranscript(t *testing.T) {
	a := Adapter{}
	raw := `{
		"message_type": "FinalTranscript",
		"text": "hello there",
		"confidence": 0.91,
		"audio_start": 100,
		"audio_end": 900,
		"words": [
			{"text": "hello", "start": 100, "end": 450, "confidence": 0.93},
			{"text": "there", "start": 460, "end": 900, "confidence": 0.89}
		]
	}`
	responses := a.ParseResponse([]byte(raw))
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	resp := responses[0]
	if resp.Type != stt.ResponseTranscript || !resp.IsFinal {
		t.Fatalf("expected final transcript, got %+v", resp)
	}
	words := resp.Words()
	if len(words) != 2 {
		t.Fatalf("words = %d, want 2", len(words))
	}
	// Millisecond timings convert to seconds.
	if words[0].Start != 0.1 || words[0].End != 0.45 {
		t.Errorf("word timing = (%f, %f), want (0.1, 0.45)", words[0].Start, words[0].End)
	}
}

func TestParseResponse_PartialAndTerminated(t *testing.T) {
	a := Adapter{}

	responses := a.ParseResponse([]byte(`{"message_type":"PartialTranscript","text":"hel","words":[]}`))
	if len(responses) != 1 || responses[0].IsFinal {
		t.Fatalf("expected partial, got %+v", responses)
	}

	responses = a.ParseResponse([]byte(`{"message_type":"SessionTerminated","audio_end":5000}`))
	if len(responses) != 1 || responses[0].Type != stt.ResponseTerminal {
		t.Fatalf("expected terminal, got %+v", responses)
	}
	if responses[0].TotalDuration != 5.0 {
		t.Errorf("total duration = %f, want 5.0", responses[0].TotalDuration)
	}
}

func TestParseResponse_Error(t *testing.T) {
	a := Adapter{}
	responses := a.ParseResponse([]byte(`{"error":"not authorized"}`))
	if len(responses) != 1 || responses[0].Type != stt.ResponseError {
		t.Fatalf("expected error response, got %+v", responses)
	}
	if responses[0].Provider != "assemblyai" {
		t.Errorf("provider = %q, want assemblyai", responses[0].Provider)
	}
}

func TestParseResponse_EmptyTextIgnored(t *testing.T) {
	a := Adapter{}
	if got := a.ParseResponse([]byte(`{"message_type":"PartialTranscript","text":""}`)); got != nil {
		t.Errorf("empty partial should be ignored, got %+v", got)
	}
}

func TestFinalize(t *testing.T) {
	a := Adapter{}
	if msg := a.FinalizeMessage(); !strings.Contains(string(msg.Data), "terminate_session") {
		t.Errorf("finalize = %q, want terminate_session", msg.Data)
	}
}
