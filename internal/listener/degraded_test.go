package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/auralis-ai/auralis/pkg/stt"
)

func TestDegradedReasonRoundTrip(t *testing.T) {
	tests := []DegradedError{
		{Kind: DegradedConnectionTimeout},
		{Kind: DegradedUpstreamUnavailable, Message: "stream ended"},
		{Kind: DegradedAuthenticationFailed, Provider: "deepgram"},
		{Kind: DegradedStreamError, Message: "boom"},
	}

	for _, want := range tests {
		t.Run(string(want.Kind), func(t *testing.T) {
			got := parseDegradedReason(want.serializeReason())
			if got != want {
				t.Errorf("round trip = %+v, want %+v", got, want)
			}
		})
	}
}

func TestParseDegradedReason_Fallbacks(t *testing.T) {
	got := parseDegradedReason("not-json")
	if got.Kind != DegradedStreamError || got.Message != "not-json" {
		t.Errorf("invalid json parse = %+v, want stream error carrying the text", got)
	}

	got = parseDegradedReason("")
	if got.Kind != DegradedStreamError || got.Message == "" {
		t.Errorf("empty reason parse = %+v, want stream error with placeholder", got)
	}
}

func TestClassifyConnectionFailure(t *testing.T) {
	if msg := classifyConnectionFailure("http://localhost:8080"); !strings.Contains(msg, "local") {
		t.Errorf("localhost message = %q, want local-server wording", msg)
	}
	if msg := classifyConnectionFailure("https://api.example.com"); !strings.Contains(msg, "api.example.com") {
		t.Errorf("remote message = %q, want to name the endpoint", msg)
	}
}

func TestClassifySpawnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want DegradedKind
	}{
		{"auth status", &stt.HTTPError{Status: 401}, DegradedAuthenticationFailed},
		{"forbidden", &stt.HTTPError{Status: 403}, DegradedAuthenticationFailed},
		{"connect timeout", fmt.Errorf("dial: %w", context.DeadlineExceeded), DegradedConnectionTimeout},
		{"refused", errors.New("connection refused"), DegradedUpstreamUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifySpawnError(tc.err, "relay", "https://api.example.com")
			if got.Kind != tc.want {
				t.Errorf("kind = %q, want %q", got.Kind, tc.want)
			}
		})
	}
}

func TestDegradedErrorMessage(t *testing.T) {
	e := DegradedError{Kind: DegradedAuthenticationFailed, Provider: "soniox", Message: "bad key"}
	if got := e.Error(); !strings.Contains(got, "soniox") || !strings.Contains(got, "bad key") {
		t.Errorf("Error() = %q, want provider and message", got)
	}
}

func TestBusFanOutAndDrop(t *testing.T) {
	bus := NewBus()
	fast := bus.Subscribe(4)
	slow := bus.Subscribe(1)

	bus.Emit(DataEvent{SessionID: "s1", Kind: DataMicMuted, Muted: true})
	bus.Emit(DataEvent{SessionID: "s1", Kind: DataMicMuted, Muted: false})

	if len(fast) != 2 {
		t.Errorf("fast subscriber has %d events, want 2", len(fast))
	}
	// The slow subscriber's buffer held one; the second was dropped, not
	// blocked on.
	if len(slow) != 1 {
		t.Errorf("slow subscriber has %d events, want 1", len(slow))
	}

	bus.Close()
	for range fast {
	}
	if _, ok := <-fast; ok {
		t.Error("subscriber channel not closed after Close")
	}
}
