package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/auralis-ai/auralis/pkg/stt"
)

// DegradedKind classifies why the transcription path is down while the
// session stays active.
type DegradedKind string

const (
	// DegradedUpstreamUnavailable means the provider endpoint cannot be
	// reached or closed the stream.
	DegradedUpstreamUnavailable DegradedKind = "upstream_unavailable"

	// DegradedAuthenticationFailed means the provider rejected the API key.
	DegradedAuthenticationFailed DegradedKind = "authentication_failed"

	// DegradedConnectionTimeout means the connect or idle deadline elapsed.
	DegradedConnectionTimeout DegradedKind = "connection_timeout"

	// DegradedStreamError is any other stream-level provider error.
	DegradedStreamError DegradedKind = "stream_error"
)

// DegradedError is the reason carried from listener termination to the
// supervisor. It round-trips through JSON because it travels as the actor's
// exit reason string.
type DegradedError struct {
	Kind     DegradedKind `json:"kind"`
	Message  string       `json:"message,omitempty"`
	Provider string       `json:"provider,omitempty"`
}

func (e *DegradedError) Error() string {
	switch {
	case e.Provider != "" && e.Message != "":
		return fmt.Sprintf("%s: [%s] %s", e.Kind, e.Provider, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// serializeReason encodes the error as an exit reason string.
func (e *DegradedError) serializeReason() string {
	data, err := json.Marshal(e)
	if err != nil {
		return string(DegradedStreamError)
	}
	return string(data)
}

// parseDegradedReason decodes an exit reason back into a [DegradedError].
// Reasons that are not serialized degraded errors default to a stream error
// carrying the raw reason text.
func parseDegradedReason(reason string) DegradedError {
	var degraded DegradedError
	if err := json.Unmarshal([]byte(reason), &degraded); err == nil && degraded.Kind != "" {
		return degraded
	}
	if reason == "" {
		reason = "listener terminated without reason"
	}
	return DegradedError{Kind: DegradedStreamError, Message: reason}
}

// classifySpawnError maps a listener dial failure onto its degraded kind: a
// rejected upgrade with an auth status is an authentication failure, an
// expired connect deadline is a timeout, everything else is the upstream
// being unreachable.
func classifySpawnError(err error, provider, baseURL string) DegradedError {
	var httpErr *stt.HTTPError
	switch {
	case errors.As(err, &httpErr) && (httpErr.Status == 401 || httpErr.Status == 403):
		return DegradedError{
			Kind:     DegradedAuthenticationFailed,
			Provider: provider,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return DegradedError{Kind: DegradedConnectionTimeout}
	default:
		return DegradedError{
			Kind:    DegradedUpstreamUnavailable,
			Message: classifyConnectionFailure(baseURL),
		}
	}
}

// classifyConnectionFailure produces the user-facing message for a listener
// that never connected.
func classifyConnectionFailure(baseURL string) string {
	if strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1") {
		return "local transcription server is not running"
	}
	return fmt.Sprintf("cannot reach transcription server at %s", baseURL)
}
