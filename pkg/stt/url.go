package stt

import (
	"fmt"
	"net/url"
)

// ParseWSBase parses a configured API base into a WebSocket URL, converting
// http(s) schemes to ws(s) and preserving any query parameters already
// embedded in the base (self-hosted deployments route through them).
func ParseWSBase(base string) (*url.URL, url.Values, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, nil, fmt.Errorf("stt: parse base url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, nil, fmt.Errorf("stt: unsupported scheme %q in base url", u.Scheme)
	}
	existing := u.Query()
	u.RawQuery = ""
	return u, existing, nil
}
