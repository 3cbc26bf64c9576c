// Package batch implements the offline transcription call path: an HTTP POST
// of a complete WAV clip to an OpenAI-compatible /audio/transcriptions
// endpoint, normalised into the same channels/alternatives document the
// streaming path produces. Batch requests never touch the live listener.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auralis-ai/auralis/pkg/stt"
)

const (
	transcriptionsPath = "/audio/transcriptions"
	defaultTimeout     = 2 * time.Minute
)

// Response is the normalised batch transcription document.
type Response struct {
	Channels []ChannelResult `json:"channels"`
}

// ChannelResult holds the hypotheses for one audio channel.
type ChannelResult struct {
	Alternatives []stt.Alternative `json:"alternatives"`
}

// Request describes one batch transcription call.
type Request struct {
	// WAV is the complete audio clip, container included.
	WAV []byte

	// Model is the provider model name; empty uses the provider default.
	Model string

	// Language is an optional BCP-47 hint.
	Language string

	// Duration is the clip length in seconds, used as the word-timing span
	// when the provider returns neither word detail nor its own duration.
	Duration float64
}

// Client posts clips to a batch transcription endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a batch client for the given API base and key.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// providerResponse is the verbose-JSON shape returned by OpenAI-compatible
// transcription endpoints.
type providerResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe posts the clip and returns the normalised document.
func (c *Client) Transcribe(ctx context.Context, req Request) (*Response, error) {
	endpoint, err := url.JoinPath(c.baseURL, transcriptionsPath)
	if err != nil {
		return nil, fmt.Errorf("batch: join url: %w", err)
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("batch: build form: %w", err)
	}
	if _, err := part.Write(req.WAV); err != nil {
		return nil, fmt.Errorf("batch: write clip: %w", err)
	}
	if req.Model != "" {
		if err := mw.WriteField("model", req.Model); err != nil {
			return nil, fmt.Errorf("batch: write model field: %w", err)
		}
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("batch: write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("batch: write format field: %w", err)
	}
	if err := mw.WriteField("timestamp_granularities[]", "word"); err != nil {
		return nil, fmt.Errorf("batch: write granularity field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("batch: finish form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("batch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("batch: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("batch: endpoint returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var provider providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&provider); err != nil {
		return nil, fmt.Errorf("batch: decode response: %w", err)
	}

	return normalize(provider, req.Duration), nil
}

// normalize maps the provider document onto the canonical shape. Providers
// that omit word timings get synthesised words spanning the whole clip.
func normalize(provider providerResponse, clipDuration float64) *Response {
	var words []stt.Word
	if len(provider.Words) > 0 {
		words = make([]stt.Word, 0, len(provider.Words))
		for _, w := range provider.Words {
			words = append(words, stt.Word{
				Word:           " " + strings.TrimSpace(w.Word),
				Start:          w.Start,
				End:            w.End,
				Confidence:     1.0,
				PunctuatedWord: " " + strings.TrimSpace(w.Word),
			})
		}
	} else {
		span := provider.Duration
		if span == 0 {
			span = clipDuration
		}
		words = stt.SyntheticWords(provider.Text)
		if n := len(words); n > 0 && span > 0 {
			per := span / float64(n)
			for i := range words {
				words[i].Start = per * float64(i)
				words[i].End = per * float64(i+1)
			}
		}
	}

	var languages []string
	if provider.Language != "" {
		languages = []string{provider.Language}
	}

	return &Response{
		Channels: []ChannelResult{{
			Alternatives: []stt.Alternative{{
				Transcript: provider.Text,
				Confidence: 1.0,
				Words:      words,
				Languages:  languages,
			}},
		}},
	}
}
