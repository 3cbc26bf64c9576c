package resilience

import (
	"context"

	"github.com/auralis-ai/auralis/pkg/stt/batch"
)

// BatchGuard wraps a batch transcription client with a [CircuitBreaker] so a
// misbehaving endpoint is bypassed quickly instead of stalling every caller
// on HTTP timeouts.
type BatchGuard struct {
	client  *batch.Client
	breaker *CircuitBreaker
}

// NewBatchGuard creates a guard around client. A zero config gets the breaker
// defaults.
func NewBatchGuard(client *batch.Client, cfg CircuitBreakerConfig) *BatchGuard {
	if cfg.Name == "" {
		cfg.Name = "batch-transcription"
	}
	return &BatchGuard{
		client:  client,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Transcribe forwards to the wrapped client under the breaker. When the
// breaker is open the call fails fast with [ErrCircuitOpen].
func (g *BatchGuard) Transcribe(ctx context.Context, req batch.Request) (*batch.Response, error) {
	var resp *batch.Response
	err := g.breaker.Execute(func() error {
		var callErr error
		resp, callErr = g.client.Transcribe(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// State exposes the breaker state for health reporting.
func (g *BatchGuard) State() State {
	return g.breaker.State()
}
