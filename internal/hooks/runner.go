// Package hooks runs user-configured shell commands at session boundaries
// (start and stop). Hooks are strictly best-effort: each gets a bounded
// runtime, failures are logged and never propagate into session lifecycle,
// and a slow script cannot delay shutdown beyond the timeout.
package hooks

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// Timeout bounds each hook script invocation.
const Timeout = 5 * time.Second

// Runner executes the configured hook commands.
type Runner struct {
	onStart []string
	onStop  []string
}

// New creates a runner from the configured command lines. Empty slices are
// fine; the runner is then a no-op.
func New(onStart, onStop []string) *Runner {
	return &Runner{onStart: onStart, onStop: onStop}
}

// SessionStart runs the start hooks with the session ID as argument.
func (r *Runner) SessionStart(ctx context.Context, sessionID string) {
	r.runAll(ctx, "session_start", r.onStart, sessionID)
}

// SessionStop runs the stop hooks with the session ID as argument.
func (r *Runner) SessionStop(ctx context.Context, sessionID string) {
	r.runAll(ctx, "session_stop", r.onStop, sessionID)
}

func (r *Runner) runAll(ctx context.Context, phase string, commands []string, sessionID string) {
	for _, command := range commands {
		hookCtx, cancel := context.WithTimeout(ctx, Timeout)
		start := time.Now()

		cmd := exec.CommandContext(hookCtx, "sh", "-c", command+" "+sessionID)
		// Children of the killed shell can hold the output pipe open; WaitDelay
		// stops Wait from blocking on them past the timeout.
		cmd.WaitDelay = time.Second
		output, err := cmd.CombinedOutput()
		cancel()

		if err != nil {
			slog.Warn("hook failed",
				"phase", phase,
				"command", command,
				"elapsed", time.Since(start),
				"output", string(output),
				"err", err,
			)
			continue
		}
		slog.Debug("hook completed",
			"phase", phase,
			"command", command,
			"elapsed", time.Since(start),
		)
	}
}
