// Package heartbeat periodically injects the instructions from a
// HEARTBEAT.md file as an agent turn, letting the user give the agent a
// standing "check on things" prompt.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DefaultInterval is how often the heartbeat fires.
const DefaultInterval = 5 * time.Minute

// Handler runs one heartbeat message as an agent turn.
type Handler func(ctx context.Context, message string) error

// Runner re-reads the heartbeat file on every tick so edits take effect
// without a restart. An empty or missing file skips the beat.
type Runner struct {
	path     string
	interval time.Duration
	handler  Handler
}

func NewRunner(path string, interval time.Duration, handler Handler) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{path: path, interval: interval, handler: handler}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Runner) beat(ctx context.Context) {
	message := r.readMessage()
	if message == "" {
		return
	}
	slog.Debug("heartbeat firing", "file", r.path)
	if err := r.handler(ctx, message); err != nil {
		slog.Error("heartbeat turn failed", "error", err)
	}
}

func (r *Runner) readMessage() string {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
