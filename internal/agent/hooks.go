package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/decision"
	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// HookEvent names a lifecycle point in the turn state machine.
type HookEvent string

const (
	EventTurnStart  HookEvent = "on_turn_start"
	EventToolResult HookEvent = "on_tool_result"
	EventTurnEnd    HookEvent = "on_turn_end"
)

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 2 * time.Second

// HookContext is the read-only snapshot handed to hooks. Fields past
// UserMessage are populated as the turn progresses.
type HookContext struct {
	SessionID   string             `json:"session_id"`
	Channel     string             `json:"channel,omitempty"`
	TurnIndex   int                `json:"turn_index"`
	UserMessage string             `json:"user_message"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Decision    *decision.Decision `json:"decision,omitempty"`
	ToolName    string             `json:"tool_name,omitempty"`
	ToolResult  *tools.Result      `json:"tool_result,omitempty"`
	Response    string             `json:"response,omitempty"`
}

// Hook observes one lifecycle event. Errors are logged, never propagated.
type Hook func(ctx context.Context, hc HookContext) error

type namedHook struct {
	name string
	fn   Hook
}

// HookRegistry dispatches lifecycle events to registered hooks in
// registration order. A hook that fails or overruns its timeout never
// affects the turn.
type HookRegistry struct {
	mu      sync.Mutex
	hooks   map[HookEvent][]namedHook
	timeout time.Duration
	logger  *slog.Logger
}

// HookOption configures a HookRegistry.
type HookOption func(*HookRegistry)

// WithHookTimeout overrides the per-hook budget.
func WithHookTimeout(d time.Duration) HookOption {
	return func(r *HookRegistry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHookLogger sets the registry logger.
func WithHookLogger(logger *slog.Logger) HookOption {
	return func(r *HookRegistry) { r.logger = logger }
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry(opts ...HookOption) *HookRegistry {
	r := &HookRegistry{
		hooks:   make(map[HookEvent][]namedHook),
		timeout: DefaultHookTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a hook for an event. Names are for logs and
// Unregister; duplicates are allowed.
func (r *HookRegistry) Register(event HookEvent, name string, fn Hook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], namedHook{name: name, fn: fn})
}

// Unregister removes every hook with the given name for an event.
func (r *HookRegistry) Unregister(event HookEvent, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.hooks[event][:0]
	for _, h := range r.hooks[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	r.hooks[event] = kept
}

// Count returns the number of hooks for an event.
func (r *HookRegistry) Count(event HookEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks[event])
}

// Fire runs every hook for the event in order. Each hook gets its own
// timeout; a hook that blocks past it is abandoned and the next one runs.
func (r *HookRegistry) Fire(ctx context.Context, event HookEvent, hc HookContext) {
	r.mu.Lock()
	hooks := make([]namedHook, len(r.hooks[event]))
	copy(hooks, r.hooks[event])
	r.mu.Unlock()

	for _, h := range hooks {
		r.fireOne(ctx, event, h, hc)
	}
}

func (r *HookRegistry) fireOne(ctx context.Context, event HookEvent, h namedHook, hc HookContext) {
	hookCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v", rec)
			}
		}()
		done <- h.fn(hookCtx, hc)
	}()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("hook failed", "event", string(event), "hook", h.name, "error", err)
		}
	case <-hookCtx.Done():
		r.logger.Warn("hook timed out", "event", string(event), "hook", h.name, "timeout", r.timeout)
	}
}
