// Package tools provides the tool registry: descriptor registration,
// parameter validation against a typed JSON-schema subset, fingerprinted
// result caching, and execution with hard timeouts.
package tools

import (
	"context"
	"time"
)

// Context carries per-turn execution scope into tool runners.
type Context struct {
	WorkspaceRoot string
	SessionID     string
	Channel       string
	ChatID        string
}

// Result is the unified return type from tool execution.
type Result struct {
	Output    string         `json:"output"`             // human-readable output
	Data      map[string]any `json:"data,omitempty"`     // structured payload for chaining
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
}

// Ok builds a successful result.
func Ok(output string) *Result {
	return &Result{Output: output, Success: true}
}

// OkData builds a successful result with structured data for chaining.
func OkData(output string, data map[string]any) *Result {
	return &Result{Output: output, Data: data, Success: true}
}

// Fail builds a failed result. Failed results never carry data.
func Fail(message string) *Result {
	return &Result{Output: message, Error: message, Success: false}
}

// Descriptor declares a tool to the registry.
type Descriptor struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Schema         *Schema `json:"parameters"`
	Cacheable      bool    `json:"cacheable"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"` // 0 = registry default

	// FingerprintNormalizer optionally rewrites args before cache
	// fingerprinting (e.g. lowercase a search query).
	FingerprintNormalizer func(args map[string]any) map[string]any `json:"-"`
}

// Runner executes a tool with validated args. Runners must honor ctx
// cancellation; the registry enforces the deadline.
type Runner interface {
	Run(ctx context.Context, args map[string]any, tc Context) *Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, args map[string]any, tc Context) *Result

func (f RunnerFunc) Run(ctx context.Context, args map[string]any, tc Context) *Result {
	return f(ctx, args, tc)
}

func (d Descriptor) timeout(global time.Duration) time.Duration {
	if d.TimeoutSeconds <= 0 {
		return global
	}
	own := time.Duration(d.TimeoutSeconds) * time.Second
	if own < global {
		return own
	}
	return global
}
