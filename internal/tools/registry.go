package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/picoagent/internal/tracing"
)

// ErrNameConflict is returned when registering a duplicate tool name.
var ErrNameConflict = errors.New("tool name already registered")

// ErrUnknownTool is returned when running or validating an unregistered name.
var ErrUnknownTool = errors.New("unknown tool")

// DefaultGlobalTimeout caps any single tool run.
const DefaultGlobalTimeout = 30 * time.Second

type registered struct {
	desc   Descriptor
	runner Runner
}

// Registry owns the installed tools and their result cache.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]*registered
	cache         *resultCache
	globalTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithGlobalTimeout overrides the default per-run timeout cap.
func WithGlobalTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.globalTimeout = d
		}
	}
}

// WithCache overrides the cache TTL and size.
func WithCache(ttl time.Duration, maxEntries int) RegistryOption {
	return func(r *Registry) { r.cache = newResultCache(ttl, maxEntries) }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

func withClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:         make(map[string]*registered),
		cache:         newResultCache(DefaultCacheTTL, DefaultCacheMaxEntries),
		globalTimeout: DefaultGlobalTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs a tool. Duplicate names fail with ErrNameConflict;
// structurally invalid schemas are rejected up front.
func (r *Registry) Register(desc Descriptor, runner Runner) error {
	if desc.Name == "" {
		return errors.New("tool name is empty")
	}
	if runner == nil {
		return fmt.Errorf("tool %s: nil runner", desc.Name)
	}
	if err := desc.Schema.Check(); err != nil {
		return fmt.Errorf("tool %s: %w", desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrNameConflict, desc.Name)
	}
	r.tools[desc.Name] = &registered{desc: desc, runner: runner}
	return nil
}

// Unregister removes a tool. Unknown names are a no-op, so dynamic
// providers (MCP) can clean up without tracking registration state.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Docs returns name -> description for every registered tool, the shape
// provider scoring prompts consume.
func (r *Registry) Docs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.desc.Description
	}
	return out
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the descriptor for a name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return t.desc, true
}

// Validate checks args against the tool's schema. Returns nil when valid,
// a *ValidationError listing every violation otherwise.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if violations := t.desc.Schema.Validate(args); len(violations) > 0 {
		return &ValidationError{Tool: name, Violations: violations}
	}
	return nil
}

// Run validates and executes a tool under a hard timeout, consulting the
// result cache for cacheable tools. Timeouts are reported as
// success=false, error="timeout" and never cached.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any, tc Context) *Result {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Fail(fmt.Sprintf("unknown tool: %s", name))
	}
	if err := r.Validate(name, args); err != nil {
		return Fail(err.Error())
	}

	var key string
	if t.desc.Cacheable {
		key = Fingerprint(name, args, t.desc.FingerprintNormalizer)
		if cached, hit := r.cache.get(key, r.now()); hit {
			r.logger.Debug("tool cache hit", "tool", name)
			copied := *cached
			return &copied
		}
	}

	result := r.execute(ctx, t, args, tc)

	if t.desc.Cacheable && result.Error != "timeout" {
		r.cache.put(key, result, r.now())
	}
	return result
}

func (r *Registry) execute(ctx context.Context, t *registered, args map[string]any, tc Context) *Result {
	timeout := t.desc.timeout(r.globalTimeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, span := tracing.StartSpan(runCtx, "tool.run", attribute.String("tool.name", t.desc.Name))
	defer span.End()

	start := r.now()
	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Fail(fmt.Sprintf("panic:%v", rec))
			}
		}()
		done <- t.runner.Run(runCtx, args, tc)
	}()

	var result *Result
	select {
	case result = <-done:
		if result == nil {
			result = Fail("internal:nil result")
		}
	case <-runCtx.Done():
		result = Fail("timeout")
	}
	result.LatencyMS = r.now().Sub(start).Milliseconds()
	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("tool.latency_ms", result.LatencyMS),
	)

	if !result.Success {
		r.logger.Warn("tool failed", "tool", t.desc.Name, "error", result.Error, "latency_ms", result.LatencyMS)
	} else {
		r.logger.Debug("tool ok", "tool", t.desc.Name, "latency_ms", result.LatencyMS)
	}
	return result
}

// InvalidateCache drops all cached results.
func (r *Registry) InvalidateCache() { r.cache.purge() }
