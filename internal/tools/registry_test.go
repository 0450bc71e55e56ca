package tools

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func echoDescriptor(cacheable bool) Descriptor {
	return Descriptor{
		Name:        "echo",
		Description: "Echo the input",
		Schema:      ObjectSchema(map[string]*Schema{"x": StringProp("value")}, "x"),
		Cacheable:   cacheable,
	}
}

func TestRegister_NameConflict(t *testing.T) {
	r := NewRegistry()
	runner := RunnerFunc(func(_ context.Context, args map[string]any, _ Context) *Result {
		return Ok(args["x"].(string))
	})
	if err := r.Register(echoDescriptor(false), runner); err != nil {
		t.Fatal(err)
	}
	err := r.Register(echoDescriptor(false), runner)
	if !errors.Is(err, ErrNameConflict) {
		t.Errorf("duplicate register err = %v, want ErrNameConflict", err)
	}
}

func TestValidate(t *testing.T) {
	r := NewRegistry()
	min, max := 1.0, 10.0
	desc := Descriptor{
		Name: "t",
		Schema: ObjectSchema(map[string]*Schema{
			"name":  StringProp(""),
			"count": {Type: "integer", Minimum: &min, Maximum: &max},
			"mode":  {Type: "string", Enum: []any{"fast", "slow"}},
			"tags":  {Type: "array", Items: &Schema{Type: "string"}},
		}, "name"),
	}
	if err := r.Register(desc, RunnerFunc(func(context.Context, map[string]any, Context) *Result { return Ok("") })); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string // substring of the violation; empty = valid
	}{
		{"valid", map[string]any{"name": "a", "count": float64(3), "mode": "fast"}, ""},
		{"missing required", map[string]any{"count": float64(3)}, "missing required"},
		{"wrong type", map[string]any{"name": 42}, "expected string"},
		{"non-integer", map[string]any{"name": "a", "count": 2.5}, "expected integer"},
		{"below minimum", map[string]any{"name": "a", "count": float64(0)}, "below minimum"},
		{"bad enum", map[string]any{"name": "a", "mode": "turbo"}, "not in enum"},
		{"unknown key", map[string]any{"name": "a", "bogus": true}, "unknown field"},
		{"bad array item", map[string]any{"name": "a", "tags": []any{"ok", 7}}, "expected string"},
		{"null counts as absent", map[string]any{"name": nil}, "missing required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate("t", tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err is %T, want *ValidationError", err)
			}
		})
	}
}

func TestRun_CacheHit(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int64
	runner := RunnerFunc(func(_ context.Context, args map[string]any, _ Context) *Result {
		calls.Add(1)
		return Ok(args["x"].(string))
	})
	if err := r.Register(echoDescriptor(true), runner); err != nil {
		t.Fatal(err)
	}

	first := r.Run(context.Background(), "echo", map[string]any{"x": "hi"}, Context{})
	second := r.Run(context.Background(), "echo", map[string]any{"x": "hi"}, Context{})
	if !first.Success || !second.Success {
		t.Fatalf("results: %+v / %+v", first, second)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("runner called %d times, want 1", got)
	}
	if second.Output != "hi" {
		t.Errorf("cached output = %q", second.Output)
	}
}

func TestRun_CacheRespectsTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRegistry(withClock(func() time.Time { return now }))
	var calls atomic.Int64
	runner := RunnerFunc(func(_ context.Context, args map[string]any, _ Context) *Result {
		calls.Add(1)
		return Ok("v")
	})
	if err := r.Register(echoDescriptor(true), runner); err != nil {
		t.Fatal(err)
	}

	r.Run(context.Background(), "echo", map[string]any{"x": "a"}, Context{})
	now = now.Add(61 * time.Second)
	r.Run(context.Background(), "echo", map[string]any{"x": "a"}, Context{})
	if got := calls.Load(); got != 2 {
		t.Errorf("runner called %d times after TTL expiry, want 2", got)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := NewRegistry(WithGlobalTimeout(50 * time.Millisecond))
	desc := Descriptor{Name: "sleepy", Schema: ObjectSchema(nil), Cacheable: true}
	var calls atomic.Int64
	runner := RunnerFunc(func(ctx context.Context, _ map[string]any, _ Context) *Result {
		calls.Add(1)
		select {
		case <-ctx.Done():
			return Fail("timeout")
		case <-time.After(5 * time.Second):
			return Ok("done")
		}
	})
	if err := r.Register(desc, runner); err != nil {
		t.Fatal(err)
	}

	res := r.Run(context.Background(), "sleepy", map[string]any{}, Context{})
	if res.Success {
		t.Fatalf("timed-out run reported success: %+v", res)
	}
	if res.Error != "timeout" {
		t.Errorf("error = %q, want timeout", res.Error)
	}

	// Timeouts must not be cached even for cacheable tools.
	r.Run(context.Background(), "sleepy", map[string]any{}, Context{})
	if got := calls.Load(); got != 2 {
		t.Errorf("runner called %d times, want 2 (timeout not cached)", got)
	}
}

func TestRun_PanicCaught(t *testing.T) {
	r := NewRegistry()
	desc := Descriptor{Name: "boom", Schema: ObjectSchema(nil)}
	if err := r.Register(desc, RunnerFunc(func(context.Context, map[string]any, Context) *Result {
		panic("kaput")
	})); err != nil {
		t.Fatal(err)
	}
	res := r.Run(context.Background(), "boom", map[string]any{}, Context{})
	if res.Success {
		t.Fatal("panicking runner reported success")
	}
	if !strings.HasPrefix(res.Error, "panic:") {
		t.Errorf("error = %q, want panic:<message>", res.Error)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Run(context.Background(), "nope", nil, Context{})
	if res.Success || !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("result = %+v", res)
	}
}

func TestFingerprint_Canonical(t *testing.T) {
	a := Fingerprint("t", map[string]any{"b": "x  y", "a": float64(1), "dead": nil}, nil)
	b := Fingerprint("t", map[string]any{"a": float64(1), "b": "x y"}, nil)
	if a != b {
		t.Error("fingerprint should ignore key order, null fields and string whitespace")
	}
	c := Fingerprint("t", map[string]any{"a": float64(2), "b": "x y"}, nil)
	if a == c {
		t.Error("different args must fingerprint differently")
	}
	d := Fingerprint("other", map[string]any{"a": float64(1), "b": "x y"}, nil)
	if a == d {
		t.Error("tool name must be part of the fingerprint")
	}
}

func TestFingerprint_Normalizer(t *testing.T) {
	lower := func(args map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range args {
			if s, ok := v.(string); ok {
				out[k] = strings.ToLower(s)
			} else {
				out[k] = v
			}
		}
		return out
	}
	a := Fingerprint("search", map[string]any{"query": "Weather Paris"}, lower)
	b := Fingerprint("search", map[string]any{"query": "weather paris"}, lower)
	if a != b {
		t.Error("normalizer should fold case variants into one entry")
	}
}
