package providers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeuristic_EmbedDeterministic(t *testing.T) {
	c := NewLocalHeuristicClient()
	a, err := c.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Embed(context.Background(), []string{"hello world"})
	if len(a[0]) != HeuristicDim {
		t.Fatalf("dim = %d, want %d", len(a[0]), HeuristicDim)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("embedding not deterministic")
		}
	}
	var norm float64
	for _, x := range a[0] {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("embedding not unit norm: %f", norm)
	}
}

func TestHeuristic_ScoreTools(t *testing.T) {
	c := NewLocalHeuristicClient()
	docs := map[string]string{"search": "web search", "shell": "run commands", "file": "file ops"}

	scores, err := c.ScoreTools(context.Background(), "", "search the web for gophers", docs)
	if err != nil {
		t.Fatal(err)
	}
	if scores["search"] <= scores["shell"] || scores["search"] <= scores["file"] {
		t.Errorf("search should dominate: %v", scores)
	}
}

func TestHeuristic_PlanToolArgs(t *testing.T) {
	c := NewLocalHeuristicClient()
	ctx := context.Background()

	args, _ := c.PlanToolArgs(ctx, "run ls -la", "shell", "")
	if args["command"] != "ls -la" {
		t.Errorf("shell args = %v", args)
	}
	args, _ = c.PlanToolArgs(ctx, "read notes.md", "file", "")
	if args["action"] != "read" || args["path"] != "notes.md" {
		t.Errorf("file args = %v", args)
	}
	args, _ = c.PlanToolArgs(ctx, "latest gopher news", "search", "")
	if args["query"] != "latest gopher news" {
		t.Errorf("search args = %v", args)
	}
}

func TestOpenAI_ScoreTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("auth = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"search\": 0.9, \"shell\": 0.1}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", "m", "e")
	scores, err := c.ScoreTools(context.Background(), "", "find gophers", map[string]string{"search": "s", "shell": "sh"})
	if err != nil {
		t.Fatal(err)
	}
	if scores["search"] != 0.9 || scores["shell"] != 0.1 {
		t.Errorf("scores = %v", scores)
	}
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", "m", "e")
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || vecs[1][1] != 0.4 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestOpenAI_ErrorKinds(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	c := NewOpenAIClient(bad.URL, "k", "m", "e")
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("HTTP 502 err = %v, want ErrTransport", err)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	c = NewOpenAIClient(garbage.URL, "k", "m", "e")
	_, err = c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("garbage body err = %v, want ErrDecode", err)
	}
}

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"a": 1}`, true},
		{"```json\n{\"a\": 1}\n```", true},
		{`the answer is {"a": 1} ok`, true},
		{`[1, 2]`, false},
		{`nothing here`, false},
	}
	for _, tt := range tests {
		got := parseJSONObject(tt.raw)
		if (got != nil) != tt.want {
			t.Errorf("parseJSONObject(%q) = %v", tt.raw, got)
		}
	}
}

type failingClient struct{ LocalHeuristicClient }

func (f *failingClient) Name() string { return "failing" }
func (f *failingClient) ScoreTools(context.Context, string, string, map[string]string) (map[string]float64, error) {
	return nil, transportErr("down")
}
func (f *failingClient) Chat(context.Context, []Message, ChatOptions) (string, error) {
	return "primary answer", nil
}

func TestFallback_OnErrorOnly(t *testing.T) {
	c := WithFallback(&failingClient{})

	// Failing op falls back to the heuristic.
	scores, err := c.ScoreTools(context.Background(), "", "search the web", map[string]string{"search": "s"})
	if err != nil {
		t.Fatal(err)
	}
	if scores["search"] <= 0 {
		t.Errorf("fallback scores = %v", scores)
	}

	// Successful op keeps the primary's answer.
	out, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil || out != "primary answer" {
		t.Errorf("chat = %q, %v", out, err)
	}
}

func TestRegistry_BuildClient(t *testing.T) {
	r := NewRegistry()
	t.Setenv("OPENAI_API_KEY", "")

	// No key anywhere: local heuristic.
	c, err := r.BuildClient(Options{Provider: "openai"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*LocalHeuristicClient); !ok {
		t.Errorf("keyless client = %T, want LocalHeuristicClient", c)
	}

	// Unknown provider errors with the known list.
	if _, err := r.BuildClient(Options{Provider: "nope"}); err == nil || !strings.Contains(err.Error(), "known:") {
		t.Errorf("unknown provider err = %v", err)
	}

	// Split chat/embedding providers produce a split client under fallback.
	c, err = r.BuildClient(Options{
		Provider:          "anthropic",
		APIKey:            "k1",
		EmbeddingProvider: "openai",
		EmbeddingAPIKey:   "k2",
	})
	if err != nil {
		t.Fatal(err)
	}
	fb, ok := c.(*FallbackClient)
	if !ok {
		t.Fatalf("client = %T, want FallbackClient", c)
	}
	if _, ok := fb.primary.(*SplitClient); !ok {
		t.Errorf("primary = %T, want SplitClient", fb.primary)
	}
}
