package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearch_CryptoFastPath(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "bitcoin" {
			t.Errorf("ids = %q", r.URL.Query().Get("ids"))
		}
		w.Write([]byte(`{"bitcoin":{"eur":51234.56,"last_updated_at":1700000000}}`))
	}))
	defer gecko.Close()

	tool := NewSearchTool()
	tool.geckoURL = gecko.URL

	res := tool.Run(context.Background(), map[string]any{"query": "what is the BTC price in euros"}, Context{})
	if !res.Success {
		t.Fatalf("crypto query failed: %+v", res)
	}
	if !strings.Contains(res.Output, "Bitcoin (BTC)") || !strings.Contains(res.Output, "EUR") {
		t.Errorf("output = %q", res.Output)
	}
	if !strings.Contains(res.Output, "CoinGecko") {
		t.Errorf("output should name its source: %q", res.Output)
	}
}

func TestSearch_InstantAnswer(t *testing.T) {
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Heading": "Go",
			"AbstractText": "A programming language.",
			"RelatedTopics": [
				{"Text": "Gopher", "FirstURL": "https://example.com/gopher"},
				{"Text": ""},
				{"Text": "Goroutines"}
			]
		}`))
	}))
	defer ddg.Close()

	tool := NewSearchTool()
	tool.ddgURL = ddg.URL

	res := tool.Run(context.Background(), map[string]any{"query": "golang"}, Context{})
	if !res.Success {
		t.Fatalf("search failed: %+v", res)
	}
	lines := strings.Split(res.Output, "\n")
	if lines[0] != "Go: A programming language." {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(res.Output, "- Gopher (https://example.com/gopher)") {
		t.Errorf("related topic missing: %q", res.Output)
	}
}

func TestSearch_NoResults(t *testing.T) {
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ddg.Close()

	tool := NewSearchTool()
	tool.ddgURL = ddg.URL

	res := tool.Run(context.Background(), map[string]any{"query": "xyzzy"}, Context{})
	if !res.Success || !strings.Contains(res.Output, "No results") {
		t.Errorf("result = %+v", res)
	}
}

func TestSearch_CryptoFallsBackOnError(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer gecko.Close()
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Heading":"Bitcoin","AbstractText":"A currency."}`))
	}))
	defer ddg.Close()

	tool := NewSearchTool()
	tool.geckoURL = gecko.URL
	tool.ddgURL = ddg.URL

	res := tool.Run(context.Background(), map[string]any{"query": "btc price"}, Context{})
	if !res.Success || !strings.Contains(res.Output, "Bitcoin") {
		t.Errorf("fallback result = %+v", res)
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	tool := NewSearchTool()
	if res := tool.Run(context.Background(), map[string]any{}, Context{}); res.Success {
		t.Error("missing query should fail")
	}
}
