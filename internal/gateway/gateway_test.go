package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/agent"
	"github.com/nextlevelbuilder/picoagent/internal/bus"
	"github.com/nextlevelbuilder/picoagent/internal/decision"
	"github.com/nextlevelbuilder/picoagent/internal/memory"
	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	loop, err := agent.NewLoop(agent.Deps{
		Client:   providers.NewLocalHeuristicClient(),
		Registry: tools.NewRegistry(),
		Memory:   memory.NewStore(""),
		Sessions: sessions.NewManager(""),
		Adaptive: decision.NewAdaptiveThreshold("", 1.5),
	}, agent.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer("127.0.0.1", 0, loop, bus.NewMessageBus(), nil)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: "turn_start", SessionID: "s1"})
	select {
	case ev := <-ch:
		if ev.Type != "turn_start" || ev.SessionID != "s1" {
			t.Errorf("event = %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Event{Type: "tool_result"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("count = %d", hub.SubscriberCount())
	}
	cancel()
	cancel() // idempotent
	if hub.SubscriberCount() != 0 {
		t.Errorf("count = %d after cancel", hub.SubscriberCount())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMessageEndpoint(t *testing.T) {
	srv := testServer(t)
	payload := `{"session_id": "api:test", "content": "hello"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp messageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response == "" {
		t.Error("empty response")
	}
}

func TestMessageEndpoint_RejectsEmptyContent(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestTurnEventsReachTheHub(t *testing.T) {
	srv := testServer(t)
	ch, cancel := srv.Hub().Subscribe()
	defer cancel()

	payload := `{"session_id": "api:test", "content": "hello"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var types []string
	deadline := time.After(2 * time.Second)
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-deadline:
			t.Fatalf("events received so far: %v", types)
		}
	}
	if types[0] != "turn_start" {
		t.Errorf("first event = %q", types[0])
	}
	if types[len(types)-1] != "turn_end" {
		t.Errorf("last event = %q", types[len(types)-1])
	}
}

func TestPumpInbound_PublishesOutbound(t *testing.T) {
	srv := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.turnCtx, srv.stopTurn = context.WithCancel(context.Background())
	defer srv.stopTurn()
	go srv.pumpInbound(ctx)

	srv.bus.PublishInbound(bus.InboundMessage{
		Channel: "cli", SenderID: "me", ChatID: "local", Content: "hello", Timestamp: time.Now(),
	})

	outCtx, outCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer outCancel()
	out, ok := srv.bus.ConsumeOutbound(outCtx)
	if !ok {
		t.Fatal("no outbound message")
	}
	if out.Channel != "cli" || out.ChatID != "local" || out.Content == "" {
		t.Errorf("outbound = %+v", out)
	}
}
