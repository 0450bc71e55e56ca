// Package gateway exposes the runtime over HTTP: a health probe, a
// WebSocket feed of turn lifecycle events, and a synchronous message
// endpoint. It also pumps the message bus into the agent loop.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/picoagent/internal/agent"
	"github.com/nextlevelbuilder/picoagent/internal/bus"
)

const (
	// DefaultGrace bounds how long shutdown waits for in-flight turns.
	DefaultGrace = 30 * time.Second

	httpShutdownTimeout = 5 * time.Second
	apiTurnTimeout      = 2 * time.Minute
)

// Server is the gateway runtime.
type Server struct {
	host   string
	port   int
	loop   *agent.Loop
	bus    *bus.MessageBus
	hub    *Hub
	logger *slog.Logger
	grace  time.Duration

	wg       sync.WaitGroup
	turnCtx  context.Context
	stopTurn context.CancelFunc
}

// NewServer wires the gateway and attaches its event feed to the loop's
// hook registry.
func NewServer(host string, port int, loop *agent.Loop, msgBus *bus.MessageBus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		host:   host,
		port:   port,
		loop:   loop,
		bus:    msgBus,
		hub:    NewHub(),
		logger: logger,
		grace:  DefaultGrace,
	}
	s.attachHooks()
	return s
}

// Hub exposes the event hub, mainly for tests and embedding.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) attachHooks() {
	hooks := s.loop.Hooks()
	hooks.Register(agent.EventTurnStart, "gateway-feed", func(_ context.Context, hc agent.HookContext) error {
		s.hub.Publish(eventFrom("turn_start", hc))
		return nil
	})
	hooks.Register(agent.EventToolResult, "gateway-feed", func(_ context.Context, hc agent.HookContext) error {
		s.hub.Publish(eventFrom("tool_result", hc))
		return nil
	})
	hooks.Register(agent.EventTurnEnd, "gateway-feed", func(_ context.Context, hc agent.HookContext) error {
		s.hub.Publish(eventFrom("turn_end", hc))
		return nil
	})
}

// Run serves HTTP and pumps inbound messages until ctx is cancelled,
// then drains in-flight turns up to the grace period.
func (s *Server) Run(ctx context.Context) error {
	s.turnCtx, s.stopTurn = context.WithCancel(context.Background())
	defer s.stopTurn()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serveHTTP(gctx) })
	g.Go(func() error { s.pumpInbound(gctx); return nil })
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.grace):
		s.logger.Warn("shutdown grace period elapsed with turns in flight")
	}
	return err
}

// pumpInbound runs agent turns for bus messages. Per-session ordering is
// enforced inside the loop; distinct sessions interleave.
func (s *Server) pumpInbound(ctx context.Context) {
	for {
		msg, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		s.wg.Add(1)
		go func(m bus.InboundMessage) {
			defer s.wg.Done()
			reply, err := s.loop.Turn(s.turnCtx, agent.Request{
				SessionKey: m.SessionKey(),
				Channel:    m.Channel,
				ChatID:     m.ChatID,
				Content:    m.Content,
			})
			if err != nil {
				s.logger.Error("turn failed", "session", m.SessionKey(), "error", err)
				return
			}
			s.bus.PublishOutbound(bus.OutboundMessage{Channel: m.Channel, ChatID: m.ChatID, Content: reply})
		}(msg)
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:    net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port)),
		Handler: s.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("gateway listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the HTTP mux, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/message", s.handleMessage)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	events, cancel := s.hub.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type messageResponse struct {
	Response string `json:"response"`
}

// handleMessage runs one synchronous turn for API callers.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "api:default"
	}

	ctx, cancel := context.WithTimeout(r.Context(), apiTurnTimeout)
	defer cancel()
	reply, err := s.loop.Turn(ctx, agent.Request{
		SessionKey: req.SessionID,
		Channel:    "api",
		ChatID:     req.SessionID,
		Content:    req.Content,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messageResponse{Response: reply})
}
