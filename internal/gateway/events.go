package gateway

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/agent"
)

// Event is one lifecycle notification pushed to WebSocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	TurnIndex int       `json:"turn_index"`
	ToolName  string    `json:"tool_name,omitempty"`
	Success   *bool     `json:"success,omitempty"`
	Response  string    `json:"response,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 32

// Hub fans lifecycle events out to subscribers. Slow subscribers drop
// events rather than blocking a turn.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a receive channel and its cancel function.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber, dropping on full buffers.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func eventFrom(kind string, hc agent.HookContext) Event {
	ev := Event{
		Type:      kind,
		SessionID: hc.SessionID,
		Channel:   hc.Channel,
		TurnIndex: hc.TurnIndex,
		ToolName:  hc.ToolName,
		Response:  hc.Response,
	}
	if hc.ToolResult != nil {
		success := hc.ToolResult.Success
		ev.Success = &success
	}
	return ev
}
