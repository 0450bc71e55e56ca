package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/bus"
)

// Manager owns registered channels: lifecycle and outbound routing.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus
	cancel   context.CancelFunc
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{channels: make(map[string]Channel), bus: msgBus}
}

// Register installs a channel. Duplicate names fail.
func (m *Manager) Register(c Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channels[c.Name()]; exists {
		return fmt.Errorf("channel already registered: %s", c.Name())
	}
	m.channels[c.Name()] = c
	return nil
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[name]
	return c, ok
}

// Names lists registered channels sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StartAll starts every registered channel and the outbound dispatch
// loop. A channel failing to start is logged, not fatal.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatcher first so no new sends race the shutdown,
// then stops each channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		channel, found := m.Get(msg.Channel)
		if !found {
			slog.Warn("outbound message for unknown channel", "channel", msg.Channel)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := channel.Send(sendCtx, msg); err != nil {
			slog.Error("send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
		cancel()
	}
}
