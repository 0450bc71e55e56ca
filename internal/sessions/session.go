// Package sessions holds per-conversation state: the message history, the
// consolidation offset and free-form metadata, persisted as one JSON file
// mapping session id to state.
package sessions

import (
	"sync"
	"time"
)

// Message is one entry in a session's history.
type Message struct {
	Role      string  `json:"role"` // "user" or "assistant"
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// State is the mutable record for one session. The loop owns it
// exclusively for the duration of a turn; the state mutex additionally
// orders mutations against snapshot reads, since Manager.Save may run
// from another session's turn while this one is mid-append.
type State struct {
	mu sync.Mutex

	Key string `json:"key"`
	// Messages is append-only during normal operation.
	Messages []Message `json:"messages"`
	// ConsolidationOffset marks how far dual-memory consolidation has
	// advanced into Messages. Monotonic, advanced only on success.
	ConsolidationOffset int               `json:"consolidation_offset"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// NewState creates an empty session.
func NewState(key string) *State {
	return &State{Key: key, Metadata: map[string]string{}}
}

// Append adds a message with the current time.
func (s *State) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

// Len returns the number of messages in the history.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// History returns a copy of the most recent max messages (zero max
// returns nothing).
func (s *State) History(max int) []Message {
	if max <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.Messages
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	return append([]Message(nil), msgs...)
}

// Unconsolidated returns how many messages await consolidation.
func (s *State) Unconsolidated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages) - s.ConsolidationOffset
}

// NextWindow returns the consolidation offset and a copy of the next n
// unconsolidated messages, or a nil window when fewer than n remain.
func (s *State) NextWindow(n int) (int, []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.Messages)-s.ConsolidationOffset < n {
		return s.ConsolidationOffset, nil
	}
	window := append([]Message(nil), s.Messages[s.ConsolidationOffset:s.ConsolidationOffset+n]...)
	return s.ConsolidationOffset, window
}

// AdvanceConsolidation moves the offset forward after a successful pass,
// clamped to the history length.
func (s *State) AdvanceConsolidation(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConsolidationOffset += n
	if s.ConsolidationOffset > len(s.Messages) {
		s.ConsolidationOffset = len(s.Messages)
	}
}

// Clear resets history and the consolidation offset, keeping metadata.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = nil
	s.ConsolidationOffset = 0
}

// snapshot deep-copies the state so it can be marshaled while other
// sessions' turns keep mutating it.
func (s *State) snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &State{
		Key:                 s.Key,
		Messages:            append([]Message(nil), s.Messages...),
		ConsolidationOffset: s.ConsolidationOffset,
	}
	if len(s.Metadata) > 0 {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// normalize clamps loaded state into its invariants.
func (s *State) normalize() {
	if s.Key == "" {
		s.Key = "default"
	}
	if s.ConsolidationOffset < 0 {
		s.ConsolidationOffset = 0
	}
	if s.ConsolidationOffset > len(s.Messages) {
		s.ConsolidationOffset = len(s.Messages)
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
}
