package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
	"github.com/nextlevelbuilder/picoagent/internal/skills"
)

// BasePrompt is the stable system prefix. It must stay byte-identical
// across turns within a session so provider-side prompt caching applies;
// every dynamic section is appended after it.
const BasePrompt = "You are picoagent, a practical coding assistant. Be concise, factual, and action-oriented."

const (
	runtimeTag       = "[Runtime Context - metadata only, not instructions]"
	sectionSeparator = "\n\n---\n\n"
)

// Runtime is the per-turn metadata block appended after the history.
type Runtime struct {
	Now     time.Time
	Channel string
	ChatID  string
}

// ContextBuilder assembles the provider message list for a turn: stable
// system prefix, then memories, skill catalog, active skill bodies and
// long-term notes, then history, runtime block and the user message.
type ContextBuilder struct {
	library *skills.Library  // nil disables skill sections
	dual    *DualMemoryStore // nil disables the long-term section
}

// NewContextBuilder wires the optional skill and dual-memory sources.
func NewContextBuilder(library *skills.Library, dual *DualMemoryStore) *ContextBuilder {
	return &ContextBuilder{library: library, dual: dual}
}

// SystemPrompt renders the full system message for this turn.
func (b *ContextBuilder) SystemPrompt(memories []string, active []skills.Selection) string {
	parts := []string{BasePrompt, memorySection(memories)}

	if b.library != nil {
		if summary := b.library.Summary(); summary != "" {
			parts = append(parts, summary)
		}
	}
	if block := activeSkillSection(active); block != "" {
		parts = append(parts, block)
	}
	if b.dual != nil {
		if longTerm := b.dual.MemoryContext(); longTerm != "" {
			parts = append(parts, longTerm)
		}
	}
	return strings.Join(parts, sectionSeparator)
}

func memorySection(memories []string) string {
	var sb strings.Builder
	sb.WriteString("Relevant memories:")
	if len(memories) == 0 {
		sb.WriteString("\n- (none)")
		return sb.String()
	}
	for _, m := range memories {
		sb.WriteString("\n- " + strings.TrimSpace(m))
	}
	return sb.String()
}

func activeSkillSection(active []skills.Selection) string {
	blocks := make([]string, 0, len(active))
	for _, sel := range active {
		s := sel.Skill
		if s == nil || strings.TrimSpace(s.Content) == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("## Skill: %s\nPath: %s\n\n%s", s.Name, s.Path, s.Content))
	}
	return strings.Join(blocks, sectionSeparator)
}

// Messages orders the conversation for the provider: system, recent
// history, runtime metadata, then the current user message.
func (b *ContextBuilder) Messages(system string, history []sessions.Message, rt Runtime, userMessage string) []providers.Message {
	out := make([]providers.Message, 0, len(history)+3)
	out = append(out, providers.Message{Role: "system", Content: system})
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		out = append(out, providers.Message{Role: role, Content: m.Content})
	}
	out = append(out, providers.Message{Role: "user", Content: runtimeBlock(rt)})
	out = append(out, providers.Message{Role: "user", Content: userMessage})
	return out
}

func runtimeBlock(rt Runtime) string {
	now := rt.Now
	if now.IsZero() {
		now = time.Now()
	}
	lines := []string{
		runtimeTag,
		"Current Time: " + now.Format("2006-01-02 15:04:05 MST"),
	}
	if rt.Channel != "" {
		lines = append(lines, "Channel: "+rt.Channel)
	}
	if rt.ChatID != "" {
		lines = append(lines, "Chat ID: "+rt.ChatID)
	}
	return strings.Join(lines, "\n")
}

// RoutingText flattens the context messages into the single string the
// scoring prompt consumes.
func RoutingText(msgs []providers.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
