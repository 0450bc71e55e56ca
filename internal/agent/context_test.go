package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
)

func TestSystemPrompt_StablePrefixFirst(t *testing.T) {
	b := NewContextBuilder(nil, nil)
	prompt := b.SystemPrompt([]string{"prefers short answers"}, nil)

	if !strings.HasPrefix(prompt, BasePrompt) {
		t.Errorf("prompt does not start with the stable prefix: %q", prompt)
	}
	if !strings.Contains(prompt, "- prefers short answers") {
		t.Errorf("memory bullet missing: %q", prompt)
	}
}

func TestSystemPrompt_NoMemories(t *testing.T) {
	b := NewContextBuilder(nil, nil)
	prompt := b.SystemPrompt(nil, nil)
	if !strings.Contains(prompt, "- (none)") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestMessages_Ordering(t *testing.T) {
	b := NewContextBuilder(nil, nil)
	history := []sessions.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	rt := Runtime{Now: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), Channel: "cli", ChatID: "42"}
	msgs := b.Messages("SYSTEM", history, rt, "current question")

	if len(msgs) != 5 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "SYSTEM" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Content != "earlier question" || msgs[2].Content != "earlier answer" {
		t.Errorf("history out of order: %+v", msgs[1:3])
	}
	runtime := msgs[3]
	if runtime.Role != "user" || !strings.HasPrefix(runtime.Content, runtimeTag) {
		t.Errorf("runtime block = %+v", runtime)
	}
	if !strings.Contains(runtime.Content, "Channel: cli") || !strings.Contains(runtime.Content, "Chat ID: 42") {
		t.Errorf("runtime content = %q", runtime.Content)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "current question" {
		t.Errorf("last = %+v", last)
	}
}

func TestRoutingText_SkipsEmpty(t *testing.T) {
	got := RoutingText([]providers.Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "   "},
		{Role: "user", Content: "b"},
	})
	if got != "a\n\nb" {
		t.Errorf("routing = %q", got)
	}
}
