package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/picoagent/internal/sessions"
)

func seededSessions(t *testing.T, key string, count int) *sessions.Manager {
	t.Helper()
	mgr := sessions.NewManager("")
	state := mgr.GetOrCreate(key)
	for i := 0; i < count; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		state.Append(role, fmt.Sprintf("message %d", i))
	}
	return mgr
}

func TestConsolidate_AdvancesOffsetAndWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	client := &scriptClient{
		chatText: `{"history_entry": "Planned the trip to Tunis", "memory_bullets": ["User lives in Tunis", "Prefers morning flights", "third note", "dropped note"]}`,
	}
	mgr := seededSessions(t, "k", 22)
	store := NewDualMemoryStore(dir, client, mgr, nil)

	if !store.NeedsConsolidation(mgr.GetOrCreate("k")) {
		t.Fatal("22 unconsolidated messages should trigger")
	}
	if err := store.Consolidate(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}

	if got := mgr.GetOrCreate("k").ConsolidationOffset; got != ConsolidationThreshold {
		t.Errorf("offset = %d, want %d", got, ConsolidationThreshold)
	}
	history, err := os.ReadFile(store.HistoryPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(history), "Planned the trip to Tunis") {
		t.Errorf("history = %q", history)
	}
	mem, err := os.ReadFile(store.MemoryPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(mem), "\n- ") != 3 || !strings.HasPrefix(string(mem), "# Long-term Memory") {
		t.Errorf("memory = %q", mem)
	}
	if strings.Contains(string(mem), "dropped note") {
		t.Error("bullets past the cap were written")
	}
}

func TestConsolidate_FailureKeepsOffset(t *testing.T) {
	client := &scriptClient{chatErr: errors.New("provider down")}
	mgr := seededSessions(t, "k", 25)
	store := NewDualMemoryStore(t.TempDir(), client, mgr, nil)

	if err := store.Consolidate(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
	if got := mgr.GetOrCreate("k").ConsolidationOffset; got != 0 {
		t.Errorf("offset advanced to %d despite failure", got)
	}
	if _, err := os.Stat(store.HistoryPath()); !os.IsNotExist(err) {
		t.Error("history artifact written despite failure")
	}
}

func TestConsolidate_BelowThresholdIsNoop(t *testing.T) {
	client := &scriptClient{chatText: `{"history_entry": "x"}`}
	mgr := seededSessions(t, "k", 5)
	store := NewDualMemoryStore(t.TempDir(), client, mgr, nil)

	if err := store.Consolidate(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if client.chatCalls != 0 {
		t.Errorf("chat called %d times below threshold", client.chatCalls)
	}
}

func TestConsolidate_NonJSONReplyStillLogsHistory(t *testing.T) {
	client := &scriptClient{chatText: "The user set up their workspace.\nMore detail here."}
	mgr := seededSessions(t, "k", 20)
	store := NewDualMemoryStore(t.TempDir(), client, mgr, nil)

	if err := store.Consolidate(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	history, err := os.ReadFile(store.HistoryPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(history), "The user set up their workspace.") {
		t.Errorf("history = %q", history)
	}
	if got := mgr.GetOrCreate("k").ConsolidationOffset; got != ConsolidationThreshold {
		t.Errorf("offset = %d", got)
	}
}

func TestSchedule_CoalescesAndWaits(t *testing.T) {
	client := &scriptClient{chatText: `{"history_entry": "batch"}`}
	mgr := seededSessions(t, "k", 21)
	store := NewDualMemoryStore(t.TempDir(), client, mgr, nil)

	store.Schedule(context.Background(), "k")
	store.Schedule(context.Background(), "k")
	store.Wait()

	// One window, so a second coalesced or sequential run is a no-op.
	if got := mgr.GetOrCreate("k").ConsolidationOffset; got != ConsolidationThreshold {
		t.Errorf("offset = %d", got)
	}
}

func TestMemoryContext(t *testing.T) {
	store := NewDualMemoryStore(t.TempDir(), &scriptClient{}, sessions.NewManager(""), nil)
	if got := store.MemoryContext(); got != "" {
		t.Errorf("missing file context = %q", got)
	}
	if err := os.WriteFile(store.MemoryPath(), []byte("# Long-term Memory\n\n- note\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := store.MemoryContext()
	if !strings.HasPrefix(got, "## Long-term Memory") || !strings.Contains(got, "- note") {
		t.Errorf("context = %q", got)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q", tt.in, got)
		}
	}
}
