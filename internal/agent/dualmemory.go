package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
)

// ConsolidationThreshold is the number of unconsolidated messages that
// triggers a background consolidation pass.
const ConsolidationThreshold = 20

// maxMemoryBullets bounds how many semantic notes one pass may add.
const maxMemoryBullets = 3

const consolidationBudget = 30 * time.Second

const (
	historyFile = "HISTORY.md"
	memoryFile  = "MEMORY.md"
)

// DualMemoryStore consolidates old session history into two durable
// Markdown artifacts: HISTORY.md (append-only chronological lines) and
// MEMORY.md (accumulated semantic notes). Consolidation runs in the
// background, one flight per session key, and the session's offset
// advances only when the artifacts were written.
type DualMemoryStore struct {
	dir      string
	client   providers.Client
	sessions *sessions.Manager
	logger   *slog.Logger

	group  singleflight.Group
	fileMu sync.Mutex
	wg     sync.WaitGroup
}

// NewDualMemoryStore creates the store rooted at dir.
func NewDualMemoryStore(dir string, client providers.Client, mgr *sessions.Manager, logger *slog.Logger) *DualMemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DualMemoryStore{dir: dir, client: client, sessions: mgr, logger: logger}
}

// HistoryPath returns the chronological artifact path.
func (d *DualMemoryStore) HistoryPath() string { return filepath.Join(d.dir, historyFile) }

// MemoryPath returns the semantic artifact path.
func (d *DualMemoryStore) MemoryPath() string { return filepath.Join(d.dir, memoryFile) }

// MemoryContext renders MEMORY.md for the system prompt, empty when the
// file is missing or blank.
func (d *DualMemoryStore) MemoryContext() string {
	d.fileMu.Lock()
	defer d.fileMu.Unlock()
	data, err := os.ReadFile(d.MemoryPath())
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return ""
	}
	return "## Long-term Memory\n\n" + strings.TrimSpace(string(data))
}

// NeedsConsolidation reports whether the session crossed the threshold.
func (d *DualMemoryStore) NeedsConsolidation(state *sessions.State) bool {
	return state.Unconsolidated() >= ConsolidationThreshold
}

// Schedule kicks off a background consolidation for the session key.
// Concurrent triggers for the same key coalesce into one flight.
func (d *DualMemoryStore) Schedule(ctx context.Context, key string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, err, _ := d.group.Do(key, func() (any, error) {
			runCtx, cancel := context.WithTimeout(ctx, consolidationBudget)
			defer cancel()
			return nil, d.Consolidate(runCtx, key)
		})
		if err != nil {
			d.logger.Warn("consolidation failed", "session", key, "error", err)
		}
	}()
}

// Wait blocks until all scheduled consolidations finish.
func (d *DualMemoryStore) Wait() { d.wg.Wait() }

// Consolidate summarizes the next window of unconsolidated messages and
// advances the session offset. Safe to call directly; Schedule is the
// background wrapper.
func (d *DualMemoryStore) Consolidate(ctx context.Context, key string) error {
	unlock := d.sessions.LockSession(key)
	defer unlock()

	state := d.sessions.GetOrCreate(key)
	offset, window := state.NextWindow(ConsolidationThreshold)
	if window == nil {
		return nil
	}

	entry, bullets, err := d.summarize(ctx, key, window)
	if err != nil {
		return err
	}
	if err := d.appendHistory(entry); err != nil {
		return err
	}
	if len(bullets) > 0 {
		if err := d.appendMemory(bullets); err != nil {
			return err
		}
	}

	state.AdvanceConsolidation(ConsolidationThreshold)
	if err := d.sessions.Save(); err != nil {
		d.logger.Warn("session save after consolidation failed", "session", key, "error", err)
	}
	d.logger.Info("session consolidated", "session", key, "offset", offset+ConsolidationThreshold)
	return nil
}

type consolidationReply struct {
	HistoryEntry  string   `json:"history_entry"`
	MemoryBullets []string `json:"memory_bullets"`
}

func (d *DualMemoryStore) summarize(ctx context.Context, key string, window []sessions.Message) (string, []string, error) {
	var sb strings.Builder
	for _, m := range window {
		ts := time.Unix(int64(m.Timestamp), 0).UTC().Format("2006-01-02 15:04")
		content := m.Content
		if len(content) > 220 {
			content = content[:220]
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", ts, strings.ToUpper(m.Role), content)
	}

	prompt := fmt.Sprintf(`Consolidate this conversation excerpt from session %q.

%s
Respond with JSON only:
{"history_entry": "<one line summarizing what happened>", "memory_bullets": ["<durable fact worth remembering>", ...]}

At most %d bullets. Use an empty list when nothing is worth keeping.`, key, sb.String(), maxMemoryBullets)

	raw, err := d.client.Chat(ctx, []providers.Message{
		{Role: "system", Content: "You maintain an assistant's long-term memory. Reply with the requested JSON and nothing else."},
		{Role: "user", Content: prompt},
	}, providers.ChatOptions{Temperature: 0.2, MaxTokens: 400})
	if err != nil {
		return "", nil, fmt.Errorf("consolidation chat: %w", err)
	}

	var reply consolidationReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		// A non-JSON answer still yields a usable history line.
		reply.HistoryEntry = firstLine(raw)
	}
	if strings.TrimSpace(reply.HistoryEntry) == "" {
		reply.HistoryEntry = fmt.Sprintf("%d messages exchanged", len(window))
	}
	if len(reply.MemoryBullets) > maxMemoryBullets {
		reply.MemoryBullets = reply.MemoryBullets[:maxMemoryBullets]
	}
	return strings.TrimSpace(reply.HistoryEntry), reply.MemoryBullets, nil
}

func (d *DualMemoryStore) appendHistory(entry string) error {
	d.fileMu.Lock()
	defer d.fileMu.Unlock()
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(d.HistoryPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	line := fmt.Sprintf("- [%s] %s\n", time.Now().UTC().Format("2006-01-02 15:04"), entry)
	_, err = f.WriteString(line)
	return err
}

func (d *DualMemoryStore) appendMemory(bullets []string) error {
	d.fileMu.Lock()
	defer d.fileMu.Unlock()
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return err
	}

	existing, err := os.ReadFile(d.MemoryPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var sb strings.Builder
	if len(existing) == 0 {
		sb.WriteString("# Long-term Memory\n\n")
	} else {
		sb.Write(existing)
		if !strings.HasSuffix(string(existing), "\n") {
			sb.WriteString("\n")
		}
	}
	for _, b := range bullets {
		b = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b), "-"))
		if b == "" {
			continue
		}
		sb.WriteString("- " + b + "\n")
	}

	tmp := d.MemoryPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, d.MemoryPath())
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if len(trimmed) > 200 {
				trimmed = trimmed[:200]
			}
			return trimmed
		}
	}
	return ""
}
