package sessions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestManager_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	m := NewManager(path)
	s := m.GetOrCreate("telegram:42")
	s.Append("user", "hello")
	s.Append("assistant", "hi there")
	s.ConsolidationOffset = 1
	s.Metadata["lang"] = "en"
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(path)
	got := m2.GetOrCreate("telegram:42")
	if len(got.Messages) != 2 || got.Messages[1].Content != "hi there" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.ConsolidationOffset != 1 {
		t.Errorf("offset = %d, want 1", got.ConsolidationOffset)
	}
	if got.Metadata["lang"] != "en" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestManager_LoadClampsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	raw := `{"sessions":[{"key":"a","messages":[{"role":"user","content":"x","timestamp":1}],"consolidation_offset":99}]}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if got := m.GetOrCreate("a").ConsolidationOffset; got != 1 {
		t.Errorf("offset = %d, want clamped to 1", got)
	}
}

func TestManager_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	os.WriteFile(path, []byte("{broken"), 0o600)
	m := NewManager(path)
	if keys := m.Keys(); len(keys) != 0 {
		t.Errorf("keys = %v, want empty", keys)
	}
}

func TestManager_PerSessionLock(t *testing.T) {
	m := NewManager("")

	unlock := m.LockSession("s1")
	acquired := make(chan struct{})
	go func() {
		u := m.LockSession("s1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired the lock while the first held it")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never released")
	}

	// A different session must not block.
	done := make(chan struct{})
	u1 := m.LockSession("a")
	go func() {
		u2 := m.LockSession("b")
		u2()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent sessions blocked each other")
	}
	u1()
}

func TestManager_ExportImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	m := NewManager(path)
	s := m.GetOrCreate("cli:local")
	s.Append("user", "ping")
	m.Save()

	data, err := m.Export("cli:local")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Export("nope"); err == nil {
		t.Error("export of unknown session should fail")
	}

	other := NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	imported, err := other.Import(data)
	if err != nil {
		t.Fatal(err)
	}
	if imported.Key != "cli:local" || len(imported.Messages) != 1 {
		t.Errorf("imported = %+v", imported)
	}
}

func TestState_History(t *testing.T) {
	s := NewState("k")
	for i := 0; i < 5; i++ {
		s.Append("user", string(rune('a'+i)))
	}
	if got := s.History(2); len(got) != 2 || got[1].Content != "e" {
		t.Errorf("History(2) = %+v", got)
	}
	if got := s.History(0); got != nil {
		t.Errorf("History(0) = %+v, want nil", got)
	}
	if got := s.History(50); len(got) != 5 {
		t.Errorf("History(50) = %d messages", len(got))
	}
}

// One session's turn appends while another session's turn persists
// everything. Save must read a consistent snapshot; run with -race.
func TestManager_SaveDuringOtherSessionAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	m := NewManager(path)
	m.GetOrCreate("cli:a")
	b := m.GetOrCreate("telegram:b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		unlock := m.LockSession("telegram:b")
		defer unlock()
		for i := 0; i < 200; i++ {
			b.Append("user", "ping")
		}
	}()
	go func() {
		defer wg.Done()
		unlock := m.LockSession("cli:a")
		defer unlock()
		for i := 0; i < 25; i++ {
			if err := m.Save(); err != nil {
				t.Errorf("save: %v", err)
			}
		}
	}()
	wg.Wait()

	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
	m2 := NewManager(path)
	if got := m2.GetOrCreate("telegram:b").Len(); got != 200 {
		t.Errorf("persisted messages = %d, want 200", got)
	}
}

func TestManager_ConcurrentGetOrCreate(t *testing.T) {
	m := NewManager("")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.GetOrCreate("shared")
		}()
	}
	wg.Wait()
	if keys := m.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v", keys)
	}
}
