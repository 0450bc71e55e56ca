package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBeat_SkipsMissingOrEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")

	calls := 0
	r := NewRunner(path, time.Minute, func(context.Context, string) error {
		calls++
		return nil
	})

	r.beat(context.Background()) // no file
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r.beat(context.Background()) // blank file
	if calls != 0 {
		t.Errorf("handler called %d times, want 0", calls)
	}
}

func TestBeat_DeliversTrimmedMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")
	if err := os.WriteFile(path, []byte("\ncheck the calendar\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var got string
	r := NewRunner(path, 0, func(_ context.Context, message string) error {
		got = message
		return nil
	})
	if r.interval != DefaultInterval {
		t.Errorf("interval = %v, want default", r.interval)
	}

	r.beat(context.Background())
	if got != "check the calendar" {
		t.Errorf("message = %q", got)
	}

	// Edits take effect on the next beat without restart.
	if err := os.WriteFile(path, []byte("water plants"), 0o600); err != nil {
		t.Fatal(err)
	}
	r.beat(context.Background())
	if got != "water plants" {
		t.Errorf("message after edit = %q", got)
	}
}
