package skills

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type usageRecord struct {
	TS        string `json:"ts"`
	Skill     string `json:"skill"`
	SessionID string `json:"session_id,omitempty"`
}

// RecordUse appends one telemetry line per activated skill.
func (l *Library) RecordUse(sessionID string, ts time.Time, names ...string) error {
	if l.usagePath == "" || len(names) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.usagePath), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(l.usagePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	stamp := ts.UTC().Format(time.RFC3339)
	for _, name := range names {
		line, err := json.Marshal(usageRecord{TS: stamp, Skill: name, SessionID: sessionID})
		if err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// UsageStats counts activations per skill from the telemetry log.
func (l *Library) UsageStats() map[string]int {
	counts := make(map[string]int)
	if l.usagePath == "" {
		return counts
	}
	f, err := os.Open(l.usagePath)
	if err != nil {
		return counts
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec usageRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Skill != "" {
			counts[rec.Skill]++
		}
	}
	return counts
}
