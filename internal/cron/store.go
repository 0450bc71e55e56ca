// Package cron schedules recurring background prompts. Jobs fire either
// on a fixed interval or on a cron expression, and each firing is handed
// to a handler that runs it as a normal agent turn.
package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Job is one scheduled task. Exactly one of EverySeconds or Schedule
// should be set.
type Job struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	EverySeconds int64     `json:"every_seconds,omitempty"`
	Schedule     string    `json:"schedule,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	ChatID       string    `json:"chat_id,omitempty"`
	Enabled      bool      `json:"enabled"`
	LastRun      time.Time `json:"last_run,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Store persists jobs to a single JSON file.
type Store struct {
	mu   sync.Mutex
	path string
	jobs []Job
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the job file. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.jobs = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cron file: %w", err)
	}
	var payload struct {
		Jobs []Job `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse cron file %s: %w", s.path, err)
	}
	s.jobs = payload.Jobs
	return nil
}

// Save writes the job file atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	payload := struct {
		Jobs []Job `json:"jobs"`
	}{Jobs: s.jobs}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create cron dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cron file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Add appends a job and persists.
func (s *Store) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return s.saveLocked()
}

// Remove deletes a job by id and persists. Returns false when the id
// is unknown.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, job := range s.jobs {
		if job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// Jobs returns a snapshot of all jobs.
func (s *Store) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// markRan records a firing time for a job and persists.
func (s *Store) markRan(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			s.jobs[i].LastRun = at
			return s.saveLocked()
		}
	}
	return nil
}
