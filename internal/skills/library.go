package skills

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Library rereads the skills directory on demand, reparsing only files
// whose mtime changed since the last load.
type Library struct {
	dir       string
	usagePath string
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedSkill // file path -> parsed snapshot
}

type cachedSkill struct {
	mtime time.Time
	skill *Skill
}

// NewLibrary creates a skill library rooted at dir. Usage telemetry is
// appended to usagePath (empty disables it).
func NewLibrary(dir, usagePath string) *Library {
	return &Library{
		dir:       dir,
		usagePath: usagePath,
		logger:    slog.Default(),
		cache:     make(map[string]cachedSkill),
	}
}

// List scans the directory and returns all skills sorted by name. Files
// are reparsed only when their mtime changed.
func (l *Library) List() []*Skill {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	var out []*Skill

	walk := func(path string, info fs.FileInfo) {
		seen[path] = true
		if entry, ok := l.cache[path]; ok && entry.mtime.Equal(info.ModTime()) {
			out = append(out, entry.skill)
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skill unreadable", "path", path, "error", err)
			return
		}
		if strings.TrimSpace(string(data)) == "" {
			return
		}
		fallback := filepath.Base(filepath.Dir(path))
		if filepath.Base(path) != "SKILL.md" {
			fallback = strings.TrimSuffix(filepath.Base(path), ".md")
		}
		skill, err := parseSkill(path, fallback, string(data))
		if err != nil {
			l.logger.Warn("skill rejected", "path", path, "error", err)
			return
		}
		l.cache[path] = cachedSkill{mtime: info.ModTime(), skill: skill}
		out = append(out, skill)
	}

	filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		isSkillFile := filepath.Base(path) == "SKILL.md" ||
			(filepath.Dir(path) == l.dir && strings.HasSuffix(path, ".md"))
		if !isSkillFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		walk(path, info)
		return nil
	})

	// Drop cache entries for deleted files.
	for path := range l.cache {
		if !seen[path] {
			delete(l.cache, path)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary renders the skill catalog for the system prompt.
func (l *Library) Summary() string {
	all := l.List()
	if len(all) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available skills:")
	for _, s := range all {
		b.WriteString("\n- " + s.Name + ": " + s.Description)
	}
	return b.String()
}

// Watch invalidates the mtime cache on filesystem events until ctx ends.
// List already handles changed mtimes; the watcher additionally catches
// editors that rewrite files without touching mtime granularity and
// removals between polls.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return err
	}
	filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != l.dir {
			watcher.Add(path)
		}
		return nil
	})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						watcher.Add(event.Name)
					}
				}
				l.mu.Lock()
				delete(l.cache, event.Name)
				l.mu.Unlock()
				l.logger.Debug("skill change detected", "path", event.Name, "op", event.Op.String())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("skill watcher error", "error", err)
			}
		}
	}()
	return nil
}
