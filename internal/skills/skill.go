// Package skills loads Markdown skill files with typed front-matter,
// selects skills for a message by explicit mention or TF-IDF match, and
// records usage telemetry.
package skills

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is an immutable snapshot of one skill file.
type Skill struct {
	Name        string
	Description string
	Tags        []string
	Requires    []string
	Pipeline    []string
	Tool        string // declared tool for the scheduler short-circuit
	Path        string
	Content     string // body after front-matter
}

// Prompt returns the skill body for context assembly.
func (s *Skill) Prompt() string { return s.Content }

// CycleError reports a circular requires chain.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("skill dependency cycle: %s", strings.Join(e.Chain, " -> "))
}

type frontMatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Requires    []string `yaml:"requires"`
	Pipeline    []string `yaml:"pipeline"`
	Tool        string   `yaml:"tool"`
}

// parseSkill splits optional front-matter from the body. fallbackName is
// used when the header declares no name (the skill's directory name).
func parseSkill(path, fallbackName, raw string) (*Skill, error) {
	content := strings.TrimSpace(raw)
	skill := &Skill{Name: fallbackName, Path: path, Content: content}

	rest, header, ok := splitFrontMatter(content)
	if ok {
		var fm frontMatter
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
			return nil, fmt.Errorf("parse front-matter of %s: %w", path, err)
		}
		if fm.Name != "" {
			skill.Name = fm.Name
		}
		skill.Description = fm.Description
		skill.Tags = fm.Tags
		skill.Requires = fm.Requires
		skill.Pipeline = fm.Pipeline
		skill.Tool = fm.Tool
		skill.Content = strings.TrimSpace(rest)
	}
	if skill.Description == "" {
		skill.Description = firstProseLine(skill.Content)
	}
	return skill, nil
}

func splitFrontMatter(content string) (body, header string, ok bool) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return content, "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n"), strings.Join(lines[1:i], "\n"), true
		}
	}
	return content, "", false
}

func firstProseLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if len(stripped) > 180 {
			stripped = stripped[:180]
		}
		return stripped
	}
	return "Skill instructions"
}
