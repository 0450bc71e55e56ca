package skills

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSkill(t *testing.T, dir, name, content string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(skillDir, "SKILL.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestList_ParsesFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy", `---
name: deploy
description: Ship a release to production
tags: [release, kubernetes]
requires: [lint]
pipeline: [lint, deploy]
tool: shell
---
# Deploy

Run the deploy script.`)
	writeSkill(t, dir, "lint", "Just lint things.\n")

	l := NewLibrary(dir, "")
	all := l.List()
	if len(all) != 2 {
		t.Fatalf("got %d skills", len(all))
	}
	deploy := all[0]
	if deploy.Name != "deploy" || deploy.Tool != "shell" {
		t.Errorf("deploy = %+v", deploy)
	}
	if len(deploy.Tags) != 2 || deploy.Requires[0] != "lint" {
		t.Errorf("front-matter lists: %+v", deploy)
	}
	if deploy.Content != "# Deploy\n\nRun the deploy script." {
		t.Errorf("content = %q", deploy.Content)
	}
	// No front-matter: description falls back to the first prose line.
	if all[1].Name != "lint" || all[1].Description != "Just lint things." {
		t.Errorf("lint = %+v", all[1])
	}
}

func TestList_MtimeCache(t *testing.T) {
	dir := t.TempDir()
	path := writeSkill(t, dir, "alpha", "---\ndescription: first\n---\nbody")

	l := NewLibrary(dir, "")
	if got := l.List()[0].Description; got != "first" {
		t.Fatalf("description = %q", got)
	}

	// Rewrite with a bumped mtime: must be reparsed.
	if err := os.WriteFile(path, []byte("---\ndescription: second\n---\nbody"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if got := l.List()[0].Description; got != "second" {
		t.Errorf("after rewrite description = %q, want second", got)
	}

	// Deleted file disappears from the catalog.
	os.RemoveAll(filepath.Dir(path))
	if got := l.List(); len(got) != 0 {
		t.Errorf("after delete: %d skills", len(got))
	}
}

func TestSelect_ExplicitBeatsTFIDF(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "weather", "---\ndescription: Check forecast and temperature\ntags: [weather, forecast]\n---\nb")
	writeSkill(t, dir, "crypto", "---\ndescription: Track coin prices\ntags: [bitcoin, price]\n---\nb")

	l := NewLibrary(dir, "")
	sels, err := l.SelectForMessage("use $crypto to check the forecast")
	if err != nil {
		t.Fatal(err)
	}
	if len(sels) == 0 || sels[0].Skill.Name != "crypto" || sels[0].Reason != ReasonExplicit {
		t.Fatalf("selections = %+v", sels)
	}
}

func TestSelect_TFIDF(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "weather", "---\ndescription: forecast temperature rain\n---\nb")
	writeSkill(t, dir, "notes", "---\ndescription: organize meeting notes\n---\nb")

	l := NewLibrary(dir, "")
	sels, err := l.SelectForMessage("will it rain tomorrow, what is the forecast")
	if err != nil {
		t.Fatal(err)
	}
	if len(sels) != 1 || sels[0].Skill.Name != "weather" || sels[0].Reason != ReasonMatch {
		t.Fatalf("selections = %+v", sels)
	}
	if none, _ := l.SelectForMessage("completely unrelated zzz"); len(none) != 0 {
		t.Errorf("unrelated message selected %+v", none)
	}
}

func TestSelect_RequiresAndPipeline(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy", "---\ndescription: ship release\nrequires: [build]\npipeline: [build, verify]\n---\nb")
	writeSkill(t, dir, "build", "---\ndescription: compile artifacts\nrequires: [toolchain]\n---\nb")
	writeSkill(t, dir, "toolchain", "---\ndescription: compiler setup\n---\nb")
	writeSkill(t, dir, "verify", "---\ndescription: smoke checks\n---\nb")

	l := NewLibrary(dir, "")
	sels, err := l.SelectForMessage("deploy the service")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, sel := range sels {
		got[sel.Skill.Name] = sel.Reason
	}
	if got["deploy"] != ReasonExplicit {
		t.Errorf("primary: %v", got)
	}
	if got["build"] != ReasonRequires || got["toolchain"] != ReasonRequires {
		t.Errorf("transitive requires missing: %v", got)
	}
	if got["verify"] != ReasonPipeline {
		t.Errorf("pipeline step missing: %v", got)
	}
}

func TestSelect_CycleFallsBackToPrimary(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "a", "---\ndescription: alpha thing\nrequires: [b]\n---\nb")
	writeSkill(t, dir, "b", "---\ndescription: beta thing\nrequires: [a]\n---\nb")

	l := NewLibrary(dir, "")
	sels, err := l.SelectForMessage("run a now")
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(sels) != 1 || sels[0].Skill.Name != "a" {
		t.Errorf("fallback selections = %+v", sels)
	}
	if len(cyc.Chain) == 0 {
		t.Error("cycle error should carry the chain")
	}
}

func TestTelemetry(t *testing.T) {
	dir := t.TempDir()
	usage := filepath.Join(dir, "skill_usage.jsonl")
	l := NewLibrary(dir, usage)

	now := time.Unix(1_700_000_000, 0)
	if err := l.RecordUse("cli:local", now, "deploy", "build"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordUse("cli:local", now, "deploy"); err != nil {
		t.Fatal(err)
	}

	stats := l.UsageStats()
	if stats["deploy"] != 2 || stats["build"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}
