package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Destructive command patterns denied by default. Config may append to
// this list but never remove from it.
var defaultDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\s+/`),
	regexp.MustCompile(`\brm\s+.*--no-preserve-root`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+if=.*of=/dev/`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
	regexp.MustCompile(`\b(curl|wget)\b.*\|\s*(sudo\s+)?(ba|z)?sh\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\beval\b`),
	regexp.MustCompile(`\bchmod\s+777\b`),
	regexp.MustCompile(`>\s*/etc/`),
	regexp.MustCompile(`\btee\s+(-a\s+)?/etc/`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
}

var commandVerbs = map[string]bool{
	"ls": true, "pwd": true, "cd": true, "cat": true, "grep": true,
	"find": true, "rg": true, "sed": true, "awk": true, "head": true,
	"tail": true, "wc": true, "git": true, "python": true, "python3": true,
	"pip": true, "pip3": true, "npm": true, "pnpm": true, "yarn": true,
	"node": true, "make": true, "go": true, "docker": true, "kubectl": true,
	"curl": true, "wget": true, "echo": true, "mkdir": true, "touch": true,
	"cp": true, "mv": true, "rm": true, "chmod": true, "chown": true,
	"ps": true, "kill": true, "whoami": true, "uname": true, "date": true,
}

var commandWordRe = regexp.MustCompile(`^[a-z0-9._/\-]+$`)

// LooksLikeShellCommand is a plausibility gate keeping prose planned into
// the command slot away from the shell. It accepts explicit run prefixes,
// shell metacharacters, path-like or well-known first tokens.
func LooksLikeShellCommand(text string) bool {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return false
	}
	lowered := strings.ToLower(raw)
	for _, prefix := range []string{"run ", "execute ", "shell ", "terminal ", "cmd ", "command ", "bash ", "zsh ", "sh "} {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	for _, marker := range []string{"&&", "||", "|", ";", "$(", "`", ">", "<", "\n"} {
		if strings.Contains(raw, marker) {
			return true
		}
	}
	first := strings.Fields(lowered)[0]
	if strings.HasPrefix(first, "./") || strings.HasPrefix(first, "/") || strings.HasPrefix(first, "~/") || strings.HasSuffix(first, ".sh") {
		return true
	}
	if commandVerbs[first] {
		return true
	}
	return commandWordRe.MatchString(first) && len(strings.Fields(raw)) > 1
}

const maxShellOutput = 16 * 1024

// ShellTool runs a command under `sh -c` inside the workspace.
type ShellTool struct {
	deny []*regexp.Regexp
}

// NewShellTool builds the shell tool with the default deny list plus any
// extra patterns from config. Invalid extras are skipped.
func NewShellTool(extraDeny []string) *ShellTool {
	t := &ShellTool{deny: defaultDenyPatterns}
	for _, p := range extraDeny {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		t.deny = append(t.deny, re)
	}
	return t
}

// Descriptor returns the shell tool's registry entry.
func (t *ShellTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "shell",
		Description: "Run a shell command in the workspace and return its output",
		Schema: ObjectSchema(map[string]*Schema{
			"command": StringProp("Command to execute"),
		}, "command"),
		Cacheable:      false,
		TimeoutSeconds: 30,
	}
}

func (t *ShellTool) Run(ctx context.Context, args map[string]any, tc Context) *Result {
	command, _ := args["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return Fail("command is required")
	}
	if !LooksLikeShellCommand(command) {
		return Fail("not a plausible shell command")
	}
	for _, re := range t.deny {
		if re.MatchString(command) {
			return Fail(fmt.Sprintf("command blocked by policy: %s", re.String()))
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if tc.WorkspaceRoot != "" {
		cmd.Dir = tc.WorkspaceRoot
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := truncate(stdout.String(), maxShellOutput)
	if stderr.Len() > 0 {
		output = strings.TrimRight(output, "\n") + "\n" + truncate(stderr.String(), maxShellOutput)
	}
	output = strings.TrimSpace(output)

	if ctx.Err() == context.DeadlineExceeded {
		return Fail("timeout")
	}
	if err != nil {
		if output == "" {
			output = err.Error()
		}
		return &Result{Output: output, Error: fmt.Sprintf("exit:%v", err), Success: false}
	}
	if output == "" {
		output = "(no output)"
	}
	return OkData(output, map[string]any{"command": command})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
