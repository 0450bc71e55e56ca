package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxFileRead = 64 * 1024

// FileTool reads, writes, appends and lists files under the workspace.
type FileTool struct {
	restrict bool
}

// NewFileTool builds the file tool. When restrict is true every path must
// resolve inside the workspace root.
func NewFileTool(restrict bool) *FileTool {
	return &FileTool{restrict: restrict}
}

// Descriptor returns the file tool's registry entry.
func (t *FileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "file",
		Description: "Read, write, append or list files in the workspace",
		Schema: ObjectSchema(map[string]*Schema{
			"action": {
				Type:        "string",
				Description: "Operation to perform",
				Enum:        []any{"read", "write", "append", "list"},
			},
			"path":    StringProp("File or directory path"),
			"content": StringProp("Content for write and append"),
		}, "action", "path"),
		Cacheable: false,
	}
}

func (t *FileTool) Run(ctx context.Context, args map[string]any, tc Context) *Result {
	action, _ := args["action"].(string)
	rawPath, _ := args["path"].(string)
	if rawPath == "" {
		return Fail("path is required")
	}

	path, err := t.resolve(rawPath, tc.WorkspaceRoot)
	if err != nil {
		return Fail(err.Error())
	}

	switch action {
	case "read":
		return t.read(path)
	case "write":
		content, _ := args["content"].(string)
		return t.write(path, content, false)
	case "append":
		content, _ := args["content"].(string)
		return t.write(path, content, true)
	case "list":
		return t.list(path)
	default:
		return Fail(fmt.Sprintf("unknown action: %s", action))
	}
}

// resolve canonicalizes a path and rejects any resolution escaping the
// workspace root when restriction is on. Symlinks are followed before the
// containment check.
func (t *FileTool) resolve(raw, workspace string) (string, error) {
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	path = filepath.Clean(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	} else if parent, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(parent, filepath.Base(path))
	}

	if t.restrict && workspace != "" {
		root, err := filepath.Abs(workspace)
		if err != nil {
			return "", err
		}
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		if path != root && !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return "", fmt.Errorf("path escapes workspace: %s", raw)
		}
	}
	return path, nil
}

func (t *FileTool) read(path string) *Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(fmt.Sprintf("read: %v", err))
	}
	return Ok(truncate(string(data), maxFileRead))
}

func (t *FileTool) write(path, content string, appendMode bool) *Result {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail(fmt.Sprintf("write: %v", err))
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return Fail(fmt.Sprintf("write: %v", err))
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return Fail(fmt.Sprintf("write: %v", err))
	}
	verb := "wrote"
	if appendMode {
		verb = "appended"
	}
	return OkData(fmt.Sprintf("%s %d bytes to %s", verb, n, path), map[string]any{"path": path, "bytes": n})
}

func (t *FileTool) list(path string) *Result {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Fail(fmt.Sprintf("list: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return Ok("(empty directory)")
	}
	return Ok(strings.Join(names, "\n"))
}
