// Package builtin implements the canonical read/write/edit/bash/grep/find/ls
// tool set (spec §4.2) on top of pkg/runtime.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

type lsTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewLS returns the `ls` tool: directory listing with file/dir markers.
func NewLS(rt runtime.Runtime, cwd string) tool.Tool {
	return &lsTool{rt: rt, cwd: cwd}
}

func (t *lsTool) Name() string        { return "ls" }
func (t *lsTool) Description() string { return "List directory contents with file/dir markers." }

func (t *lsTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory to list."},
		},
		"required": []string{"path"},
	}
}

func (t *lsTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	path, _ := input["path"].(string)
	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	slog.Info("ls", "path", resolved)
	entries, err := t.rt.Readdir(ctx, resolved)
	if err != nil {
		return tool.Result{}, fmt.Errorf("ls %s: %w", resolved, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	text := ""
	for _, e := range entries {
		marker := "f"
		if e.IsDir {
			marker = "d"
		}
		text += fmt.Sprintf("%s %s\n", marker, e.Name)
	}
	return tool.Result{Text: text}, nil
}
