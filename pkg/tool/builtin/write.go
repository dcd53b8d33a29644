package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

type writeTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewWrite returns the `write` tool: creates parent directories and writes
// UTF-8 content, refusing to escape the sandbox root.
func NewWrite(rt runtime.Runtime, cwd string) tool.Tool {
	return &writeTool{rt: rt, cwd: cwd}
}

func (t *writeTool) Name() string        { return "write" }
func (t *writeTool) Description() string { return "Write content to a file, creating parent directories as needed." }

func (t *writeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "File to write."},
			"content": map[string]any{"type": "string", "description": "Content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *writeTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	path, _ := input["path"].(string)
	content, _ := input["content"].(string)

	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	slog.Info("write", "path", resolved, "size", len(content))

	if err := t.rt.Mkdir(ctx, filepath.Dir(resolved)); err != nil {
		return tool.Result{}, fmt.Errorf("write %s: %w", resolved, err)
	}
	if err := t.rt.WriteFile(ctx, resolved, []byte(content)); err != nil {
		return tool.Result{}, fmt.Errorf("write %s: %w", resolved, err)
	}

	return tool.Result{Text: fmt.Sprintf("wrote %d bytes to %s", len(content), resolved)}, nil
}
