package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

const findMaxResults = 1000

type findTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewFind returns the `find` tool: enumerates paths under path whose base
// name matches a glob pattern.
func NewFind(rt runtime.Runtime, cwd string) tool.Tool {
	return &findTool{rt: rt, cwd: cwd}
}

func (t *findTool) Name() string        { return "find" }
func (t *findTool) Description() string { return "Find files matching a glob pattern under a directory." }

func (t *findTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob to match against file names."},
			"path":    map[string]any{"type": "string", "description": "Directory to search, default cwd."},
		},
		"required": []string{"pattern"},
	}
}

func (t *findTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	pattern, _ := input["pattern"].(string)
	path, _ := input["path"].(string)
	if path == "" {
		path = "."
	}

	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	slog.Info("find", "pattern", pattern, "path", resolved)

	var results []string
	err = walk(ctx, t.rt, resolved, func(p string, isDir bool) error {
		if isDir || len(results) >= findMaxResults {
			return nil
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(p)); ok {
			results = append(results, p)
		}
		return nil
	})
	if err != nil {
		return tool.Result{}, fmt.Errorf("find: %w", err)
	}

	sort.Strings(results)

	text := ""
	for _, r := range results {
		text += r + "\n"
	}
	if len(results) == findMaxResults {
		text += fmt.Sprintf("[truncated at %d results]\n", findMaxResults)
	}

	return tool.Result{Text: text}, nil
}
