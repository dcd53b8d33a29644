package builtin

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

const grepMaxMatches = 500

type grepTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewGrep returns the `grep` tool: regex content search over files under
// path, optionally restricted by a glob.
func NewGrep(rt runtime.Runtime, cwd string) tool.Tool {
	return &grepTool{rt: rt, cwd: cwd}
}

func (t *grepTool) Name() string        { return "grep" }
func (t *grepTool) Description() string { return "Search file contents for a regular expression." }

func (t *grepTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Regular expression to search for."},
			"path":    map[string]any{"type": "string", "description": "Directory to search, default cwd."},
			"glob":    map[string]any{"type": "string", "description": "Glob restricting which files are searched."},
		},
		"required": []string{"pattern"},
	}
}

func (t *grepTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	pattern, _ := input["pattern"].(string)
	path, _ := input["path"].(string)
	if path == "" {
		path = "."
	}
	glob, _ := input["glob"].(string)

	re, err := regexp.Compile(pattern)
	if err != nil {
		return tool.Result{}, fmt.Errorf("grep: bad pattern: %w", err)
	}

	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	slog.Info("grep", "pattern", pattern, "path", resolved, "glob", glob)

	var out bytes.Buffer
	matches := 0
	err = walk(ctx, t.rt, resolved, func(p string, isDir bool) error {
		if isDir || matches >= grepMaxMatches {
			return nil
		}
		if glob != "" {
			if ok, _ := filepath.Match(glob, filepath.Base(p)); !ok {
				return nil
			}
		}
		data, err := t.rt.ReadFile(ctx, p)
		if err != nil {
			return nil
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			if matches >= grepMaxMatches {
				break
			}
			if re.MatchString(scanner.Text()) {
				fmt.Fprintf(&out, "%s:%d:%s\n", p, line, scanner.Text())
				matches++
			}
		}
		return nil
	})
	if err != nil {
		return tool.Result{}, fmt.Errorf("grep: %w", err)
	}

	if matches == grepMaxMatches {
		fmt.Fprintf(&out, "[truncated at %d matches]\n", grepMaxMatches)
	}

	return tool.Result{Text: out.String()}, nil
}

// walk recurses a directory tree via the runtime's Readdir, calling fn for
// every entry (including directories, so callers can skip them).
func walk(ctx context.Context, rt runtime.Runtime, root string, fn func(path string, isDir bool) error) error {
	entries, err := rt.Readdir(ctx, root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(root, e.Name)
		if err := fn(p, e.IsDir); err != nil {
			return err
		}
		if e.IsDir {
			if err := walk(ctx, rt, p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
