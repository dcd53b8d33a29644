package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

const (
	maxReadLines = 2000
	maxReadBytes = 128 * 1024
)

var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type readTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewRead returns the `read` tool: text or image reads with offset/limit
// and a truncation footer advising the next offset.
func NewRead(rt runtime.Runtime, cwd string) tool.Tool {
	return &readTool{rt: rt, cwd: cwd}
}

func (t *readTool) Name() string { return "read" }
func (t *readTool) Description() string {
	return "Read a text or image file, optionally starting at a given line offset."
}

func (t *readTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "File to read."},
			"offset": map[string]any{"type": "integer", "description": "1-indexed line to start from."},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return."},
		},
		"required": []string{"path"},
	}
}

func (t *readTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	path, _ := input["path"].(string)
	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	slog.Info("read", "path", resolved)

	if mediaType, ok := imageMediaTypes[strings.ToLower(filepath.Ext(resolved))]; ok {
		data, err := t.rt.ReadFile(ctx, resolved)
		if err != nil {
			return tool.Result{}, fmt.Errorf("read %s: %w", resolved, err)
		}
		return tool.Result{
			Image: &tool.ImageResult{MediaType: mediaType, Data: base64.StdEncoding.EncodeToString(data)},
		}, nil
	}

	data, err := t.rt.ReadFile(ctx, resolved)
	if err != nil {
		return tool.Result{}, fmt.Errorf("read %s: %w", resolved, err)
	}

	lines := strings.Split(string(data), "\n")

	offset := 1
	if o, ok := input["offset"].(float64); ok && int(o) > 0 {
		offset = int(o)
	}
	limit := maxReadLines
	if l, ok := input["limit"].(float64); ok && int(l) > 0 {
		limit = int(l)
	}
	if limit > maxReadLines {
		limit = maxReadLines
	}

	start := offset - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := start + limit
	if end > len(lines) {
		end = len(lines)
	}

	selected := lines[start:end]
	text := strings.Join(selected, "\n")
	truncatedByLines := end < len(lines)
	nextOffset := start + len(selected) + 1

	if len(text) > maxReadBytes {
		text = text[:maxReadBytes]
		truncatedByLines = true
		// Resume at the line the byte cut landed in.
		nextOffset = start + strings.Count(text, "\n") + 1
	}

	if truncatedByLines {
		text += fmt.Sprintf("\n\n[truncated; continue with offset=%d]", nextOffset)
	}

	return tool.Result{Text: text}, nil
}
