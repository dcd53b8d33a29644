package builtin

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

type editTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewEdit returns the `edit` tool: finds exactly one occurrence of oldText
// (exact match first, then a fuzzy match tolerant of whitespace/smart-quote/
// dash/line-ending differences) and replaces it, returning a unified diff.
func NewEdit(rt runtime.Runtime, cwd string) tool.Tool {
	return &editTool{rt: rt, cwd: cwd}
}

func (t *editTool) Name() string { return "edit" }
func (t *editTool) Description() string {
	return "Replace exactly one occurrence of oldText with newText in a file."
}

func (t *editTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"oldText": map[string]any{"type": "string"},
			"newText": map[string]any{"type": "string"},
		},
		"required": []string{"path", "oldText", "newText"},
	}
}

func (t *editTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	path, _ := input["path"].(string)
	oldText, _ := input["oldText"].(string)
	newText, _ := input["newText"].(string)

	resolved, err := runtime.ResolveWorkspacePath(path, t.cwd, t.rt.RootDir())
	if err != nil {
		return tool.Result{}, err
	}

	raw, err := t.rt.ReadFile(ctx, resolved)
	if err != nil {
		return tool.Result{}, fmt.Errorf("edit %s: %w", resolved, err)
	}

	bom := []byte{}
	body := raw
	if bytes.HasPrefix(raw, utf8BOM) {
		bom = utf8BOM
		body = raw[len(utf8BOM):]
	}
	crlf := bytes.Contains(body, []byte("\r\n"))

	original := string(body)
	start, end, found, err := locateOccurrence(original, oldText)
	if err != nil {
		return tool.Result{}, fmt.Errorf("edit %s: %w", resolved, err)
	}
	if !found {
		return tool.Result{}, fmt.Errorf("edit %s: oldText not found", resolved)
	}

	replacement := newText
	if crlf && !strings.Contains(replacement, "\r\n") {
		replacement = strings.ReplaceAll(replacement, "\n", "\r\n")
	}

	updated := original[:start] + replacement + original[end:]

	out := append(append([]byte{}, bom...), []byte(updated)...)
	if err := t.rt.WriteFile(ctx, resolved, out); err != nil {
		return tool.Result{}, fmt.Errorf("edit %s: %w", resolved, err)
	}

	diff := unifiedDiff(resolved, original, updated)
	return tool.Result{Text: diff}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// locateOccurrence finds the single span of oldText in content: exact match
// first, then a fuzzy match tolerant of the normalizations described by
// normalizeForFuzzyMatch. Returns an error naming the match count when there
// is more than one match; no match returns found=false with a nil error.
func locateOccurrence(content, oldText string) (start, end int, found bool, err error) {
	count := strings.Count(content, oldText)
	if count == 1 {
		idx := strings.Index(content, oldText)
		return idx, idx + len(oldText), true, nil
	}
	if count > 1 {
		return 0, 0, false, fmt.Errorf("oldText matches %d times, expected exactly 1", count)
	}

	normContent := normalizeForFuzzyMatch(content)
	normOld := normalizeForFuzzyMatch(oldText)
	fuzzyCount := strings.Count(normContent, normOld)
	if fuzzyCount == 0 {
		return 0, 0, false, nil
	}
	if fuzzyCount > 1 {
		return 0, 0, false, fmt.Errorf("oldText fuzzy-matches %d times, expected exactly 1", fuzzyCount)
	}

	// Re-locate the match in the original content by scanning windows of
	// the same rune-normalized length; fuzzy matches are rare enough that
	// a linear scan is acceptable.
	normIdx := strings.Index(normContent, normOld)
	start, end, ok := mapNormalizedSpan(content, normIdx, len(normOld))
	if !ok {
		return 0, 0, false, fmt.Errorf("internal error locating fuzzy match")
	}
	return start, end, true, nil
}

// normalizeForFuzzyMatch trims trailing whitespace per line, normalizes
// smart quotes, unicode dashes, non-breaking spaces, and CRLF to LF.
func normalizeForFuzzyMatch(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"–", "-", "—", "-",
		" ", " ",
	)
	s = replacer.Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// mapNormalizedSpan maps a span found in the normalized text back to byte
// offsets in the original text by normalizing progressively longer
// prefixes until the normalized length matches.
func mapNormalizedSpan(original string, normStart, normLen int) (start, end int, ok bool) {
	normSoFar := 0
	origStart := -1
	for i := 0; i <= len(original); i++ {
		n := normalizeForFuzzyMatch(original[:i])
		if len(n) == normStart && origStart == -1 {
			origStart = i
		}
		if origStart != -1 && len(n)-len(normalizeForFuzzyMatch(original[:origStart])) >= normLen {
			normSoFar = i
			break
		}
	}
	if origStart == -1 {
		return 0, 0, false
	}
	if normSoFar == 0 {
		normSoFar = len(original)
	}
	return origStart, normSoFar, true
}

func unifiedDiff(path, before, after string) string {
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", path, path)
	for _, l := range beforeLines {
		if !containsLine(afterLines, l) {
			fmt.Fprintf(&b, "-%s\n", l)
		}
	}
	for _, l := range afterLines {
		if !containsLine(beforeLines, l) {
			fmt.Fprintf(&b, "+%s\n", l)
		}
	}
	return b.String()
}

func containsLine(lines []string, target string) bool {
	for _, l := range lines {
		if l == target {
			return true
		}
	}
	return false
}
