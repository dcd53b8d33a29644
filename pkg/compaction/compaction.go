// Package compaction implements the context-window manager: it finds a
// safe point in a branch's entry log to cut, asks the model to summarize
// everything before the cut, and returns a result the caller persists as a
// compaction entry. Nothing here touches the session log directly — the
// caller (pkg/agent) decides when to call and what to do with the result.
package compaction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/session"
	"github.com/mariozechner/coding-agent/session/pkg/tokens"
)

// FileOperations tracks which paths were touched by the tool calls being
// summarized, keyed by the tool's "path" input argument.
type FileOperations struct {
	Read    map[string]bool
	Written map[string]bool
	Edited  map[string]bool
}

func newFileOperations() FileOperations {
	return FileOperations{Read: map[string]bool{}, Written: map[string]bool{}, Edited: map[string]bool{}}
}

// Preparation is the result of locating a cut point, ready to be summarized
// by compact. A nil Preparation (with nil error) means there is nothing to
// do right now.
type Preparation struct {
	CutIndex         int
	FirstKeptEntryID string
	TokensBefore     int

	IsSplitTurn    bool
	TurnStartIndex int

	MessagesToSummarize []session.Entry
	TurnPrefixMessages  []session.Entry
	PreviousSummary     *session.CompactionEntry

	FileOps FileOperations
}

// Result is what the model produced: a summary ready to be stored as a
// CompactionEntry.
type Result struct {
	Summary          string
	FirstKeptEntryID string
	TokensBefore     int
	Details          session.ReadWriteFiles
}

// Prepare locates a safe cut point in branchEntries per the algorithm: walk
// backward from the end accumulating estimated tokens until
// settings.KeepRecentTokens is reached, then snap forward to the nearest
// valid cut point (a user message, an assistant message, or a
// branch_summary — never a tool result, which would orphan the assistant
// message that called it). Returns (nil, nil) when the tail is already a
// compaction entry, there's nothing to summarize, or no valid cut point
// exists.
func Prepare(branchEntries []session.Entry, settings session.CompactionSettings) (*Preparation, error) {
	if len(branchEntries) == 0 {
		return nil, nil
	}
	if branchEntries[len(branchEntries)-1].Type == session.TypeCompaction {
		return nil, nil
	}

	prevCompIndex := -1
	var previousSummary *session.CompactionEntry
	for i, e := range branchEntries {
		if e.Type == session.TypeCompaction {
			prevCompIndex = i
			previousSummary = e.Compaction
		}
	}

	tokensBefore := 0
	from := prevCompIndex
	if from < 0 {
		from = 0
	}
	for i := from; i < len(branchEntries); i++ {
		tokensBefore += estimateEntryTokens(branchEntries[i])
	}

	validCut := func(i int) bool {
		e := branchEntries[i]
		if e.Type == session.TypeBranchSummary {
			return true
		}
		if e.Type == session.TypeMessage && e.Message != nil &&
			(e.Message.Role == session.RoleUser || e.Message.Role == session.RoleAssistant) {
			return true
		}
		return false
	}

	cutIndex := -1
	acc := 0
	for i := len(branchEntries) - 1; i > prevCompIndex; i-- {
		acc += estimateEntryTokens(branchEntries[i])
		if acc >= settings.KeepRecentTokens {
			for j := i; j < len(branchEntries); j++ {
				if validCut(j) {
					cutIndex = j
					break
				}
			}
			break
		}
	}
	if cutIndex < 0 {
		return nil, nil
	}

	for cutIndex > prevCompIndex+1 {
		prev := branchEntries[cutIndex-1]
		if prev.Type == session.TypeMessage || prev.Type == session.TypeCompaction {
			break
		}
		cutIndex--
	}

	if cutIndex <= prevCompIndex+1 {
		return nil, nil
	}

	isSplitTurn := false
	turnStartIndex := cutIndex
	cutEntry := branchEntries[cutIndex]
	if !(cutEntry.Type == session.TypeMessage && cutEntry.Message != nil && cutEntry.Message.Role == session.RoleUser) {
		isSplitTurn = true
		turnStartIndex = -1
		for i := cutIndex - 1; i > prevCompIndex; i-- {
			e := branchEntries[i]
			if e.Type == session.TypeMessage && e.Message != nil && e.Message.Role == session.RoleUser {
				turnStartIndex = i
				break
			}
		}
		if turnStartIndex < 0 {
			isSplitTurn = false
			turnStartIndex = cutIndex
		}
	}

	var toSummarize, turnPrefix []session.Entry
	if isSplitTurn {
		toSummarize = append(toSummarize, branchEntries[prevCompIndex+1:turnStartIndex]...)
		turnPrefix = append(turnPrefix, branchEntries[turnStartIndex:cutIndex]...)
	} else {
		toSummarize = append(toSummarize, branchEntries[prevCompIndex+1:cutIndex]...)
	}

	fileOps := newFileOperations()
	if previousSummary != nil && previousSummary.Details != nil {
		for _, p := range previousSummary.Details.ReadFiles {
			fileOps.Read[p] = true
		}
		for _, p := range previousSummary.Details.ModifiedFiles {
			fileOps.Written[p] = true
		}
	}
	collectFileOps(toSummarize, &fileOps)
	collectFileOps(turnPrefix, &fileOps)

	return &Preparation{
		CutIndex:            cutIndex,
		FirstKeptEntryID:    branchEntries[cutIndex].ID,
		TokensBefore:        tokensBefore,
		IsSplitTurn:         isSplitTurn,
		TurnStartIndex:      turnStartIndex,
		MessagesToSummarize: toSummarize,
		TurnPrefixMessages:  turnPrefix,
		PreviousSummary:     previousSummary,
		FileOps:             fileOps,
	}, nil
}

func estimateEntryTokens(e session.Entry) int {
	switch e.Type {
	case session.TypeMessage:
		if e.Message != nil {
			return tokens.EstimateMessage(*e.Message)
		}
	case session.TypeBranchSummary:
		if e.BranchSummary != nil {
			return (len(e.BranchSummary.Summary) + 3) / 4
		}
	}
	return 0
}

func collectFileOps(entries []session.Entry, fileOps *FileOperations) {
	for _, e := range entries {
		if e.Type != session.TypeMessage || e.Message == nil {
			continue
		}
		for _, c := range e.Message.Content {
			if c.Type == session.ContentTypeToolUse && c.ToolUse != nil {
				path, _ := c.ToolUse.Input["path"].(string)
				if path == "" {
					continue
				}
				switch c.ToolUse.Name {
				case "write":
					fileOps.Written[path] = true
				case "edit":
					fileOps.Edited[path] = true
				case "read":
					fileOps.Read[path] = true
				}
			}
		}
	}
}

const (
	summaryTemplate = `Summarize the following conversation segment from a coding agent session. Produce a dense, structured summary using exactly this template:

## Goal
## Constraints & Preferences
## Progress
### Done
### In Progress
### Blocked
## Key Decisions
## Next Steps
## Critical Context

Be concrete: name files, functions, and commands. Omit sections with nothing to report rather than writing "None".`

	updateTemplate = `You are updating an existing summary of a coding agent session with a new conversation segment. The previous summary is wrapped in <previous-summary>. Merge it with the new segment below into one updated summary following exactly this template:

## Goal
## Constraints & Preferences
## Progress
### Done
### In Progress
### Blocked
## Key Decisions
## Next Steps
## Critical Context

Be concrete: name files, functions, and commands. Omit sections with nothing to report rather than writing "None".`

	turnPrefixTemplate = `Summarize the following partial conversation turn (a user request and the assistant's in-progress work on it) in a few sentences, focused on what the assistant was in the middle of doing.`
)

// Compact asks m to summarize prep.MessagesToSummarize (and, if split-turn,
// a short summary of prep.TurnPrefixMessages), then assembles the final
// summary text with file-operation blocks appended.
func Compact(ctx context.Context, prep *Preparation, m model.Model, modelName string, settings session.CompactionSettings) (*Result, error) {
	if prep == nil {
		return nil, fmt.Errorf("compact: nil preparation")
	}

	instructions := summaryTemplate
	var messages []session.MessageEntry
	if prep.PreviousSummary != nil && prep.PreviousSummary.Summary != "" {
		instructions = updateTemplate
		messages = append(messages, session.MessageEntry{
			Role: session.RoleUser,
			Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{
				Content: fmt.Sprintf("<previous-summary>%s</previous-summary>", prep.PreviousSummary.Summary),
			}}},
		})
	}
	messages = append(messages, session.MessageEntry{
		Role: session.RoleUser,
		Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{
			Content: serializeEntries(prep.MessagesToSummarize),
		}}},
	})

	reserve := settings.ReserveTokens
	if reserve <= 0 {
		reserve = session.DefaultCompactionSettings().ReserveTokens
	}

	resp, err := m.Generate(ctx, model.Request{
		Model:           modelName,
		Instructions:    instructions,
		Messages:        messages,
		MaxOutputTokens: (reserve * 8) / 10,
	})
	if err != nil {
		return nil, fmt.Errorf("compact: model summarization failed: %w", err)
	}
	summary := firstText(resp.Messages)
	if summary == "" {
		return nil, fmt.Errorf("compact: model returned empty summary")
	}

	if prep.IsSplitTurn && len(prep.TurnPrefixMessages) > 0 {
		prefixResp, err := m.Generate(ctx, model.Request{
			Model:        modelName,
			Instructions: turnPrefixTemplate,
			Messages: []session.MessageEntry{{
				Role: session.RoleUser,
				Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{
					Content: serializeEntries(prep.TurnPrefixMessages),
				}}},
			}},
			MaxOutputTokens: (reserve * 5) / 10,
		})
		if err != nil {
			return nil, fmt.Errorf("compact: turn-prefix summarization failed: %w", err)
		}
		prefixSummary := firstText(prefixResp.Messages)
		summary = summary + "\n\n---\n\n## Turn Context (split turn)\n\n" + prefixSummary
	}

	readOnly := diffSet(prep.FileOps.Read, prep.FileOps.Edited, prep.FileOps.Written)
	modified := unionSet(prep.FileOps.Edited, prep.FileOps.Written)
	summary += "\n\n" + fileBlocks(readOnly, modified)

	return &Result{
		Summary:          summary,
		FirstKeptEntryID: prep.FirstKeptEntryID,
		TokensBefore:     prep.TokensBefore,
		Details:          session.ReadWriteFiles{ReadFiles: readOnly, ModifiedFiles: modified},
	}, nil
}

func firstText(messages []session.MessageEntry) string {
	for _, msg := range messages {
		for _, c := range msg.Content {
			if c.Type == session.ContentTypeText && c.Text != nil {
				return c.Text.Content
			}
		}
	}
	return ""
}

func serializeEntries(entries []session.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Type != session.TypeMessage || e.Message == nil {
			continue
		}
		msg := e.Message
		switch msg.Role {
		case session.RoleUser:
			fmt.Fprintf(&b, "[User]: %s\n", textOf(msg))
		case session.RoleAssistant:
			if t := textOf(msg); t != "" {
				fmt.Fprintf(&b, "[Assistant]: %s\n", t)
			}
			if th := thinkingOf(msg); th != "" {
				fmt.Fprintf(&b, "[Assistant thinking]: %s\n", th)
			}
			if calls := toolCallsOf(msg); calls != "" {
				fmt.Fprintf(&b, "[Assistant tool calls]: %s\n", calls)
			}
		case session.RoleTool:
			for _, c := range msg.Content {
				if c.Type == session.ContentTypeToolResult && c.ToolResult != nil {
					fmt.Fprintf(&b, "[Tool result]: %s\n", c.ToolResult.Content)
				}
			}
		}
	}
	return b.String()
}

func textOf(msg *session.MessageEntry) string {
	var b strings.Builder
	for _, c := range msg.Content {
		if c.Type == session.ContentTypeText && c.Text != nil {
			b.WriteString(c.Text.Content)
		}
	}
	return b.String()
}

func thinkingOf(msg *session.MessageEntry) string {
	var b strings.Builder
	for _, c := range msg.Content {
		if c.Type == session.ContentTypeThinking && c.Thinking != nil {
			b.WriteString(c.Thinking.Content)
		}
	}
	return b.String()
}

func toolCallsOf(msg *session.MessageEntry) string {
	var parts []string
	for _, c := range msg.Content {
		if c.Type == session.ContentTypeToolUse && c.ToolUse != nil {
			var kv []string
			for k, v := range c.ToolUse.Input {
				kv = append(kv, fmt.Sprintf("%s=%v", k, v))
			}
			sort.Strings(kv)
			parts = append(parts, fmt.Sprintf("%s(%s)", c.ToolUse.Name, strings.Join(kv, ", ")))
		}
	}
	return strings.Join(parts, ", ")
}

func diffSet(base map[string]bool, subs ...map[string]bool) []string {
	var out []string
	for k := range base {
		excluded := false
		for _, s := range subs {
			if s[k] {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func unionSet(sets ...map[string]bool) []string {
	seen := map[string]bool{}
	for _, s := range sets {
		for k := range s {
			seen[k] = true
		}
	}
	var out []string
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func fileBlocks(readOnly, modified []string) string {
	var b strings.Builder
	b.WriteString("<read-files>\n")
	for _, f := range readOnly {
		fmt.Fprintf(&b, "%s\n", f)
	}
	b.WriteString("</read-files>\n<modified-files>\n")
	for _, f := range modified {
		fmt.Fprintf(&b, "%s\n", f)
	}
	b.WriteString("</modified-files>")
	return b.String()
}
