package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

func textEntry(id string, role session.MessageRole, text string, tokensTarget int) session.Entry {
	// Pad the text so tokens.EstimateMessage lands close to tokensTarget
	// (roughly 4 bytes per token, minus the message/content overhead).
	body := text
	for len(body) < tokensTarget*4 {
		body += " x"
	}
	return session.Entry{
		Type: session.TypeMessage,
		ID:   id,
		Message: &session.MessageEntry{
			Role:    role,
			Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{Content: body}}},
		},
	}
}

func TestPrepare_CutPoint(t *testing.T) {
	var entries []session.Entry
	for i := 0; i < 30; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		entries = append(entries, textEntry(idFor(i), role, "msg", 1000))
	}

	settings := session.CompactionSettings{Enabled: true, ReserveTokens: 16384, KeepRecentTokens: 10000}
	prep, err := Prepare(entries, settings)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep == nil {
		t.Fatal("expected a preparation")
	}
	if prep.CutIndex != 20 {
		t.Fatalf("expected cutIndex 20, got %d", prep.CutIndex)
	}
	if prep.FirstKeptEntryID != entries[20].ID {
		t.Fatalf("expected firstKeptEntryId %s, got %s", entries[20].ID, prep.FirstKeptEntryID)
	}
}

func TestPrepare_SplitTurn(t *testing.T) {
	var entries []session.Entry
	for i := 0; i < 18; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		entries = append(entries, textEntry(idFor(i), role, "msg", 1000))
	}
	// entry 18: user turn start
	entries = append(entries, textEntry(idFor(18), session.RoleUser, "start turn", 1000))
	// entry 19: assistant calls a tool
	entries = append(entries, session.Entry{
		Type: session.TypeMessage,
		ID:   idFor(19),
		Message: &session.MessageEntry{
			Role: session.RoleAssistant,
			Content: []session.Content{{
				Type:    session.ContentTypeToolUse,
				ToolUse: &session.ToolUseContent{ID: "call-1", Name: "read", Input: map[string]any{"path": "a.go"}},
			}},
		},
	})
	// entry 20: tool result (not a valid cut point)
	entries = append(entries, session.Entry{
		Type: session.TypeMessage,
		ID:   idFor(20),
		Message: &session.MessageEntry{
			Role: session.RoleTool,
			Content: []session.Content{{
				Type:       session.ContentTypeToolResult,
				ToolResult: &session.ToolResultContent{ToolUseID: "call-1", Content: "file contents padded out quite a bit to push the token estimate up toward the keep-recent threshold so the cut lands here"},
			}},
		},
	})
	for i := 21; i < 30; i++ {
		role := session.RoleAssistant
		if i%2 == 0 {
			role = session.RoleUser
		}
		entries = append(entries, textEntry(idFor(i), role, "tail", 1000))
	}

	settings := session.CompactionSettings{Enabled: true, ReserveTokens: 16384, KeepRecentTokens: 9080}
	prep, err := Prepare(entries, settings)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep == nil {
		t.Fatal("expected a preparation")
	}
	if !prep.IsSplitTurn {
		t.Fatalf("expected split-turn detection, got cutIndex=%d turnStart=%d", prep.CutIndex, prep.TurnStartIndex)
	}
	if entries[prep.TurnStartIndex].Message.Role != session.RoleUser {
		t.Fatalf("turnStartIndex must point at a user message")
	}
	for _, e := range prep.TurnPrefixMessages {
		if e.Message != nil && e.Message.Role == session.RoleUser && e.ID != entries[prep.TurnStartIndex].ID {
			t.Fatalf("turn prefix contains a second user message: %s", e.ID)
		}
	}
}

func idFor(i int) string {
	return "entry-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

type stubModel struct {
	text string
}

func (s *stubModel) Name() string                                     { return "stub" }
func (s *stubModel) List(ctx context.Context) ([]string, error)       { return nil, nil }
func (s *stubModel) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	return nil, nil
}
func (s *stubModel) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	return model.Response{
		Messages: []session.MessageEntry{{
			Role:    session.RoleAssistant,
			Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{Content: s.text}}},
		}},
		StopReason: session.StopReasonStop,
	}, nil
}

func TestCompact_AppendsFileBlocks(t *testing.T) {
	prep := &Preparation{
		CutIndex:         5,
		FirstKeptEntryID: "e5",
		TokensBefore:     100,
		MessagesToSummarize: []session.Entry{
			textEntry("e1", session.RoleUser, "please read a.go", 10),
		},
		FileOps: FileOperations{
			Read:    map[string]bool{"a.go": true, "b.go": true},
			Written: map[string]bool{"b.go": true},
			Edited:  map[string]bool{},
		},
	}

	m := &stubModel{text: "## Goal\nfinish the thing\n"}
	result, err := Compact(context.Background(), prep, m, "stub-model", session.DefaultCompactionSettings())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.FirstKeptEntryID != "e5" {
		t.Fatalf("expected firstKeptEntryId e5, got %s", result.FirstKeptEntryID)
	}
	if len(result.Details.ReadFiles) != 1 || result.Details.ReadFiles[0] != "a.go" {
		t.Fatalf("expected readOnly=[a.go], got %v", result.Details.ReadFiles)
	}
	if len(result.Details.ModifiedFiles) != 1 || result.Details.ModifiedFiles[0] != "b.go" {
		t.Fatalf("expected modified=[b.go], got %v", result.Details.ModifiedFiles)
	}
	if !strings.Contains(result.Summary, "<read-files>") {
		t.Fatalf("expected summary to contain file blocks, got %q", result.Summary)
	}
}
