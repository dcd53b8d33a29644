package main

import (
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/session"
)

func TestResolvePromptFromArgs(t *testing.T) {
	content, err := resolvePrompt([]string{"fix", "the", "bug"})
	if err != nil {
		t.Fatalf("resolvePrompt: %v", err)
	}
	if len(content) != 1 || content[0].Text == nil || content[0].Text.Content != "fix the bug" {
		t.Errorf("unexpected content: %+v", content)
	}
}

func TestResolvePromptNoArgsNoStdinErrors(t *testing.T) {
	// os.Stdin in a test process is typically not a pipe, so this should
	// hit the "no prompt given" error path rather than blocking on stdin.
	if _, err := resolvePrompt(nil); err == nil {
		t.Skip("stdin was a pipe in this test environment; cannot exercise the empty-prompt path")
	}
}

func TestAssistantTextConcatenatesTextContent(t *testing.T) {
	m := session.MessageEntry{
		Role: session.RoleAssistant,
		Content: []session.Content{
			{Type: session.ContentTypeText, Text: &session.TextContent{Content: "Hello, "}},
			{Type: session.ContentTypeToolUse, ToolUse: &session.ToolUseContent{Name: "bash"}},
			{Type: session.ContentTypeText, Text: &session.TextContent{Content: "world."}},
		},
	}
	if got := assistantText(m); got != "Hello, world." {
		t.Errorf("expected concatenated text, got %q", got)
	}
}

func TestValidThinkingLevels(t *testing.T) {
	for _, level := range []string{"off", "minimal", "low", "medium", "high"} {
		if !validThinkingLevels[level] {
			t.Errorf("expected %q to be a valid thinking level", level)
		}
	}
	if validThinkingLevels["ultra"] {
		t.Error("expected unknown thinking level to be invalid")
	}
}
