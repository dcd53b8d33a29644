package tokens_test

import (
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/session"
	"github.com/mariozechner/coding-agent/session/pkg/tokens"
)

func textMsg(role session.MessageRole, s string) session.MessageEntry {
	return session.MessageEntry{
		Role:    role,
		Content: []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{Content: s}}},
	}
}

func TestEstimateMessage_Deterministic(t *testing.T) {
	m := textMsg(session.RoleUser, "hello world")
	a := tokens.EstimateMessage(m)
	b := tokens.EstimateMessage(m)
	if a != b {
		t.Errorf("expected deterministic estimate, got %d then %d", a, b)
	}
	if a <= 0 {
		t.Errorf("expected positive estimate, got %d", a)
	}
}

func TestEstimateContext_Monotonic(t *testing.T) {
	base := []session.MessageEntry{textMsg(session.RoleUser, "hi")}
	extended := append(append([]session.MessageEntry{}, base...), textMsg(session.RoleAssistant, "more text here"))

	if tokens.EstimateContext(extended) < tokens.EstimateContext(base) {
		t.Errorf("token estimate must be monotonic under appended messages")
	}
}

func TestEstimateMessage_MultibyteUTF8(t *testing.T) {
	ascii := textMsg(session.RoleUser, "aaaa")
	multibyte := textMsg(session.RoleUser, "日本語") // 3 runes, 9 bytes

	if tokens.EstimateMessage(multibyte) <= tokens.EstimateMessage(ascii) {
		t.Errorf("multibyte text should cost more tokens by byte length, not rune count")
	}
}

func TestEstimateMessage_ToolCallOverhead(t *testing.T) {
	plain := textMsg(session.RoleAssistant, "")
	withTool := session.MessageEntry{
		Role: session.RoleAssistant,
		Content: []session.Content{{
			Type:    session.ContentTypeToolUse,
			ToolUse: &session.ToolUseContent{ID: "1", Name: "bash", Input: map[string]any{"command": "ls"}},
		}},
	}
	if tokens.EstimateMessage(withTool) <= tokens.EstimateMessage(plain) {
		t.Errorf("tool call should add structural overhead")
	}
}
