package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
)

func TestRendererTextModePrintsTextDeltas(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "text", false)
	r.handle(agent.Event{Type: agent.EventTextDelta, Delta: "hi"})
	if !strings.Contains(buf.String(), "hi") {
		t.Errorf("expected delta text in output, got %q", buf.String())
	}
}

func TestRendererTextModeHidesToolCallsUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "text", false)
	r.handle(agent.Event{Type: agent.EventToolCallStart, ToolName: "bash"})
	if strings.Contains(buf.String(), "bash") {
		t.Errorf("expected tool call hidden in non-verbose mode, got %q", buf.String())
	}
}

func TestRendererVerboseShowsToolCalls(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "text", true)
	r.handle(agent.Event{Type: agent.EventToolCallStart, ToolName: "bash"})
	if !strings.Contains(buf.String(), "bash") {
		t.Errorf("expected tool call visible in verbose mode, got %q", buf.String())
	}
}

func TestRendererJSONModeEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "json", false)
	r.handle(agent.Event{Type: agent.EventTextDelta, Delta: "hi"})
	r.handle(agent.Event{Type: agent.EventMessageEnd})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d: %q", len(lines), buf.String())
	}
	var decoded agent.Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Delta != "hi" {
		t.Errorf("expected decoded delta %q, got %q", "hi", decoded.Delta)
	}
}

func TestRendererAgentEndWithErrorPrintsMessage(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "text", false)
	r.handle(agent.Event{Type: agent.EventAgentEnd, ErrorMessage: "boom"})
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected error message in output, got %q", buf.String())
	}
	if !r.sawAnyErr {
		t.Error("expected sawAnyErr to be set")
	}
}
