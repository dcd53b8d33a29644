package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
)

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	thinkingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// renderer prints an agent.Event stream to an io.Writer as it arrives.
// --mode json emits one JSON object per event (NDJSON); the default text
// mode prints assistant text as it streams and, with --verbose, also tool
// calls and thinking deltas, lipgloss-colorized the way the teacher's TUI
// colorizes chat roles.
type renderer struct {
	w         io.Writer
	mode      string
	verbose   bool
	md        *glamour.TermRenderer
	sawAnyErr bool
}

func newRenderer(w io.Writer, mode string, verbose bool) *renderer {
	r := &renderer{w: w, mode: mode, verbose: verbose}
	if verbose {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

func (r *renderer) handle(ev agent.Event) {
	if r.mode == "json" {
		b, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(r.w, `{"type":"marshal_error"}`+"\n")
			return
		}
		r.w.Write(b)
		fmt.Fprintln(r.w)
		return
	}

	switch ev.Type {
	case agent.EventTextDelta:
		fmt.Fprint(r.w, assistantStyle.Render(ev.Delta))
	case agent.EventThinkingDelta:
		if r.verbose {
			fmt.Fprint(r.w, thinkingStyle.Render(ev.Delta))
		}
	case agent.EventToolCallStart:
		if r.verbose {
			fmt.Fprintln(r.w, toolStyle.Render(fmt.Sprintf("\n[tool] %s %v", ev.ToolName, ev.ToolArgs)))
		}
	case agent.EventToolExecutionEnd:
		if r.verbose {
			status := "ok"
			if ev.IsError {
				status = "error"
			}
			fmt.Fprintln(r.w, toolStyle.Render(fmt.Sprintf("[tool:%s] %s -> %s", status, ev.ToolName, truncate(ev.ToolResult, 200))))
		}
	case agent.EventMessageEnd:
		fmt.Fprintln(r.w)
	case agent.EventAutoCompactStart:
		if r.verbose {
			fmt.Fprintln(r.w, toolStyle.Render("[compacting session...]"))
		}
	case agent.EventAgentEnd:
		if ev.ErrorMessage != "" {
			r.sawAnyErr = true
			fmt.Fprintln(r.w, errorStyle.Render("error: "+ev.ErrorMessage))
		}
	}
}

// renderFinal prints the final assistant message through glamour, used in
// --verbose mode after the stream completes so markdown (code fences,
// lists) renders properly instead of as raw text deltas.
func (r *renderer) renderFinal(text string) {
	if r.mode == "json" || r.md == nil || text == "" {
		return
	}
	out, err := r.md.Render(text)
	if err != nil {
		return
	}
	fmt.Fprint(r.w, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
