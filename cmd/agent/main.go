// Command agent is a one-shot, scriptable coding-agent CLI: a single
// Agent driven from flags instead of the teacher's bubbletea TUI, which
// is dropped here (interactive REPL/TUI is explicitly out of scope).
// Flags are grounded on goclaw's cobra root command and nexus-edge's
// YAML config file loading; model/runtime/tool/session wiring is
// grounded on the teacher's cmd/cli/main.go setup sequence.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/model/gemini"
	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/session"
	"github.com/mariozechner/coding-agent/session/pkg/session/jsonl"
	"github.com/mariozechner/coding-agent/session/pkg/systemprompt"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

var validThinkingLevels = map[string]bool{
	"off": true, "minimal": true, "low": true, "medium": true, "high": true,
}

// flags holds every --flag from spec.md's CLI surface, bound via cobra.
type flags struct {
	provider           string
	model              string
	apiKey             string
	systemPrompt       string
	appendSystemPrompt string
	print              bool
	cont               bool
	noSession          bool
	session            string
	sessionDir         string
	tools              string
	thinking           string
	skills             []string
	noSkills           bool
	maxSteps           int
	mode               string
	verbose            bool
	resume             bool
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:   "agent [prompt]",
		Short: "Run a single coding-agent turn from the command line",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, args)
		},
	}

	flagsSet := root.Flags()
	flagsSet.StringVar(&f.provider, "provider", "gemini", "model provider")
	flagsSet.StringVar(&f.model, "model", "", "model name (default: provider's first available model)")
	flagsSet.StringVar(&f.apiKey, "api-key", "", "API key (default: $GEMINI_API_KEY)")
	flagsSet.StringVar(&f.systemPrompt, "system-prompt", "", "replace the generated system prompt entirely")
	flagsSet.StringVar(&f.appendSystemPrompt, "append-system-prompt", "", "append text to the generated system prompt")
	flagsSet.BoolVarP(&f.print, "print", "p", false, "print the final response and exit (default behavior)")
	flagsSet.BoolVarP(&f.cont, "continue", "c", false, "continue the most recently modified session")
	flagsSet.BoolVar(&f.noSession, "no-session", false, "do not persist a session log")
	flagsSet.StringVar(&f.session, "session", "", "load a specific session by ID")
	flagsSet.StringVar(&f.sessionDir, "session-dir", "./.agent/sessions", "directory holding session logs")
	flagsSet.StringVar(&f.tools, "tools", "coding", "tool set: coding, readonly, or all")
	flagsSet.StringVar(&f.thinking, "thinking", "off", "thinking level: off, minimal, low, medium, high")
	flagsSet.StringArrayVar(&f.skills, "skill", nil, "path to a SKILL.md file (repeatable)")
	flagsSet.BoolVar(&f.noSkills, "no-skills", false, "disable skill loading even if --skill is set")
	flagsSet.IntVar(&f.maxSteps, "max-steps", 0, "cap the number of model calls in this run (0 = unlimited)")
	flagsSet.StringVar(&f.mode, "mode", "text", "output mode: text or json")
	flagsSet.BoolVar(&f.verbose, "verbose", false, "print tool calls and thinking deltas, render markdown")
	flagsSet.BoolVar(&f.resume, "resume", false, "alias for --continue")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags, args []string) error {
	setupLogging(f.verbose)

	defaults, err := loadFileDefaults()
	if err != nil {
		slog.Warn("failed to load config defaults", "error", err)
	}
	applyDefaults(f, defaults)

	if !validThinkingLevels[f.thinking] {
		return fmt.Errorf("invalid --thinking %q (want off, minimal, low, medium, or high)", f.thinking)
	}
	if f.mode != "text" && f.mode != "json" {
		return fmt.Errorf("invalid --mode %q (want text or json)", f.mode)
	}

	apiKey := f.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set GEMINI_API_KEY")
	}

	m, modelName, err := resolveModel(ctx, f, apiKey)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	rt := runtime.NewLocal(cwd)

	tools, err := buildRegistry(rt, cwd, f.tools)
	if err != nil {
		return err
	}

	skills, err := loadSkills(f.skills, f.noSkills)
	if err != nil {
		return err
	}

	instructions := f.systemPrompt
	if instructions == "" {
		instructions = systemprompt.Build(systemprompt.Options{
			AppendSystemPrompt: f.appendSystemPrompt,
			Skills:             skills,
		}, systemprompt.Call{
			SelectedTools: toolNames(tools),
			Cwd:           cwd,
		}, toolInfos(tools))
	} else if f.appendSystemPrompt != "" {
		instructions = instructions + "\n\n" + f.appendSystemPrompt
	}

	sess, closeSession, err := resolveSession(f)
	if err != nil {
		return err
	}
	if closeSession != nil {
		defer closeSession()
	}
	if sess != nil && f.thinking != "off" {
		if _, err := sess.AppendThinkingLevelChange(f.thinking); err != nil {
			slog.Warn("failed to record thinking level", "error", err)
		}
	}

	a := agent.New(agent.Config{
		Model:        m,
		ModelName:    modelName,
		Instructions: instructions,
		Tools:        tools,
		Session:      sess,
		Compaction:   defaults.compactionSettings(),
		MaxSteps:     f.maxSteps,
	})

	prompt, err := resolvePrompt(args)
	if err != nil {
		return err
	}

	out := newRenderer(os.Stdout, f.mode, f.verbose)
	events, wait := a.Stream(ctx, prompt)
	var final string
	for ev := range events {
		out.handle(ev)
		if ev.Type == agent.EventMessageEnd && ev.Message != nil && ev.Message.Role == session.RoleAssistant {
			final = assistantText(*ev.Message)
		}
	}
	out.renderFinal(final)

	if err := wait(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		switch strings.ToUpper(lv) {
		case "DEBUG", "TRACE":
			level = slog.LevelDebug
		case "INFO":
			level = slog.LevelInfo
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func resolveModel(ctx context.Context, f *flags, apiKey string) (model.Model, string, error) {
	switch f.provider {
	case "gemini", "":
		gm, err := gemini.New(ctx, apiKey)
		if err != nil {
			return nil, "", fmt.Errorf("init gemini model: %w", err)
		}
		name := f.model
		if name == "" {
			names, err := gm.List(ctx)
			if err != nil || len(names) == 0 {
				return nil, "", fmt.Errorf("list models: %w", err)
			}
			name = names[0]
		}
		return gm, name, nil
	default:
		return nil, "", fmt.Errorf("unknown --provider %q (only gemini is wired)", f.provider)
	}
}

// resolveSession applies --no-session/--session/--continue/--resume, in
// that priority order, against a jsonl.Manager rooted at --session-dir.
// It returns a nil Session (agent runs unpersisted) when --no-session is
// set.
func resolveSession(f *flags) (session.Session, func(), error) {
	if f.noSession {
		return nil, nil, nil
	}

	if err := os.MkdirAll(f.sessionDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create session dir: %w", err)
	}
	mgr := jsonl.NewManager(f.sessionDir)

	var (
		sess session.Session
		err  error
	)
	switch {
	case f.session != "":
		sess, err = mgr.LoadSession(f.session)
	case f.cont || f.resume:
		sess, err = mgr.ContinueRecent()
		if err != nil {
			sess, err = mgr.NewSession("")
		}
	default:
		sess, err = mgr.NewSession("")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return sess, func() { sess.Close() }, nil
}

// resolvePrompt reads the prompt from positional args, falling back to
// stdin when no args were given and stdin is not a terminal (pipe mode).
func resolvePrompt(args []string) ([]session.Content, error) {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		info, err := os.Stdin.Stat()
		if err == nil && (info.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(bufio.NewReader(os.Stdin))
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no prompt given: pass it as an argument or pipe it on stdin")
	}
	return []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{Content: text}}}, nil
}

func assistantText(m session.MessageEntry) string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type == session.ContentTypeText && c.Text != nil {
			b.WriteString(c.Text.Content)
		}
	}
	return b.String()
}

func toolNames(r *tool.Registry) []string {
	var names []string
	for _, t := range r.List() {
		names = append(names, t.Name())
	}
	return names
}

func toolInfos(r *tool.Registry) []systemprompt.ToolInfo {
	var infos []systemprompt.ToolInfo
	for _, t := range r.List() {
		infos = append(infos, systemprompt.ToolInfo{Name: t.Name(), Description: t.Description()})
	}
	return infos
}
