package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

const bashOutputCap = 64 * 1024

type bashTool struct {
	rt  runtime.Runtime
	cwd string
}

// NewBash returns the `bash` tool: runs a shell command through the
// runtime, capping the returned output at 64 KiB. When the cap is
// exceeded, the full output is written to a sidecar file in the host's
// temporary directory and that file's path is appended to the truncated
// text.
func NewBash(rt runtime.Runtime, cwd string) tool.Tool {
	return &bashTool{rt: rt, cwd: cwd}
}

func (t *bashTool) Name() string        { return "bash" }
func (t *bashTool) Description() string { return "Run a shell command and return its output." }

func (t *bashTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to run."},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds."},
		},
		"required": []string{"command"},
	}
}

func (t *bashTool) Execute(ctx context.Context, input map[string]any, opts tool.ExecuteOpts) (tool.Result, error) {
	command, _ := input["command"].(string)
	timeout := 0
	if secs, ok := input["timeout"].(float64); ok {
		timeout = int(secs)
	}

	slog.Info("bash", "command", command)

	result, err := t.rt.Exec(ctx, command, runtime.ExecOptions{Cwd: t.cwd, TimeoutSeconds: timeout})
	if err != nil {
		return tool.Result{}, fmt.Errorf("bash: %w", err)
	}

	output := result.Output
	var sidecar string
	if len(output) > bashOutputCap {
		f, ferr := os.CreateTemp("", "bash-output-*.txt")
		if ferr == nil {
			_, _ = f.WriteString(output)
			sidecar = f.Name()
			f.Close()
		}
		output = output[:bashOutputCap] + fmt.Sprintf("\n\n[truncated; full output at %s]", sidecar)
	}

	if result.TimedOut {
		return tool.Result{}, fmt.Errorf("bash: command timed out: %s", output)
	}
	if result.Aborted {
		return tool.Result{}, fmt.Errorf("bash: command cancelled")
	}
	if result.ExitCode != nil && *result.ExitCode != 0 {
		return tool.Result{}, fmt.Errorf("bash: exit code %d: %s", *result.ExitCode, output)
	}

	return tool.Result{Text: output, Details: map[string]any{"exitCode": result.ExitCode, "sidecar": sidecar}}, nil
}
