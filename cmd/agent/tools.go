package main

import (
	"fmt"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
	"github.com/mariozechner/coding-agent/session/pkg/tool/builtin"
)

// readonlyTools is the --tools readonly set: inspection only, no writes and
// no shell.
var readonlyTools = []string{"ls", "read", "find", "grep"}

// codingTools is the --tools coding (default) set: everything but bash,
// matching spec.md's "coding" grouping as read/write-capable but not an
// open shell.
var codingTools = []string{"ls", "read", "find", "grep", "edit", "write"}

// allTools adds bash on top of codingTools.
var allTools = append(append([]string{}, codingTools...), "bash")

// buildRegistry constructs a tool.Registry holding the builtin tools named
// by the --tools flag, wired to rt/cwd.
func buildRegistry(rt runtime.Runtime, cwd, toolSet string) (*tool.Registry, error) {
	var names []string
	switch toolSet {
	case "readonly":
		names = readonlyTools
	case "coding", "":
		names = codingTools
	case "all":
		names = allTools
	default:
		return nil, fmt.Errorf("unknown --tools value %q (want coding, readonly, or all)", toolSet)
	}

	reg := tool.NewRegistry()
	for _, name := range names {
		t, err := newBuiltinTool(name, rt, cwd)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return reg, nil
}

func newBuiltinTool(name string, rt runtime.Runtime, cwd string) (tool.Tool, error) {
	switch name {
	case "bash":
		return builtin.NewBash(rt, cwd), nil
	case "edit":
		return builtin.NewEdit(rt, cwd), nil
	case "find":
		return builtin.NewFind(rt, cwd), nil
	case "grep":
		return builtin.NewGrep(rt, cwd), nil
	case "ls":
		return builtin.NewLS(rt, cwd), nil
	case "read":
		return builtin.NewRead(rt, cwd), nil
	case "write":
		return builtin.NewWrite(rt, cwd), nil
	default:
		return nil, fmt.Errorf("unknown builtin tool %q", name)
	}
}
