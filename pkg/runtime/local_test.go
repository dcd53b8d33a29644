package runtime_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
)

func TestLocal_ExecAndFS(t *testing.T) {
	dir := t.TempDir()
	rt := runtime.NewLocal(dir)
	ctx := context.Background()

	if err := rt.WriteFile(ctx, filepath.Join(dir, "a.txt"), []byte("hello")); err != nil {
		t.Fatal(err)
	}
	data, err := rt.ReadFile(ctx, filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("expected 'hello', got %q", data)
	}

	result, err := rt.Exec(ctx, "echo hi", runtime.ExecOptions{Cwd: dir})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "hi\n" {
		t.Errorf("expected 'hi\\n', got %q", result.Output)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", result.ExitCode)
	}
}

func TestLocal_ExecNonZeroExit(t *testing.T) {
	rt := runtime.NewLocal(t.TempDir())
	result, err := rt.Exec(context.Background(), "exit 3", runtime.ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.ExitCode == nil || *result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", result.ExitCode)
	}
}

func TestResolveWorkspacePath_PreventsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := runtime.ResolveWorkspacePath("../../etc/passwd", root, root)
	if err == nil {
		t.Error("expected error for path escaping sandbox root")
	}
}

func TestResolveWorkspacePath_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}
	resolved, err := runtime.ResolveWorkspacePath("~/foo", "/tmp", "")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != filepath.Join(home, "foo") {
		t.Errorf("expected %s, got %s", filepath.Join(home, "foo"), resolved)
	}
}

func TestResolveWorkspacePath_RelativeToCwd(t *testing.T) {
	resolved, err := runtime.ResolveWorkspacePath("rel/path", "/work", "")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "/work/rel/path" {
		t.Errorf("expected /work/rel/path, got %s", resolved)
	}
}
