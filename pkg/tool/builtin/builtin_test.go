package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mariozechner/coding-agent/session/pkg/runtime"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

func newLocalRuntime(t *testing.T) (runtime.Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	return runtime.NewLocal(dir), dir
}

func TestLS(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	ls := NewLS(rt, dir)
	res, err := ls.Execute(context.Background(), map[string]any{"path": "."}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(res.Text, "f a.txt") || !strings.Contains(res.Text, "d sub") {
		t.Fatalf("unexpected ls output: %q", res.Text)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	rt, dir := newLocalRuntime(t)

	write := NewWrite(rt, dir)
	if _, err := write.Execute(context.Background(), map[string]any{
		"path": "notes/todo.txt", "content": "line1\nline2\nline3\n",
	}, tool.ExecuteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}

	read := NewRead(rt, dir)
	res, err := read.Execute(context.Background(), map[string]any{"path": "notes/todo.txt"}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(res.Text, "line1") || !strings.Contains(res.Text, "line3") {
		t.Fatalf("unexpected read output: %q", res.Text)
	}
}

func TestReadOffsetLimit(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	content := "a\nb\nc\nd\ne\n"
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	read := NewRead(rt, dir)
	res, err := read.Execute(context.Background(), map[string]any{
		"path": "f.txt", "offset": float64(2), "limit": float64(2),
	}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(res.Text, "b\nc") {
		t.Fatalf("expected lines b,c got %q", res.Text)
	}
}

func TestWriteRejectsEscape(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	write := NewWrite(rt, dir)
	_, err := write.Execute(context.Background(), map[string]any{
		"path": "../../etc/passwd", "content": "x",
	}, tool.ExecuteOpts{})
	if err == nil {
		t.Fatal("expected error escaping sandbox root")
	}
}

func TestEditExactMatch(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	edit := NewEdit(rt, dir)
	res, err := edit.Execute(context.Background(), map[string]any{
		"path": "f.txt", "oldText": "world", "newText": "there",
	}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !strings.Contains(res.Text, "+hello there") {
		t.Fatalf("unexpected diff: %q", res.Text)
	}

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello there\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestEditFailsOnMultipleMatches(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("foo\nfoo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	edit := NewEdit(rt, dir)
	_, err := edit.Execute(context.Background(), map[string]any{
		"path": "f.txt", "oldText": "foo", "newText": "bar",
	}, tool.ExecuteOpts{})
	if err == nil {
		t.Fatal("expected error for ambiguous match")
	}
}

func TestEditPreservesBOMAndCRLF(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	bomCRLF := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello\r\nworld\r\n")...)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), bomCRLF, 0o644); err != nil {
		t.Fatal(err)
	}

	edit := NewEdit(rt, dir)
	_, err := edit.Execute(context.Background(), map[string]any{
		"path": "f.txt", "oldText": "world", "newText": "there",
	}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 3 || data[0] != 0xEF || data[1] != 0xBB || data[2] != 0xBF {
		t.Fatalf("expected BOM preserved, got %x", data[:min(3, len(data))])
	}
	if !strings.Contains(string(data), "\r\n") {
		t.Fatalf("expected CRLF preserved, got %q", data)
	}
}

func TestBashCapturesOutputAndExitCode(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	bash := NewBash(rt, dir)

	res, err := bash.Execute(context.Background(), map[string]any{"command": "echo hi"}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("bash: %v", err)
	}
	if !strings.Contains(res.Text, "hi") {
		t.Fatalf("unexpected output: %q", res.Text)
	}

	_, err = bash.Execute(context.Background(), map[string]any{"command": "exit 3"}, tool.ExecuteOpts{})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestGrepFindsMatches(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc Foo() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	grep := NewGrep(rt, dir)
	res, err := grep.Execute(context.Background(), map[string]any{"pattern": "func Foo"}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if !strings.Contains(res.Text, "a.go") || strings.Contains(res.Text, "b.go:") {
		t.Fatalf("unexpected grep output: %q", res.Text)
	}
}

func TestFindMatchesGlob(t *testing.T) {
	rt, dir := newLocalRuntime(t)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "a.go"), []byte(""), 0o644)
	os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte(""), 0o644)
	os.WriteFile(filepath.Join(dir, "c.txt"), []byte(""), 0o644)

	find := NewFind(rt, dir)
	res, err := find.Execute(context.Background(), map[string]any{"pattern": "*.go"}, tool.ExecuteOpts{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !strings.Contains(res.Text, "a.go") || !strings.Contains(res.Text, "b.go") || strings.Contains(res.Text, "c.txt") {
		t.Fatalf("unexpected find output: %q", res.Text)
	}
}
