package systemprompt

import "testing"

func TestBuild_EmptyToolsShowsNone(t *testing.T) {
	out := Build(Options{}, Call{Cwd: "/tmp"}, nil)
	if !contains(out, "(none)") {
		t.Fatalf("expected (none) for empty tool selection, got %q", out)
	}
}

func TestBuild_ListsSelectedTools(t *testing.T) {
	tools := []ToolInfo{
		{Name: "read", Description: "Read a file."},
		{Name: "write", Description: "Write a file."},
	}
	out := Build(Options{}, Call{SelectedTools: []string{"read"}, Cwd: "/tmp"}, tools)
	if !contains(out, "read: Read a file.") {
		t.Fatalf("expected read tool listed, got %q", out)
	}
	if contains(out, "write: Write a file.") {
		t.Fatalf("expected write tool NOT listed, got %q", out)
	}
}

func TestBuild_CustomPromptReplacesToolSection(t *testing.T) {
	out := Build(Options{CustomPrompt: "You are a helpful bot."}, Call{Cwd: "/tmp"}, nil)
	if contains(out, "Available tools:") {
		t.Fatalf("custom prompt should replace tool section, got %q", out)
	}
	if !contains(out, "You are a helpful bot.") {
		t.Fatalf("expected custom prompt text present, got %q", out)
	}
	if !contains(out, "Working directory:") {
		t.Fatalf("expected footer still appended with custom prompt, got %q", out)
	}
}

func TestBuild_ContextFiles(t *testing.T) {
	out := Build(Options{ContextFiles: []ContextFile{{Path: "README.md", Content: "hello"}}}, Call{Cwd: "/tmp"}, nil)
	if !contains(out, "# Project Context") || !contains(out, "## README.md") || !contains(out, "hello") {
		t.Fatalf("expected context file rendered, got %q", out)
	}
}

func TestBuild_SkillsEscapedAndFilteredByVisibility(t *testing.T) {
	skills := []Skill{
		{Name: "deploy", Description: "Deploy <prod>"},
		{Name: "hidden", Description: "secret", DisableModelInvocation: true},
	}
	out := Build(Options{Skills: skills}, Call{Cwd: "/tmp"}, nil)
	if !contains(out, "<available_skills>") {
		t.Fatalf("expected skills block, got %q", out)
	}
	if !contains(out, "Deploy &lt;prod&gt;") {
		t.Fatalf("expected XML-escaped skill description, got %q", out)
	}
	if contains(out, "hidden") {
		t.Fatalf("expected hidden skill to be excluded, got %q", out)
	}
}

func TestBuild_AppendSystemPromptIsLast(t *testing.T) {
	out := Build(Options{AppendSystemPrompt: "EXTRA TAIL"}, Call{Cwd: "/tmp"}, nil)
	if !endsWith(out, "EXTRA TAIL") {
		t.Fatalf("expected appendSystemPrompt to be the final text, got %q", out)
	}
}

func contains(s, substr string) bool {
	return indexOf(s, substr) >= 0
}

func endsWith(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
