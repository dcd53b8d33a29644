// Package systemprompt builds the system prompt the agent loop sends to
// the model: a tool listing (or a custom override), project context
// files, visible skills, and a working-directory/date footer.
package systemprompt

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ContextFile is a project file rendered verbatim under "# Project Context".
type ContextFile struct {
	Path    string
	Content string
}

// Skill is a model-invocable capability advertised in the system prompt.
type Skill struct {
	Name                   string
	Description            string
	DisableModelInvocation bool
}

// Options configures buildSystemPrompt's static content.
type Options struct {
	CustomPrompt       string
	AppendSystemPrompt string
	ContextFiles       []ContextFile
	Skills             []Skill
}

// ToolInfo is the one-liner rendered for each selected tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Call carries the per-invocation arguments: which tools are selected for
// this session and the working directory to report.
type Call struct {
	SelectedTools []string
	Cwd           string
}

const toolGuidelines = `Usage guidelines:
- Prefer grep/find/ls over bash for searching and listing when both are available.
- Read a file before editing it.
- Use write only for new files; use edit to modify existing ones.
- Show file paths clearly when referencing them.
- Be concise.`

// Build composes the system prompt per spec §4.7. tools supplies the
// descriptions for the names listed in call.SelectedTools, in registration
// order; Build looks each selected name up and skips unknown ones.
func Build(opts Options, call Call, tools []ToolInfo) string {
	var b strings.Builder

	if opts.CustomPrompt != "" {
		b.WriteString(opts.CustomPrompt)
	} else {
		b.WriteString("Available tools:\n")
		lines := toolLines(call.SelectedTools, tools)
		if len(lines) == 0 {
			b.WriteString("(none)\n")
		} else {
			for _, l := range lines {
				b.WriteString(l)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(toolGuidelines)
	}

	if len(opts.ContextFiles) > 0 {
		b.WriteString("\n\n# Project Context\n")
		for _, f := range opts.ContextFiles {
			fmt.Fprintf(&b, "\n## %s\n\n%s\n", f.Path, f.Content)
		}
	}

	if visible := visibleSkills(opts.Skills); len(visible) > 0 {
		b.WriteString("\n\n<available_skills>\n")
		for _, s := range visible {
			fmt.Fprintf(&b, "<skill><name>%s</name><description>%s</description></skill>\n",
				escapeXML(s.Name), escapeXML(s.Description))
		}
		b.WriteString("</available_skills>")
	}

	fmt.Fprintf(&b, "\n\nWorking directory: %s\nCurrent date/time: %s",
		call.Cwd, time.Now().Format(time.RFC3339))

	if opts.AppendSystemPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(opts.AppendSystemPrompt)
	}

	return b.String()
}

func toolLines(selected []string, tools []ToolInfo) []string {
	byName := make(map[string]ToolInfo, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	var lines []string
	for _, name := range selected {
		t, ok := byName[name]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	return lines
}

func visibleSkills(skills []Skill) []Skill {
	var out []Skill
	for _, s := range skills {
		if !s.DisableModelInvocation {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
