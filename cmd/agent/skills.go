package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mariozechner/coding-agent/session/pkg/systemprompt"
)

const frontmatterDelimiter = "---"

// skillFrontmatter is the YAML header of a SKILL.md file: just the fields
// systemprompt.Skill needs to advertise the capability to the model.
type skillFrontmatter struct {
	Name                   string `yaml:"name"`
	Description            string `yaml:"description"`
	DisableModelInvocation bool   `yaml:"disable_model_invocation"`
}

// loadSkill reads one --skill path (a SKILL.md file) into a
// systemprompt.Skill, the way nexus-edge's skills.ParseSkillFile reads its
// own frontmatter-delimited manifest.
func loadSkill(path string) (systemprompt.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return systemprompt.Skill{}, fmt.Errorf("read skill %s: %w", path, err)
	}

	front, _, err := splitFrontmatter(data)
	if err != nil {
		return systemprompt.Skill{}, fmt.Errorf("parse skill %s: %w", path, err)
	}

	var fm skillFrontmatter
	if err := yaml.Unmarshal(front, &fm); err != nil {
		return systemprompt.Skill{}, fmt.Errorf("parse skill frontmatter %s: %w", path, err)
	}
	if fm.Name == "" {
		return systemprompt.Skill{}, fmt.Errorf("skill %s: name is required", path)
	}
	if fm.Description == "" {
		return systemprompt.Skill{}, fmt.Errorf("skill %s: description is required", path)
	}

	return systemprompt.Skill{
		Name:                   fm.Name,
		Description:            fm.Description,
		DisableModelInvocation: fm.DisableModelInvocation,
	}, nil
}

// loadSkills resolves every --skill path, returning an empty slice (not an
// error) when noSkills is set or no paths were given.
func loadSkills(paths []string, noSkills bool) ([]systemprompt.Skill, error) {
	if noSkills || len(paths) == 0 {
		return nil, nil
	}
	skills := make([]systemprompt.Skill, 0, len(paths))
	for _, p := range paths {
		s, err := loadSkill(p)
		if err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var front []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		front = append(front, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return []byte(strings.Join(front, "\n")), []byte(strings.Join(body, "\n")), nil
}
