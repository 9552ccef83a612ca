// Package prompts loads the chat templates sent to the text generator.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type promptFile struct {
	Version int `yaml:"version"`
	Edit    struct {
		System string `yaml:"system"`
		User   string `yaml:"user"`
	} `yaml:"edit"`
}

type Set struct {
	Version    int
	EditSystem string
	editUser   *template.Template
}

type EditInput struct {
	Content     string
	Instruction string
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Load reads a prompt file, or the embedded defaults when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Set, error) {
	var pf promptFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if strings.TrimSpace(pf.Edit.System) == "" || strings.TrimSpace(pf.Edit.User) == "" {
		return nil, fmt.Errorf("prompts: edit.system and edit.user are required")
	}

	tmpl, err := template.New("edit.user").Option("missingkey=error").Parse(pf.Edit.User)
	if err != nil {
		return nil, fmt.Errorf("prompts: invalid edit.user template: %w", err)
	}

	return &Set{
		Version:    pf.Version,
		EditSystem: strings.TrimSpace(pf.Edit.System),
		editUser:   tmpl,
	}, nil
}

func (s *Set) EditUser(in EditInput) (string, error) {
	var b strings.Builder
	if err := s.editUser.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render edit prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
