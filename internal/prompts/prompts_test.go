package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if set.EditSystem == "" {
		t.Fatal("Default() has empty system prompt")
	}

	out, err := set.EditUser(EditInput{Content: "# Hello\n\nWorld", Instruction: "make it shorter"})
	if err != nil {
		t.Fatalf("EditUser() error = %v", err)
	}
	if !strings.Contains(out, "make it shorter") || !strings.Contains(out, "# Hello") {
		t.Errorf("EditUser() did not embed inputs:\n%s", out)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid yaml", raw: "edit: [unclosed"},
		{name: "missing user", raw: "edit:\n  system: hi\n"},
		{name: "bad template", raw: "edit:\n  system: hi\n  user: \"{{.Content\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); err == nil {
				t.Error("Parse() expected error but got none")
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	raw := "version: 2\nedit:\n  system: custom system\n  user: \"{{.Instruction}} => {{.Content}}\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set.Version != 2 || set.EditSystem != "custom system" {
		t.Errorf("Load() = %+v", set)
	}

	out, _ := set.EditUser(EditInput{Content: "body", Instruction: "fix"})
	if out != "fix => body" {
		t.Errorf("EditUser() = %q", out)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
