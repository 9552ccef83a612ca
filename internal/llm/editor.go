// Package llm talks to the text-generation service that rewrites drafts.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/prompts"
)

// Edit is one generated revision.
type Edit struct {
	Content  string
	Model    string
	Provider string
}

// Editor rewrites content according to a natural-language instruction.
// Failures are reported as *domain.UpstreamError.
type Editor interface {
	GenerateEdit(ctx context.Context, content, instruction string) (*Edit, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderMock   = "mock"
)

// New builds the Editor selected by cfg.Provider.
func New(cfg config.LLMConfig, set *prompts.Set, log *logger.Logger) (Editor, error) {
	switch cfg.Provider {
	case ProviderMock:
		return NewMockEditor(), nil
	case ProviderOpenAI, ProviderGroq:
		return NewOpenAIEditor(cfg, set, log)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

var fencedBlock = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```$")

// cleanOutput trims the reply and unwraps a single surrounding code fence.
func cleanOutput(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if m := fencedBlock.FindStringSubmatch(out); m != nil {
		out = strings.TrimSpace(m[1])
	}
	if out == "" {
		return "", domain.NewUpstreamError(domain.UpstreamMalformed, fmt.Errorf("model returned empty content"))
	}
	return out, nil
}
