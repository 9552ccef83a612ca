package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockEditor works offline: it appends the instruction as an editor's note so
// every edit yields a visible, deterministic change.
type MockEditor struct{}

func NewMockEditor() *MockEditor { return &MockEditor{} }

func (MockEditor) GenerateEdit(ctx context.Context, content, instruction string) (*Edit, error) {
	if err := ctx.Err(); err != nil {
		ue, _ := classify(ctx, err)
		return nil, ue
	}

	out := strings.TrimRight(content, "\n") + fmt.Sprintf("\n\n> Editor's note: %s\n", strings.TrimSpace(instruction))
	return &Edit{Content: out, Model: "mock-editor", Provider: ProviderMock}, nil
}
