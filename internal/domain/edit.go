package domain

import "time"

const (
	MinInstructionRunes    = 5
	MaxInstructionRunes    = 500
	MinPreviewContentRunes = 10
)

type ApplyEditRequest struct {
	Instruction string `json:"instruction" validate:"required"`
	IncludeDiff bool   `json:"include_diff"`
}

type PreviewEditRequest struct {
	Content     string `json:"content" validate:"required"`
	Instruction string `json:"instruction" validate:"required"`
	IncludeDiff bool   `json:"include_diff"`
}

type EditResult struct {
	DocumentID  string    `json:"document_id"`
	Version     *Version  `json:"version"`
	DiffSummary string    `json:"diff_summary"`
	UnifiedDiff string    `json:"unified_diff,omitempty"`
	WordDelta   int       `json:"word_delta"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	AppliedAt   time.Time `json:"applied_at"`
}

type PreviewResult struct {
	OriginalContent string `json:"original_content"`
	EditedContent   string `json:"edited_content"`
	Instruction     string `json:"instruction"`
	DiffSummary     string `json:"diff_summary"`
	UnifiedDiff     string `json:"unified_diff,omitempty"`
	WordDelta       int    `json:"word_delta"`
	Model           string `json:"model"`
	Provider        string `json:"provider"`
}
