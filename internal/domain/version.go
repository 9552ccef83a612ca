package domain

import "time"

type Version struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_versions_document_sequence,priority:1" json:"document_id"`
	Sequence    int       `gorm:"not null;uniqueIndex:idx_versions_document_sequence,priority:2" json:"sequence"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Instruction *string   `gorm:"type:text" json:"instruction"`
	DiffSummary string    `gorm:"type:text;not null;default:''" json:"diff_summary"`
	WordCount   int       `gorm:"not null;default:0" json:"word_count"`
	Provider    string    `gorm:"type:varchar(64)" json:"provider,omitempty"`
	Model       string    `gorm:"type:varchar(128)" json:"model,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Version) TableName() string { return "versions" }

type History struct {
	DocumentID       string     `json:"document_id"`
	Versions         []*Version `json:"versions"`
	CurrentVersionID string     `json:"current_version_id"`
}

// Current returns the version the pointer references, or nil.
func (h *History) Current() *Version {
	for _, v := range h.Versions {
		if v.ID == h.CurrentVersionID {
			return v
		}
	}
	return nil
}
