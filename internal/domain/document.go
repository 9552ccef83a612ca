package domain

import (
	"strings"
	"time"
)

type Document struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Topic            string    `gorm:"type:varchar(200);not null" json:"topic"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	CurrentVersionID string    `gorm:"type:varchar(36);index" json:"current_version_id"`
	WordCount        int       `gorm:"not null;default:0" json:"word_count"`
	Provider         string    `gorm:"type:varchar(64)" json:"provider,omitempty"`
	Model            string    `gorm:"type:varchar(128)" json:"model,omitempty"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;index" json:"updated_at"`

	Versions []Version `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string { return "documents" }

// DocumentSummary is the list/search projection of a Document.
type DocumentSummary struct {
	ID               string    `json:"id"`
	Topic            string    `json:"topic"`
	Preview          string    `json:"preview"`
	WordCount        int       `json:"word_count"`
	VersionCount     int64     `json:"version_count"`
	CurrentVersionID string    `json:"current_version_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const previewRunes = 200

func NewDocumentSummary(doc *Document, versionCount int64) *DocumentSummary {
	return &DocumentSummary{
		ID:               doc.ID,
		Topic:            doc.Topic,
		Preview:          Truncate(doc.Content, previewRunes),
		WordCount:        doc.WordCount,
		VersionCount:     versionCount,
		CurrentVersionID: doc.CurrentVersionID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// AgentMeta records which generator produced a piece of content.
type AgentMeta struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

type Stats struct {
	TotalDocuments int64 `json:"total_documents"`
	TotalVersions  int64 `json:"total_versions"`
	TotalWords     int64 `json:"total_words"`
}

type CreateDocumentRequest struct {
	Topic    string `json:"topic" validate:"required,min=3,max=200"`
	Content  string `json:"content" validate:"required,min=10"`
	Provider string `json:"provider" validate:"omitempty,max=64"`
	Model    string `json:"model" validate:"omitempty,max=128"`
}

type DocumentListResponse struct {
	Documents []*DocumentSummary `json:"documents"`
	Total     int64              `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

type RenderedDocument struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Truncate cuts s to at most n runes, appending an ellipsis when shortened.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
