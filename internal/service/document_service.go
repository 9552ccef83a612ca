package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type DocumentService struct {
	store     repository.ContentStore
	publisher events.Publisher
	validate  *validator.Validate
	markdown  goldmark.Markdown
	log       *logger.Logger
}

func NewDocumentService(store repository.ContentStore, publisher events.Publisher, log *logger.Logger) *DocumentService {
	return &DocumentService{
		store:     store,
		publisher: publisher,
		validate:  newValidator(),
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		log:       log.With("service", "DocumentService"),
	}
}

// Create stores a freshly generated draft as a new document with version 1.
func (s *DocumentService) Create(ctx context.Context, req *domain.CreateDocumentRequest) (*domain.Document, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.NewValidationError("content", "is required")
	}

	doc, err := s.store.CreateDocument(ctx, req.Topic, req.Content, domain.AgentMeta{Provider: req.Provider, Model: req.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	e := events.ForDocument(events.DocumentCreated, doc.ID)
	e.VersionID = doc.CurrentVersionID
	e.Sequence = 1
	publish(ctx, s.publisher, s.log, e)

	s.log.Info("document created", "document_id", doc.ID, "words", doc.WordCount)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, page domain.Page) (*domain.DocumentListResponse, error) {
	page = page.Normalize()
	docs, total, err := s.store.ListDocuments(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if docs == nil {
		docs = []*domain.DocumentSummary{}
	}
	return &domain.DocumentListResponse{Documents: docs, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.publisher, s.log, events.ForDocument(events.DocumentDeleted, id))
	s.log.Info("document deleted", "document_id", id)
	return nil
}

func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]*domain.DocumentSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("q", "search query is required")
	}
	docs, err := s.store.SearchDocuments(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	if docs == nil {
		docs = []*domain.DocumentSummary{}
	}
	return docs, nil
}

func (s *DocumentService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.store.Stats(ctx)
}

// RenderHTML converts the document's current markdown to HTML. Raw HTML in
// the source is not passed through.
func (s *DocumentService) RenderHTML(ctx context.Context, id string) (*domain.RenderedDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(doc.Content), &buf); err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return &domain.RenderedDocument{ID: doc.ID, HTML: buf.String()}, nil
}

// publish is best effort: the mutation has already committed.
func publish(ctx context.Context, p events.Publisher, log *logger.Logger, e *events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn("failed to publish event", "type", e.Type, "document_id", e.DocumentID, "error", err)
	}
}
