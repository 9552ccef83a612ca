package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/diff"
	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/llm"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
	"blogdraft-server/internal/repository"

	"github.com/go-playground/validator/v10"
)

const (
	outcomeCommitted  = "committed"
	outcomePreview    = "preview"
	outcomeValidation = "validation"
	outcomeNotFound   = "not_found"
	outcomeStorage    = "storage"
	outcomeConflict   = "conflict"
)

// EditService turns an instruction into a new version of a document.
type EditService struct {
	store     repository.ContentStore
	editor    llm.Editor
	publisher events.Publisher
	cfg       config.EditConfig
	validate  *validator.Validate
	log       *logger.Logger
	metrics   *metrics.Metrics

	// edits holds one document's read, generate and append steps together.
	edits *repository.KeyedMutex
}

func NewEditService(store repository.ContentStore, editor llm.Editor, publisher events.Publisher, cfg config.EditConfig, log *logger.Logger, m *metrics.Metrics) *EditService {
	if cfg.MinInstructionLen < domain.MinInstructionRunes {
		cfg.MinInstructionLen = domain.MinInstructionRunes
	}
	if cfg.MaxInstructionLen <= 0 {
		cfg.MaxInstructionLen = domain.MaxInstructionRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MinPreviewContent <= 0 {
		cfg.MinPreviewContent = domain.MinPreviewContentRunes
	}
	return &EditService{
		store:     store,
		editor:    editor,
		publisher: publisher,
		cfg:       cfg,
		validate:  newValidator(),
		log:       log.With("service", "EditService"),
		metrics:   m,
		edits:     repository.NewKeyedMutex(),
	}
}

// ApplyEdit rewrites the document's current content and appends the result
// as the next version. Nothing is written unless generation succeeds.
//
// Edits of one document run one at a time, each built on its predecessor. A
// waiter gives up after the edit timeout. If the current version moves by
// other means (undo, restore, another process) while the edit is generated,
// the result is discarded with domain.ErrStaleBase.
func (s *EditService) ApplyEdit(ctx context.Context, docID string, req *domain.ApplyEditRequest) (*domain.EditResult, error) {
	if err := validateStruct(s.validate, req); err != nil {
		s.metrics.RecordEdit(outcomeValidation)
		return nil, err
	}
	instruction, err := s.checkInstruction(req.Instruction)
	if err != nil {
		s.metrics.RecordEdit(outcomeValidation)
		return nil, err
	}

	unlock, err := s.lock(ctx, docID)
	if err != nil {
		s.metrics.RecordEdit(outcomeFor(err))
		return nil, err
	}
	defer unlock()

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		s.metrics.RecordEdit(outcomeFor(err))
		return nil, err
	}

	edit, err := s.generate(ctx, doc.Content, instruction)
	if err != nil {
		s.metrics.RecordEdit(outcomeFor(err))
		s.log.Warn("edit generation failed", "document_id", docID, "error", err)
		return nil, err
	}

	summary := diff.Compare(doc.Content, edit.Content)
	version, err := s.store.AppendVersion(ctx, docID, doc.CurrentVersionID, edit.Content, instruction, summary.String(),
		domain.AgentMeta{Provider: edit.Provider, Model: edit.Model})
	if err != nil {
		if domain.IsInvalidState(err) {
			s.log.Warn("edit discarded, document moved", "document_id", docID, "base", doc.CurrentVersionID)
		}
		s.metrics.RecordEdit(outcomeFor(err))
		return nil, fmt.Errorf("failed to commit edit: %w", err)
	}
	s.metrics.RecordEdit(outcomeCommitted)

	publish(ctx, s.publisher, s.log, events.ForVersion(events.VersionCreated, version))
	s.log.Info("edit committed", "document_id", docID, "version", version.Sequence, "word_delta", summary.WordDelta())

	result := &domain.EditResult{
		DocumentID:  docID,
		Version:     version,
		DiffSummary: version.DiffSummary,
		WordDelta:   summary.WordDelta(),
		Model:       edit.Model,
		Provider:    edit.Provider,
		AppliedAt:   version.CreatedAt,
	}
	if req.IncludeDiff {
		result.UnifiedDiff = diff.Unified(doc.Content, edit.Content)
	}
	return result, nil
}

// PreviewEdit runs an edit over caller-supplied content without storing or
// announcing anything.
func (s *EditService) PreviewEdit(ctx context.Context, req *domain.PreviewEditRequest) (*domain.PreviewResult, error) {
	if err := validateStruct(s.validate, req); err != nil {
		s.metrics.RecordEdit(outcomeValidation)
		return nil, err
	}
	instruction, err := s.checkInstruction(req.Instruction)
	if err != nil {
		s.metrics.RecordEdit(outcomeValidation)
		return nil, err
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Content)); n < s.cfg.MinPreviewContent {
		s.metrics.RecordEdit(outcomeValidation)
		return nil, domain.NewValidationError("content", "must be at least %d characters", s.cfg.MinPreviewContent)
	}

	edit, err := s.generate(ctx, req.Content, instruction)
	if err != nil {
		s.metrics.RecordEdit(outcomeFor(err))
		return nil, err
	}
	s.metrics.RecordEdit(outcomePreview)

	summary := diff.Compare(req.Content, edit.Content)
	result := &domain.PreviewResult{
		OriginalContent: req.Content,
		EditedContent:   edit.Content,
		Instruction:     instruction,
		DiffSummary:     summary.String(),
		WordDelta:       summary.WordDelta(),
		Model:           edit.Model,
		Provider:        edit.Provider,
	}
	if req.IncludeDiff {
		result.UnifiedDiff = diff.Unified(req.Content, edit.Content)
	}
	return result, nil
}

func (s *EditService) lock(ctx context.Context, docID string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	unlock, err := s.edits.LockContext(waitCtx, docID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("document %s has an edit in progress: %w", docID, domain.ErrInvalidState)
	}
	return unlock, nil
}

func (s *EditService) checkInstruction(raw string) (string, error) {
	instruction := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(instruction)
	switch {
	case n == 0:
		return "", domain.NewValidationError("instruction", "is required")
	case n < s.cfg.MinInstructionLen:
		return "", domain.NewValidationError("instruction", "must be at least %d characters", s.cfg.MinInstructionLen)
	case n > s.cfg.MaxInstructionLen:
		return "", domain.NewValidationError("instruction", "must be at most %d characters", s.cfg.MaxInstructionLen)
	}
	return instruction, nil
}

// generate calls the editor under the edit deadline and normalizes every
// failure into a *domain.UpstreamError.
func (s *EditService) generate(ctx context.Context, content, instruction string) (*llm.Edit, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	edit, err := s.editor.GenerateEdit(callCtx, content, instruction)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if ue, ok := domain.AsUpstream(err); !ok || ue.Kind != domain.UpstreamTimeout {
				return nil, domain.NewUpstreamError(domain.UpstreamTimeout, err)
			}
		}
		if _, ok := domain.AsUpstream(err); !ok {
			return nil, domain.NewUpstreamError(domain.UpstreamServiceUnavailable, err)
		}
		return nil, err
	}
	s.metrics.RecordGeneration(edit.Provider, edit.Model, time.Since(start))

	if strings.TrimSpace(edit.Content) == "" {
		return nil, domain.NewUpstreamError(domain.UpstreamMalformed, errors.New("editor returned empty content"))
	}
	return edit, nil
}

func outcomeFor(err error) string {
	if ue, ok := domain.AsUpstream(err); ok {
		return "upstream_" + string(ue.Kind)
	}
	if _, ok := domain.AsValidation(err); ok {
		return outcomeValidation
	}
	if domain.IsNotFound(err) {
		return outcomeNotFound
	}
	if domain.IsInvalidState(err) {
		return outcomeConflict
	}
	return outcomeStorage
}
