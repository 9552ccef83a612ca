package service

import (
	"context"
	"fmt"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
	"blogdraft-server/internal/repository"
)

// VersionService navigates a document's version chain. Navigation moves the
// current pointer; it never appends or truncates versions.
type VersionService struct {
	store     repository.ContentStore
	publisher events.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewVersionService(store repository.ContentStore, publisher events.Publisher, log *logger.Logger, m *metrics.Metrics) *VersionService {
	return &VersionService{
		store:     store,
		publisher: publisher,
		log:       log.With("service", "VersionService"),
		metrics:   m,
	}
}

func (s *VersionService) History(ctx context.Context, docID string) (*domain.History, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &domain.History{DocumentID: docID, Versions: versions, CurrentVersionID: doc.CurrentVersionID}, nil
}

func (s *VersionService) GetVersion(ctx context.Context, docID, versionID string) (*domain.Version, error) {
	return s.store.GetVersion(ctx, docID, versionID)
}

// Undo moves the pointer to the version preceding the current one by
// sequence.
func (s *VersionService) Undo(ctx context.Context, docID string) (*domain.Version, error) {
	history, err := s.History(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(history.Versions) < 2 {
		return nil, fmt.Errorf("%w: document %s has no earlier version", domain.ErrInvalidState, docID)
	}

	idx := -1
	for i, v := range history.Versions {
		if v.ID == history.CurrentVersionID {
			idx = i
			break
		}
	}
	switch {
	case idx < 0:
		return nil, fmt.Errorf("%w: current version of document %s is missing", domain.ErrInvalidState, docID)
	case idx == 0:
		return nil, fmt.Errorf("%w: document %s is already at its first version", domain.ErrInvalidState, docID)
	}

	target := history.Versions[idx-1]
	if _, err := s.store.SetCurrentVersion(ctx, docID, target.ID); err != nil {
		return nil, fmt.Errorf("failed to undo: %w", err)
	}
	s.metrics.RecordUndo()

	publish(ctx, s.publisher, s.log, events.ForVersion(events.VersionRestored, target))
	s.log.Info("undo", "document_id", docID, "from", history.Versions[idx].Sequence, "to", target.Sequence)
	return target, nil
}

// Restore moves the pointer to any version of the document.
func (s *VersionService) Restore(ctx context.Context, docID, versionID string) (*domain.Version, error) {
	target, err := s.store.GetVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.SetCurrentVersion(ctx, docID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore version: %w", err)
	}

	publish(ctx, s.publisher, s.log, events.ForVersion(events.VersionRestored, target))
	s.log.Info("version restored", "document_id", doc.ID, "version", target.Sequence)
	return target, nil
}

// ClearHistory drops every version and keeps the live content as version 1.
func (s *VersionService) ClearHistory(ctx context.Context, docID string) (*domain.Version, error) {
	v, err := s.store.ResetVersions(ctx, docID)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.ForVersion(events.HistoryCleared, v))
	s.log.Info("history cleared", "document_id", docID)
	return v, nil
}
