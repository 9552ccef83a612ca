package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db         *gorm.DB
	log        *logger.Logger
	metrics    *metrics.Metrics
	locks      *KeyedMutex
	rowLocking bool
}

// NewGormStore migrates the schema and returns a relational ContentStore.
func NewGormStore(db *gorm.DB, log *logger.Logger, m *metrics.Metrics) (ContentStore, error) {
	if err := db.AutoMigrate(&domain.Document{}, &domain.Version{}); err != nil {
		return nil, fmt.Errorf("failed to migrate content schema: %w", err)
	}
	return &gormStore{
		db:         db,
		log:        log.With("repo", "GormContentStore"),
		metrics:    m,
		locks:      NewKeyedMutex(),
		rowLocking: db.Dialector.Name() == "postgres",
	}, nil
}

func (s *gormStore) CreateDocument(ctx context.Context, topic, content string, meta domain.AgentMeta) (doc *domain.Document, err error) {
	defer track(s.metrics, "create_document", time.Now(), &err)

	now := time.Now().UTC()
	words := domain.WordCount(content)
	doc = &domain.Document{
		ID:        uuid.New().String(),
		Topic:     topic,
		Content:   content,
		WordCount: words,
		Provider:  meta.Provider,
		Model:     meta.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	first := &domain.Version{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Sequence:   1,
		Content:    content,
		WordCount:  words,
		Provider:   meta.Provider,
		Model:      meta.Model,
		CreatedAt:  now,
	}
	doc.CurrentVersionID = first.ID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return err
		}
		return tx.Create(first).Error
	})
	if err != nil {
		return nil, s.wrap("create_document", err)
	}

	s.log.Debug("document created", "document_id", doc.ID, "words", words)
	return doc, nil
}

func (s *gormStore) GetDocument(ctx context.Context, id string) (doc *domain.Document, err error) {
	defer track(s.metrics, "get_document", time.Now(), &err)

	doc, err = s.findDocument(s.db.WithContext(ctx), id, false)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *gormStore) ListDocuments(ctx context.Context, page domain.Page) (out []*domain.DocumentSummary, total int64, err error) {
	defer track(s.metrics, "list_documents", time.Now(), &err)

	page = page.Normalize()
	db := s.db.WithContext(ctx)

	if err = db.Model(&domain.Document{}).Count(&total).Error; err != nil {
		return nil, 0, s.wrap("list_documents", err)
	}

	var docs []*domain.Document
	err = db.Order("created_at DESC").Order("id DESC").
		Offset(page.Offset).Limit(page.Limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, s.wrap("list_documents", err)
	}

	out, err = s.summarize(db, docs)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *gormStore) AppendVersion(ctx context.Context, docID, baseVersionID, content, instruction, diffSummary string, meta domain.AgentMeta) (v *domain.Version, err error) {
	defer track(s.metrics, "append_version", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	for attempt := 1; attempt <= maxSequenceRetries; attempt++ {
		v, err = s.appendOnce(ctx, docID, baseVersionID, content, instruction, diffSummary, meta)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.log.Warn("sequence collision, retrying", "document_id", docID, "attempt", attempt)
	}
	if err != nil {
		return nil, s.wrap("append_version", err)
	}

	s.log.Debug("version appended", "document_id", docID, "sequence", v.Sequence)
	return v, nil
}

func (s *gormStore) appendOnce(ctx context.Context, docID, baseVersionID, content, instruction, diffSummary string, meta domain.AgentMeta) (*domain.Version, error) {
	var v *domain.Version

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.findDocument(tx, docID, true)
		if err != nil {
			return err
		}
		if baseVersionID != "" && doc.CurrentVersionID != baseVersionID {
			return fmt.Errorf("document %s is at %s, not %s: %w", docID, doc.CurrentVersionID, baseVersionID, domain.ErrStaleBase)
		}

		var maxSeq int
		err = tx.Model(&domain.Version{}).
			Where("document_id = ?", docID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		instr := instruction
		v = &domain.Version{
			ID:          uuid.New().String(),
			DocumentID:  docID,
			Sequence:    maxSeq + 1,
			Content:     content,
			Instruction: &instr,
			DiffSummary: diffSummary,
			WordCount:   domain.WordCount(content),
			Provider:    meta.Provider,
			Model:       meta.Model,
			CreatedAt:   now,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}

		return s.point(tx, docID, v, now)
	})
	return v, err
}

func (s *gormStore) ListVersions(ctx context.Context, docID string) (versions []*domain.Version, err error) {
	defer track(s.metrics, "list_versions", time.Now(), &err)

	db := s.db.WithContext(ctx)
	if _, err = s.findDocument(db, docID, false); err != nil {
		return nil, err
	}

	err = db.Where("document_id = ?", docID).Order("sequence ASC").Find(&versions).Error
	if err != nil {
		return nil, s.wrap("list_versions", err)
	}
	return versions, nil
}

func (s *gormStore) GetVersion(ctx context.Context, docID, versionID string) (v *domain.Version, err error) {
	defer track(s.metrics, "get_version", time.Now(), &err)

	v, err = s.findVersion(s.db.WithContext(ctx), docID, versionID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *gormStore) SetCurrentVersion(ctx context.Context, docID, versionID string) (doc *domain.Document, err error) {
	defer track(s.metrics, "set_current_version", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findDocument(tx, docID, true); err != nil {
			return err
		}
		v, err := s.findVersion(tx, docID, versionID)
		if err != nil {
			return err
		}
		if err := s.point(tx, docID, v, time.Now().UTC()); err != nil {
			return err
		}
		doc, err = s.findDocument(tx, docID, false)
		return err
	})
	if err != nil {
		return nil, s.wrap("set_current_version", err)
	}
	return doc, nil
}

func (s *gormStore) ResetVersions(ctx context.Context, docID string) (v *domain.Version, err error) {
	defer track(s.metrics, "reset_versions", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.findDocument(tx, docID, true)
		if err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&domain.Version{}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		v = &domain.Version{
			ID:         uuid.New().String(),
			DocumentID: docID,
			Sequence:   1,
			Content:    doc.Content,
			WordCount:  domain.WordCount(doc.Content),
			Provider:   doc.Provider,
			Model:      doc.Model,
			CreatedAt:  now,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		return s.point(tx, docID, v, now)
	})
	if err != nil {
		return nil, s.wrap("reset_versions", err)
	}

	s.log.Info("version history cleared", "document_id", docID)
	return v, nil
}

func (s *gormStore) DeleteDocument(ctx context.Context, id string) (err error) {
	defer track(s.metrics, "delete_document", time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&domain.Version{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return s.wrap("delete_document", err)
	}

	s.log.Info("document deleted", "document_id", id)
	return nil
}

func (s *gormStore) SearchDocuments(ctx context.Context, query string, limit int) (out []*domain.DocumentSummary, err error) {
	defer track(s.metrics, "search_documents", time.Now(), &err)

	db := s.db.WithContext(ctx)
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	var docs []*domain.Document
	err = db.Where("LOWER(topic) LIKE ? ESCAPE '\\' OR LOWER(content) LIKE ? ESCAPE '\\'", pattern, pattern).
		Order("updated_at DESC").Order("id DESC").
		Limit(clampSearchLimit(limit)).
		Find(&docs).Error
	if err != nil {
		return nil, s.wrap("search_documents", err)
	}
	return s.summarize(db, docs)
}

func (s *gormStore) Stats(ctx context.Context) (st *domain.Stats, err error) {
	defer track(s.metrics, "stats", time.Now(), &err)

	db := s.db.WithContext(ctx)
	st = &domain.Stats{}

	if err = db.Model(&domain.Document{}).Count(&st.TotalDocuments).Error; err != nil {
		return nil, s.wrap("stats", err)
	}
	if err = db.Model(&domain.Version{}).Count(&st.TotalVersions).Error; err != nil {
		return nil, s.wrap("stats", err)
	}
	if err = db.Model(&domain.Document{}).Select("COALESCE(SUM(word_count), 0)").Scan(&st.TotalWords).Error; err != nil {
		return nil, s.wrap("stats", err)
	}
	return st, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) findDocument(tx *gorm.DB, id string, forUpdate bool) (*domain.Document, error) {
	q := tx
	if forUpdate && s.rowLocking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var doc domain.Document
	if err := q.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, s.wrap("get_document", err)
	}
	return &doc, nil
}

func (s *gormStore) findVersion(tx *gorm.DB, docID, versionID string) (*domain.Version, error) {
	var v domain.Version
	err := tx.Where("id = ? AND document_id = ?", versionID, docID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("version %s of document %s: %w", versionID, docID, domain.ErrNotFound)
		}
		return nil, s.wrap("get_version", err)
	}
	return &v, nil
}

// point moves the current-version pointer and mirrors the version's content
// onto the document row.
func (s *gormStore) point(tx *gorm.DB, docID string, v *domain.Version, now time.Time) error {
	return tx.Model(&domain.Document{}).Where("id = ?", docID).Updates(map[string]interface{}{
		"content":            v.Content,
		"current_version_id": v.ID,
		"word_count":         v.WordCount,
		"updated_at":         now,
	}).Error
}

func (s *gormStore) summarize(db *gorm.DB, docs []*domain.Document) ([]*domain.DocumentSummary, error) {
	out := make([]*domain.DocumentSummary, 0, len(docs))
	if len(docs) == 0 {
		return out, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	var rows []struct {
		DocumentID string
		Count      int64
	}
	err := db.Model(&domain.Version{}).
		Select("document_id, COUNT(*) AS count").
		Where("document_id IN ?", ids).
		Group("document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, s.wrap("count_versions", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.DocumentID] = r.Count
	}
	for _, d := range docs {
		out = append(out, domain.NewDocumentSummary(d, counts[d.ID]))
	}
	return out, nil
}

// wrap leaves domain errors untouched and turns everything else into a StorageError.
func (s *gormStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsNotFound(err) || domain.IsInvalidState(err) {
		return err
	}
	if _, ok := domain.AsStorage(err); ok {
		return err
	}
	s.log.Error("storage operation failed", "op", op, "error", err)
	return domain.NewStorageError(op, err)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
