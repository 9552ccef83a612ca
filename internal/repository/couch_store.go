package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
)

const (
	kindDocument = "document"
	kindVersion  = "version"

	// couchScanLimit caps Mango result sets, which CouchDB otherwise limits to 25.
	couchScanLimit = 100000
)

type documentRecord struct {
	DocID string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Kind  string `json:"kind"`
	domain.Document
}

type versionRecord struct {
	DocID string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Kind  string `json:"kind"`
	domain.Version
}

type couchStore struct {
	client  *kivik.Client
	dbName  string
	log     *logger.Logger
	metrics *metrics.Metrics
	locks   *KeyedMutex
}

// NewCouchStore returns a ContentStore backed by a CouchDB database, creating
// the database when it does not exist yet.
func NewCouchStore(ctx context.Context, client *kivik.Client, dbName string, log *logger.Logger, m *metrics.Metrics) (ContentStore, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		log.Info("created couchdb database", "name", dbName)
	}

	return &couchStore{
		client:  client,
		dbName:  dbName,
		log:     log.With("repo", "CouchContentStore"),
		metrics: m,
		locks:   NewKeyedMutex(),
	}, nil
}

func documentKey(id string) string { return "document:" + id }

func versionKey(docID string, seq int) string {
	return fmt.Sprintf("version:%s:%06d", docID, seq)
}

func (s *couchStore) db() *kivik.DB {
	return s.client.DB(s.dbName)
}

func (s *couchStore) CreateDocument(ctx context.Context, topic, content string, meta domain.AgentMeta) (doc *domain.Document, err error) {
	defer track(s.metrics, "create_document", time.Now(), &err)

	now := time.Now().UTC()
	words := domain.WordCount(content)
	rec := &documentRecord{Kind: kindDocument, Document: domain.Document{
		ID:        uuid.New().String(),
		Topic:     topic,
		Content:   content,
		WordCount: words,
		Provider:  meta.Provider,
		Model:     meta.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	rec.DocID = documentKey(rec.ID)

	first := &versionRecord{Kind: kindVersion, Version: domain.Version{
		ID:         uuid.New().String(),
		DocumentID: rec.ID,
		Sequence:   1,
		Content:    content,
		WordCount:  words,
		Provider:   meta.Provider,
		Model:      meta.Model,
		CreatedAt:  now,
	}}
	first.DocID = versionKey(rec.ID, 1)
	rec.CurrentVersionID = first.ID

	vrev, err := s.db().Put(ctx, first.DocID, first)
	if err != nil {
		return nil, s.wrap("create_document", err)
	}
	if _, err = s.db().Put(ctx, rec.DocID, rec); err != nil {
		s.compensate(first.DocID, vrev)
		return nil, s.wrap("create_document", err)
	}

	d := rec.Document
	return &d, nil
}

func (s *couchStore) GetDocument(ctx context.Context, id string) (doc *domain.Document, err error) {
	defer track(s.metrics, "get_document", time.Now(), &err)

	rec, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	d := rec.Document
	return &d, nil
}

func (s *couchStore) ListDocuments(ctx context.Context, page domain.Page) (out []*domain.DocumentSummary, total int64, err error) {
	defer track(s.metrics, "list_documents", time.Now(), &err)

	page = page.Normalize()
	docs, err := s.allDocuments(ctx)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	total = int64(len(docs))
	if page.Offset >= len(docs) {
		return []*domain.DocumentSummary{}, total, nil
	}
	end := min(page.Offset+page.Limit, len(docs))

	out, err = s.summarize(ctx, docs[page.Offset:end])
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *couchStore) AppendVersion(ctx context.Context, docID, baseVersionID, content, instruction, diffSummary string, meta domain.AgentMeta) (v *domain.Version, err error) {
	defer track(s.metrics, "append_version", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	rec, err := s.getDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if baseVersionID != "" && rec.CurrentVersionID != baseVersionID {
		return nil, fmt.Errorf("document %s is at %s, not %s: %w", docID, rec.CurrentVersionID, baseVersionID, domain.ErrStaleBase)
	}
	versions, err := s.versionRecords(ctx, docID)
	if err != nil {
		return nil, err
	}
	next := 1
	if n := len(versions); n > 0 {
		next = versions[n-1].Sequence + 1
	}

	instr := instruction
	vr := &versionRecord{Kind: kindVersion, Version: domain.Version{
		ID:          uuid.New().String(),
		DocumentID:  docID,
		Content:     content,
		Instruction: &instr,
		DiffSummary: diffSummary,
		WordCount:   domain.WordCount(content),
		Provider:    meta.Provider,
		Model:       meta.Model,
		CreatedAt:   time.Now().UTC(),
	}}

	// The deterministic id makes a concurrent writer in another process fail
	// with a conflict instead of producing a duplicate sequence.
	var vrev string
	for attempt := 1; ; attempt++ {
		vr.Sequence = next
		vr.DocID = versionKey(docID, next)
		vrev, err = s.db().Put(ctx, vr.DocID, vr)
		if err == nil {
			break
		}
		if kivik.HTTPStatus(err) != http.StatusConflict || attempt == maxSequenceRetries {
			return nil, s.wrap("append_version", err)
		}
		s.log.Warn("sequence collision, retrying", "document_id", docID, "attempt", attempt)
		next++
	}

	if err = s.point(ctx, rec, &vr.Version); err != nil {
		s.compensate(vr.DocID, vrev)
		return nil, err
	}

	v2 := vr.Version
	return &v2, nil
}

func (s *couchStore) ListVersions(ctx context.Context, docID string) (versions []*domain.Version, err error) {
	defer track(s.metrics, "list_versions", time.Now(), &err)

	if _, err = s.getDocument(ctx, docID); err != nil {
		return nil, err
	}
	recs, err := s.versionRecords(ctx, docID)
	if err != nil {
		return nil, err
	}

	versions = make([]*domain.Version, len(recs))
	for i, r := range recs {
		v := r.Version
		versions[i] = &v
	}
	return versions, nil
}

func (s *couchStore) GetVersion(ctx context.Context, docID, versionID string) (v *domain.Version, err error) {
	defer track(s.metrics, "get_version", time.Now(), &err)

	rec, err := s.findVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}
	out := rec.Version
	return &out, nil
}

func (s *couchStore) SetCurrentVersion(ctx context.Context, docID, versionID string) (doc *domain.Document, err error) {
	defer track(s.metrics, "set_current_version", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	rec, err := s.getDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	vr, err := s.findVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}
	if err = s.point(ctx, rec, &vr.Version); err != nil {
		return nil, err
	}

	d := rec.Document
	return &d, nil
}

func (s *couchStore) ResetVersions(ctx context.Context, docID string) (v *domain.Version, err error) {
	defer track(s.metrics, "reset_versions", time.Now(), &err)

	unlock := s.locks.Lock(docID)
	defer unlock()

	rec, err := s.getDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err = s.deleteVersions(ctx, docID); err != nil {
		return nil, err
	}

	vr := &versionRecord{Kind: kindVersion, Version: domain.Version{
		ID:         uuid.New().String(),
		DocumentID: docID,
		Sequence:   1,
		Content:    rec.Content,
		WordCount:  domain.WordCount(rec.Content),
		Provider:   rec.Provider,
		Model:      rec.Model,
		CreatedAt:  time.Now().UTC(),
	}}
	vr.DocID = versionKey(docID, 1)

	if _, err = s.db().Put(ctx, vr.DocID, vr); err != nil {
		return nil, s.wrap("reset_versions", err)
	}
	if err = s.point(ctx, rec, &vr.Version); err != nil {
		return nil, err
	}

	out := vr.Version
	return &out, nil
}

func (s *couchStore) DeleteDocument(ctx context.Context, id string) (err error) {
	defer track(s.metrics, "delete_document", time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.getDocument(ctx, id)
	if err != nil {
		return err
	}
	// Drop the head first so a partial failure never leaves a visible
	// document without versions.
	if _, err = s.db().Delete(ctx, rec.DocID, rec.Rev); err != nil {
		return s.wrap("delete_document", err)
	}
	return s.deleteVersions(ctx, id)
}

func (s *couchStore) SearchDocuments(ctx context.Context, query string, limit int) (out []*domain.DocumentSummary, err error) {
	defer track(s.metrics, "search_documents", time.Now(), &err)

	needle := strings.ToLower(strings.TrimSpace(query))
	docs, err := s.allDocuments(ctx)
	if err != nil {
		return nil, err
	}

	var hits []*domain.Document
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Topic), needle) || strings.Contains(strings.ToLower(d.Content), needle) {
			hits = append(hits, d)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].UpdatedAt.Equal(hits[j].UpdatedAt) {
			return hits[i].ID > hits[j].ID
		}
		return hits[i].UpdatedAt.After(hits[j].UpdatedAt)
	})
	if n := clampSearchLimit(limit); len(hits) > n {
		hits = hits[:n]
	}
	return s.summarize(ctx, hits)
}

func (s *couchStore) Stats(ctx context.Context) (st *domain.Stats, err error) {
	defer track(s.metrics, "stats", time.Now(), &err)

	docs, err := s.allDocuments(ctx)
	if err != nil {
		return nil, err
	}
	st = &domain.Stats{TotalDocuments: int64(len(docs))}
	for _, d := range docs {
		st.TotalWords += int64(d.WordCount)
	}

	rows := s.db().Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{"kind": kindVersion},
		"fields":   []string{"_id"},
		"limit":    couchScanLimit,
	})
	if err = rows.Err(); err != nil {
		return nil, s.wrap("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		st.TotalVersions++
	}
	if err = rows.Err(); err != nil {
		return nil, s.wrap("stats", err)
	}
	return st, nil
}

func (s *couchStore) Close() error {
	return s.client.Close()
}

func (s *couchStore) getDocument(ctx context.Context, id string) (*documentRecord, error) {
	var rec documentRecord
	if err := s.db().Get(ctx, documentKey(id)).ScanDoc(&rec); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, s.wrap("get_document", err)
	}
	return &rec, nil
}

func (s *couchStore) allDocuments(ctx context.Context) ([]*domain.Document, error) {
	rows := s.db().Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{"kind": kindDocument},
		"limit":    couchScanLimit,
	})
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_documents", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var rec documentRecord
		if err := rows.ScanDoc(&rec); err != nil {
			return nil, s.wrap("list_documents", err)
		}
		d := rec.Document
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_documents", err)
	}
	return docs, nil
}

// versionRecords returns a document's versions ordered by sequence.
func (s *couchStore) versionRecords(ctx context.Context, docID string) ([]*versionRecord, error) {
	rows := s.db().Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":        kindVersion,
			"document_id": docID,
		},
		"limit": couchScanLimit,
	})
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_versions", err)
	}
	defer rows.Close()

	var recs []*versionRecord
	for rows.Next() {
		var rec versionRecord
		if err := rows.ScanDoc(&rec); err != nil {
			return nil, s.wrap("list_versions", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_versions", err)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Sequence < recs[j].Sequence })
	return recs, nil
}

func (s *couchStore) findVersion(ctx context.Context, docID, versionID string) (*versionRecord, error) {
	recs, err := s.versionRecords(ctx, docID)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.ID == versionID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("version %s of document %s: %w", versionID, docID, domain.ErrNotFound)
}

func (s *couchStore) deleteVersions(ctx context.Context, docID string) error {
	recs, err := s.versionRecords(ctx, docID)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := s.db().Delete(ctx, r.DocID, r.Rev); err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
			return s.wrap("delete_versions", err)
		}
	}
	return nil
}

// point moves rec's current-version pointer to v and writes it back.
func (s *couchStore) point(ctx context.Context, rec *documentRecord, v *domain.Version) error {
	rec.Content = v.Content
	rec.CurrentVersionID = v.ID
	rec.WordCount = v.WordCount
	rec.UpdatedAt = time.Now().UTC()

	rev, err := s.db().Put(ctx, rec.DocID, rec)
	if err != nil {
		return s.wrap("set_current_version", err)
	}
	rec.Rev = rev
	return nil
}

// compensate removes a version written ahead of a failed pointer update.
func (s *couchStore) compensate(key, rev string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.db().Delete(ctx, key, rev); err != nil {
		s.log.Error("failed to roll back orphan version", "key", key, "error", err)
	}
}

func (s *couchStore) summarize(ctx context.Context, docs []*domain.Document) ([]*domain.DocumentSummary, error) {
	out := make([]*domain.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		recs, err := s.versionRecords(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewDocumentSummary(d, int64(len(recs))))
	}
	return out, nil
}

func (s *couchStore) wrap(op string, err error) error {
	if err == nil || domain.IsNotFound(err) || domain.IsInvalidState(err) {
		return err
	}
	if _, ok := domain.AsStorage(err); ok {
		return err
	}
	s.log.Error("storage operation failed", "op", op, "error", err)
	return domain.NewStorageError(op, err)
}
