package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/llm"

	"github.com/google/uuid"
)

// memoryStore is an in-memory ContentStore with injectable failures.
type memoryStore struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	versions  map[string][]*domain.Version
	appendErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:     make(map[string]*domain.Document),
		versions: make(map[string][]*domain.Version),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func copyDoc(d *domain.Document) *domain.Document {
	c := *d
	return &c
}

func (m *memoryStore) CreateDocument(_ context.Context, topic, content string, meta domain.AgentMeta) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	doc := &domain.Document{
		ID: uuid.New().String(), Topic: topic, Content: content,
		WordCount: domain.WordCount(content), Provider: meta.Provider, Model: meta.Model,
		CreatedAt: now, UpdatedAt: now,
	}
	v := &domain.Version{
		ID: uuid.New().String(), DocumentID: doc.ID, Sequence: 1, Content: content,
		WordCount: doc.WordCount, Provider: meta.Provider, Model: meta.Model, CreatedAt: now,
	}
	doc.CurrentVersionID = v.ID
	m.docs[doc.ID] = doc
	m.versions[doc.ID] = []*domain.Version{v}
	return copyDoc(doc), nil
}

func (m *memoryStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, notFound("document", id)
	}
	return copyDoc(doc), nil
}

func (m *memoryStore) ListDocuments(_ context.Context, page domain.Page) ([]*domain.DocumentSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.summariesLocked()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if page.Offset >= len(all) {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], total, nil
}

func (m *memoryStore) summariesLocked() []*domain.DocumentSummary {
	out := make([]*domain.DocumentSummary, 0, len(m.docs))
	for id, d := range m.docs {
		out = append(out, domain.NewDocumentSummary(d, int64(len(m.versions[id]))))
	}
	return out
}

func (m *memoryStore) AppendVersion(_ context.Context, docID, baseVersionID, content, instruction, diffSummary string, meta domain.AgentMeta) (*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return nil, m.appendErr
	}
	doc, ok := m.docs[docID]
	if !ok {
		return nil, notFound("document", docID)
	}
	if baseVersionID != "" && doc.CurrentVersionID != baseVersionID {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrStaleBase)
	}
	chain := m.versions[docID]
	instr := instruction
	v := &domain.Version{
		ID: uuid.New().String(), DocumentID: docID, Sequence: chain[len(chain)-1].Sequence + 1,
		Content: content, Instruction: &instr, DiffSummary: diffSummary, WordCount: domain.WordCount(content),
		Provider: meta.Provider, Model: meta.Model, CreatedAt: time.Now().UTC(),
	}
	m.versions[docID] = append(chain, v)
	m.pointLocked(doc, v)
	return v, nil
}

func (m *memoryStore) pointLocked(doc *domain.Document, v *domain.Version) {
	doc.CurrentVersionID = v.ID
	doc.Content = v.Content
	doc.WordCount = v.WordCount
	doc.UpdatedAt = time.Now().UTC()
}

func (m *memoryStore) ListVersions(_ context.Context, docID string) ([]*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.versions[docID]
	if !ok {
		return nil, notFound("document", docID)
	}
	return append([]*domain.Version(nil), chain...), nil
}

func (m *memoryStore) GetVersion(_ context.Context, docID, versionID string) (*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[docID] {
		if v.ID == versionID {
			return v, nil
		}
	}
	return nil, notFound("version", versionID)
}

func (m *memoryStore) SetCurrentVersion(_ context.Context, docID, versionID string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, notFound("document", docID)
	}
	for _, v := range m.versions[docID] {
		if v.ID == versionID {
			m.pointLocked(doc, v)
			return copyDoc(doc), nil
		}
	}
	return nil, notFound("version", versionID)
}

func (m *memoryStore) ResetVersions(_ context.Context, docID string) (*domain.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, notFound("document", docID)
	}
	v := &domain.Version{
		ID: uuid.New().String(), DocumentID: docID, Sequence: 1, Content: doc.Content,
		WordCount: doc.WordCount, Provider: doc.Provider, Model: doc.Model, CreatedAt: time.Now().UTC(),
	}
	m.versions[docID] = []*domain.Version{v}
	m.pointLocked(doc, v)
	return v, nil
}

func (m *memoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return notFound("document", id)
	}
	delete(m.docs, id)
	delete(m.versions, id)
	return nil
}

func (m *memoryStore) SearchDocuments(_ context.Context, query string, limit int) ([]*domain.DocumentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	var out []*domain.DocumentSummary
	for _, s := range m.summariesLocked() {
		d := m.docs[s.ID]
		if strings.Contains(strings.ToLower(d.Topic), q) || strings.Contains(strings.ToLower(d.Content), q) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Stats(context.Context) (*domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &domain.Stats{TotalDocuments: int64(len(m.docs))}
	for id, d := range m.docs {
		st.TotalVersions += int64(len(m.versions[id]))
		st.TotalWords += int64(d.WordCount)
	}
	return st, nil
}

func (m *memoryStore) Close() error { return nil }

// fakeEditor returns a canned edit, or err, and records its calls. during
// runs inside every call before the edit is returned.
type fakeEditor struct {
	mu      sync.Mutex
	output  string
	err     error
	block   bool
	delay   time.Duration
	during  func()
	calls   int
	lastIn  string
	lastIns string
}

func (f *fakeEditor) GenerateEdit(ctx context.Context, content, instruction string) (*llm.Edit, error) {
	f.mu.Lock()
	f.calls++
	f.lastIn, f.lastIns = content, instruction
	out, err, block, delay, during := f.output, f.err, f.block, f.delay, f.during
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	if out == "" {
		out = content + "\n\nEdited per: " + instruction
	}
	return &llm.Edit{Content: out, Model: "fake-model", Provider: "fake"}, nil
}

func (f *fakeEditor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
