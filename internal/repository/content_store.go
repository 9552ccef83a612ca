package repository

import (
	"context"
	"sync"
	"time"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/metrics"
)

// ContentStore persists documents and their version chains. Implementations
// serialize mutations per document and never leave a half-applied write.
type ContentStore interface {
	CreateDocument(ctx context.Context, topic, content string, meta domain.AgentMeta) (*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, page domain.Page) ([]*domain.DocumentSummary, int64, error)
	// AppendVersion adds the next version and points the document at it.
	// A non-empty baseVersionID must still be the current version, otherwise
	// domain.ErrStaleBase is returned and nothing is written.
	AppendVersion(ctx context.Context, docID, baseVersionID, content, instruction, diffSummary string, meta domain.AgentMeta) (*domain.Version, error)
	ListVersions(ctx context.Context, docID string) ([]*domain.Version, error)
	GetVersion(ctx context.Context, docID, versionID string) (*domain.Version, error)
	SetCurrentVersion(ctx context.Context, docID, versionID string) (*domain.Document, error)
	ResetVersions(ctx context.Context, docID string) (*domain.Version, error)
	DeleteDocument(ctx context.Context, id string) error
	SearchDocuments(ctx context.Context, query string, limit int) ([]*domain.DocumentSummary, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Close() error
}

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	// maxSequenceRetries bounds retries after losing a sequence race to
	// another process sharing the database.
	maxSequenceRetries = 3
)

func clampSearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

// KeyedMutex is a set of mutexes addressed by key. Entries are dropped once
// no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is held and returns its release func.
func (k *KeyedMutex) Lock(key string) func() {
	unlock, _ := k.LockContext(context.Background(), key)
	return unlock
}

// LockContext is Lock with a deadline. On ctx expiry it returns ctx.Err()
// and a nil release func.
func (k *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{ch: make(chan struct{}, 1)}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, m)
		return nil, ctx.Err()
	}

	return func() {
		<-m.ch
		k.release(key, m)
	}, nil
}

func (k *KeyedMutex) release(key string, m *refMutex) {
	k.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func track(m *metrics.Metrics, op string, start time.Time, errp *error) {
	m.RecordStoreOperation(op, *errp, time.Since(start))
}
