// Package events carries change notifications for documents to connected
// clients, optionally across instances.
package events

import (
	"context"
	"time"

	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/metrics"
)

type Type string

const (
	DocumentCreated Type = "document_created"
	DocumentDeleted Type = "document_deleted"
	VersionCreated  Type = "version_created"
	VersionRestored Type = "version_restored"
	HistoryCleared  Type = "history_cleared"
)

type Event struct {
	Type        Type      `json:"type"`
	DocumentID  string    `json:"document_id"`
	VersionID   string    `json:"version_id,omitempty"`
	Sequence    int       `json:"sequence,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ForVersion builds an event describing v becoming current.
func ForVersion(t Type, v *domain.Version) *Event {
	e := &Event{
		Type:       t,
		DocumentID: v.DocumentID,
		VersionID:  v.ID,
		Sequence:   v.Sequence,
		OccurredAt: time.Now().UTC(),
	}
	if v.Instruction != nil {
		e.Instruction = *v.Instruction
	}
	return e
}

func ForDocument(t Type, documentID string) *Event {
	return &Event{Type: t, DocumentID: documentID, OccurredAt: time.Now().UTC()}
}

// Publisher is what services call after a mutation commits. Publishing is
// best effort; a failure never undoes the mutation.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// Sink receives delivered events, e.g. the websocket manager.
type Sink interface {
	Deliver(e *Event)
}

// Local delivers events to in-process sinks only.
type Local struct {
	sinks   []Sink
	metrics *metrics.Metrics
}

func NewLocal(m *metrics.Metrics, sinks ...Sink) *Local {
	return &Local{sinks: sinks, metrics: m}
}

func (l *Local) Publish(_ context.Context, e *Event) error {
	l.deliver(e)
	return nil
}

func (l *Local) deliver(e *Event) {
	l.metrics.RecordEvent(string(e.Type))
	for _, s := range l.sinks {
		s.Deliver(e)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
