package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/diff"
	"blogdraft-server/internal/domain"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
)

type versionFixture struct {
	store    *memoryStore
	pub      *capturePublisher
	edits    *EditService
	versions *VersionService
	doc      *domain.Document
}

func newVersionFixture(t *testing.T) *versionFixture {
	t.Helper()
	store := newMemoryStore()
	pub := &capturePublisher{}
	m := metrics.New()
	f := &versionFixture{
		store:    store,
		pub:      pub,
		edits:    NewEditService(store, &fakeEditor{}, pub, config.EditConfig{Timeout: time.Second}, logger.Nop(), m),
		versions: NewVersionService(store, pub, logger.Nop(), m),
	}
	doc, err := store.CreateDocument(context.Background(), "Version walk", "First draft of the post.", domain.AgentMeta{})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	f.doc = doc
	return f
}

func (f *versionFixture) edit(t *testing.T, instruction string) *domain.Version {
	t.Helper()
	res, err := f.edits.ApplyEdit(context.Background(), f.doc.ID, &domain.ApplyEditRequest{Instruction: instruction})
	if err != nil {
		t.Fatalf("ApplyEdit(%q) error = %v", instruction, err)
	}
	return res.Version
}

func (f *versionFixture) current(t *testing.T) *domain.Document {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), f.doc.ID)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	return doc
}

func TestVersionService_History(t *testing.T) {
	f := newVersionFixture(t)
	f.edit(t, "add an example")
	v3 := f.edit(t, "add a conclusion")

	h, err := f.versions.History(context.Background(), f.doc.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Versions) != 3 {
		t.Fatalf("len(Versions) = %d, want 3", len(h.Versions))
	}
	for i, v := range h.Versions {
		if v.Sequence != i+1 {
			t.Errorf("Versions[%d].Sequence = %d", i, v.Sequence)
		}
	}
	if h.Versions[0].Instruction != nil || h.Versions[0].DiffSummary != "" {
		t.Error("version 1 must have no instruction and empty diff summary")
	}
	for _, v := range h.Versions[1:] {
		if v.Instruction == nil || v.DiffSummary == "" {
			t.Errorf("version %d missing instruction or diff summary", v.Sequence)
		}
	}
	if h.CurrentVersionID != v3.ID || h.Current() != h.Versions[2] {
		t.Errorf("CurrentVersionID = %q, want %q", h.CurrentVersionID, v3.ID)
	}

	if _, err := f.versions.History(context.Background(), "missing"); !domain.IsNotFound(err) {
		t.Errorf("History(missing) error = %v", err)
	}
}

func TestVersionService_Undo(t *testing.T) {
	f := newVersionFixture(t)
	v2 := f.edit(t, "add an example")
	f.edit(t, "add a conclusion")

	got, err := f.versions.Undo(context.Background(), f.doc.ID)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got.ID != v2.ID {
		t.Errorf("Undo() = seq %d, want 2", got.Sequence)
	}
	doc := f.current(t)
	if doc.CurrentVersionID != v2.ID || doc.Content != v2.Content {
		t.Error("document not moved to version 2")
	}

	got, err = f.versions.Undo(context.Background(), f.doc.ID)
	if err != nil || got.Sequence != 1 {
		t.Fatalf("second Undo() = %v, %v; want version 1", got, err)
	}

	_, err = f.versions.Undo(context.Background(), f.doc.ID)
	if !domain.IsInvalidState(err) {
		t.Errorf("Undo() at version 1 error = %v, want ErrInvalidState", err)
	}
	if f.current(t).CurrentVersionID != got.ID {
		t.Error("pointer moved on failed undo")
	}

	versions, _ := f.store.ListVersions(context.Background(), f.doc.ID)
	if len(versions) != 3 {
		t.Errorf("undo changed chain length to %d", len(versions))
	}
	want := []events.Type{events.VersionCreated, events.VersionCreated, events.VersionRestored, events.VersionRestored}
	if types := f.pub.types(); !slices.Equal(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestVersionService_Undo_SingleVersion(t *testing.T) {
	f := newVersionFixture(t)

	_, err := f.versions.Undo(context.Background(), f.doc.ID)
	if !domain.IsInvalidState(err) {
		t.Errorf("Undo() error = %v, want ErrInvalidState", err)
	}
}

func TestVersionService_EditAfterUndo(t *testing.T) {
	f := newVersionFixture(t)
	v2 := f.edit(t, "add an example")
	v3 := f.edit(t, "add a conclusion")

	target, err := f.versions.Undo(context.Background(), f.doc.ID)
	if err != nil || target.ID != v2.ID {
		t.Fatalf("Undo() = %v, %v; want version 2", target, err)
	}
	v4 := f.edit(t, "change the title")

	if v4.Sequence != 4 {
		t.Errorf("Sequence = %d, want 4", v4.Sequence)
	}
	want := v2.Content + "\n\nEdited per: change the title"
	if v4.Content != want {
		t.Errorf("edit after undo built on %q, want content of version %d", v4.Content, v2.Sequence)
	}

	if got := diff.Summarize(v2.Content, v4.Content); v4.DiffSummary != got {
		t.Errorf("DiffSummary = %q, want diff against undone-to version %q", v4.DiffSummary, got)
	}
	if fromV3 := diff.Summarize(v3.Content, v4.Content); v4.DiffSummary == fromV3 {
		t.Errorf("DiffSummary was computed against version 3: %q", v4.DiffSummary)
	}

	want4 := []events.Type{events.VersionCreated, events.VersionCreated, events.VersionRestored, events.VersionCreated}
	if types := f.pub.types(); !slices.Equal(types, want4) {
		t.Errorf("events = %v, want %v", types, want4)
	}
}

func TestVersionService_Restore(t *testing.T) {
	f := newVersionFixture(t)
	f.edit(t, "add an example")
	f.edit(t, "add a conclusion")
	h, _ := f.versions.History(context.Background(), f.doc.ID)
	first := h.Versions[0]

	got, err := f.versions.Restore(context.Background(), f.doc.ID, first.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got.ID != first.ID || f.current(t).Content != first.Content {
		t.Error("Restore() did not move pointer to version 1")
	}

	last := h.Versions[2]
	if _, err := f.versions.Restore(context.Background(), f.doc.ID, last.ID); err != nil {
		t.Fatalf("Restore() forward error = %v", err)
	}
	if f.current(t).CurrentVersionID != last.ID {
		t.Error("Restore() did not move pointer forward")
	}

	if _, err := f.versions.Restore(context.Background(), f.doc.ID, "nope"); !domain.IsNotFound(err) {
		t.Errorf("Restore(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestVersionService_ClearHistory(t *testing.T) {
	f := newVersionFixture(t)
	f.edit(t, "add an example")
	f.edit(t, "add a conclusion")
	live := f.current(t).Content

	v, err := f.versions.ClearHistory(context.Background(), f.doc.ID)
	if err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if v.Sequence != 1 || v.Content != live || v.Instruction != nil {
		t.Errorf("ClearHistory() = %+v", v)
	}

	h, _ := f.versions.History(context.Background(), f.doc.ID)
	if len(h.Versions) != 1 || h.CurrentVersionID != v.ID {
		t.Errorf("history after clear = %d versions, current %q", len(h.Versions), h.CurrentVersionID)
	}
	if _, err := f.versions.Undo(context.Background(), f.doc.ID); !domain.IsInvalidState(err) {
		t.Errorf("Undo() after clear error = %v", err)
	}

	if types := f.pub.types(); types[len(types)-1] != events.HistoryCleared {
		t.Errorf("last event = %s, want %s", types[len(types)-1], events.HistoryCleared)
	}
}
