package version

import (
	"context"
	"sync"
	"testing"
	"time"

	"gradportal/api/internal/store"
)

type fakeVersionStore struct {
	mu       sync.Mutex
	versions []store.Version
	updates  []string
	applied  bool
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{applied: true}
}

func (f *fakeVersionStore) InsertVersion(_ context.Context, item store.Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, item)
	return nil
}

func (f *fakeVersionStore) UpdateChapterContent(_ context.Context, chapterID, content string, seq int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, content)
	return f.applied, nil
}

func (f *fakeVersionStore) snapshot() []store.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Version, len(f.versions))
	copy(out, f.versions)
	return out
}

func TestRecordCoalescesBurst(t *testing.T) {
	fs := newFakeVersionStore()
	rec := NewRecorder(fs, 30*time.Millisecond, nil)

	rec.Record("chp_1", "first", 1)
	rec.Record("chp_1", "second", 2)
	rec.Record("chp_1", "third", 3)

	time.Sleep(120 * time.Millisecond)

	got := fs.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 version after burst, got %d", len(got))
	}
	if got[0].Content != "third" || got[0].SaveSeq != 3 {
		t.Fatalf("expected last write to win, got content=%q seq=%d", got[0].Content, got[0].SaveSeq)
	}
}

func TestRecordSeparateBurstsProduceSeparateVersions(t *testing.T) {
	fs := newFakeVersionStore()
	rec := NewRecorder(fs, 20*time.Millisecond, nil)

	rec.Record("chp_1", "one", 1)
	time.Sleep(80 * time.Millisecond)
	rec.Record("chp_1", "two", 2)
	time.Sleep(80 * time.Millisecond)

	if got := fs.snapshot(); len(got) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(got))
	}
}

func TestRecordChaptersAreIndependent(t *testing.T) {
	fs := newFakeVersionStore()
	rec := NewRecorder(fs, 20*time.Millisecond, nil)

	rec.Record("chp_1", "alpha", 1)
	rec.Record("chp_2", "beta", 1)
	time.Sleep(80 * time.Millisecond)

	got := fs.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected one version per chapter, got %d", len(got))
	}
}

func TestFlushCommitsImmediately(t *testing.T) {
	fs := newFakeVersionStore()
	rec := NewRecorder(fs, time.Hour, nil)

	rec.Record("chp_1", "draft", 5)
	rec.Flush("chp_1")

	got := fs.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected flush to persist the pending save, got %d versions", len(got))
	}
	if got[0].SaveSeq != 5 {
		t.Fatalf("expected seq 5, got %d", got[0].SaveSeq)
	}
}

func TestCloseFlushesAllPending(t *testing.T) {
	fs := newFakeVersionStore()
	rec := NewRecorder(fs, time.Hour, nil)

	rec.Record("chp_1", "a", 1)
	rec.Record("chp_2", "b", 1)
	rec.Close()

	if got := fs.snapshot(); len(got) != 2 {
		t.Fatalf("expected close to flush both chapters, got %d", len(got))
	}
}

func TestRecordNowKeepsVersionWhenContentUpdateStale(t *testing.T) {
	fs := newFakeVersionStore()
	fs.applied = false
	rec := NewRecorder(fs, time.Hour, nil)

	if err := rec.RecordNow(context.Background(), "chp_1", "old", 1); err != nil {
		t.Fatalf("RecordNow: %v", err)
	}
	if got := fs.snapshot(); len(got) != 1 {
		t.Fatalf("expected version row even when content update is stale, got %d", len(got))
	}
}
