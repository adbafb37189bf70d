// Package version persists immutable chapter snapshots. Every committed save
// appends one version row and refreshes the chapter's current content; the
// two writes are not atomic, so a crash between them leaves the chapter one
// save behind its newest version, which is accepted.
package version

import (
	"context"
	"sync"
	"time"

	"gradportal/api/internal/store"
	"gradportal/api/internal/util"

	"go.uber.org/zap"
)

type Store interface {
	InsertVersion(ctx context.Context, item store.Version) error
	UpdateChapterContent(ctx context.Context, chapterID, content string, seq int64) (bool, error)
}

// Recorder debounces incoming content changes per chapter and records one
// snapshot per settled burst. RecordNow itself performs no coalescing: every
// call appends exactly one version entry.
type Recorder struct {
	store    Store
	debounce time.Duration
	log      *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]*pendingSave
}

type pendingSave struct {
	timer   *time.Timer
	content string
	seq     int64
}

func NewRecorder(s Store, debounce time.Duration, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{
		store:    s,
		debounce: debounce,
		log:      log,
		pending:  make(map[string]*pendingSave),
	}
}

// Record schedules a snapshot for the chapter. Bursts of calls within the
// debounce window coalesce into a single persisted entry carrying the last
// content and the highest sequence seen.
func (r *Recorder) Record(chapterID, content string, seq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.pending[chapterID]; ok {
		entry.content = content
		if seq > entry.seq {
			entry.seq = seq
		}
		entry.timer.Reset(r.debounce)
		return
	}

	entry := &pendingSave{content: content, seq: seq}
	entry.timer = time.AfterFunc(r.debounce, func() {
		r.flush(chapterID)
	})
	r.pending[chapterID] = entry
}

// Flush forces a pending save to commit immediately, e.g. when the editing
// session closes. No-op when nothing is pending.
func (r *Recorder) Flush(chapterID string) {
	r.flush(chapterID)
}

// Close flushes every pending save.
func (r *Recorder) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for chapterID := range r.pending {
		ids = append(ids, chapterID)
	}
	r.mu.Unlock()
	for _, chapterID := range ids {
		r.flush(chapterID)
	}
}

func (r *Recorder) flush(chapterID string) {
	r.mu.Lock()
	entry, ok := r.pending[chapterID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(r.pending, chapterID)
	content, seq := entry.content, entry.seq
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.RecordNow(ctx, chapterID, content, seq); err != nil {
		// The next edit retries via a fresh debounce cycle; surface the
		// failure instead of swallowing it.
		r.log.Errorw("snapshot save failed", "chapter", chapterID, "seq", seq, "error", err)
	}
}

// RecordNow appends one version entry and updates the chapter's current
// content. The content update is sequence-guarded: when a newer save already
// landed, the stale write is discarded while the version row is still kept,
// so history remains complete and the chapter converges on the newest save.
func (r *Recorder) RecordNow(ctx context.Context, chapterID, content string, seq int64) error {
	if err := r.store.InsertVersion(ctx, store.Version{
		ID:        util.NewID("ver"),
		ChapterID: chapterID,
		Content:   content,
		SaveSeq:   seq,
	}); err != nil {
		return err
	}
	applied, err := r.store.UpdateChapterContent(ctx, chapterID, content, seq)
	if err != nil {
		return err
	}
	if !applied {
		r.log.Infow("stale save superseded", "chapter", chapterID, "seq", seq)
	}
	return nil
}
