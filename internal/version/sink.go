package version

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SeqSource hands out per-chapter monotonic save sequence numbers.
type SeqSource interface {
	NextSaveSeq(ctx context.Context, chapterID string) (int64, error)
}

// Sink feeds live-channel content updates into the recorder, stamping each
// save with its sequence number.
type Sink struct {
	seq SeqSource
	rec *Recorder
	log *zap.SugaredLogger
}

func NewSink(seq SeqSource, rec *Recorder, log *zap.SugaredLogger) *Sink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sink{seq: seq, rec: rec, log: log}
}

func (s *Sink) Save(chapterID string, content []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := s.seq.NextSaveSeq(ctx, chapterID)
	if err != nil {
		s.log.Errorw("next save seq", "chapter_id", chapterID, "error", err)
		return
	}
	s.rec.Record(chapterID, string(content), seq)
}

func (s *Sink) Flush(chapterID string) {
	s.rec.Flush(chapterID)
}
