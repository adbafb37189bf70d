package search

import (
	"context"

	"gradportal/api/internal/logger"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		logger.Sugar.Warnw("meilisearch error, falling back to pgfts", "error", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		logger.Sugar.Errorw("pgfts error", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(p ProjectRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProject(p); err != nil {
			logger.Sugar.Warnw("index project", "id", p.ID, "error", err)
		}
	}()
}

// IndexChapter indexes a chapter (fire-and-forget to Meilisearch).
func (s *Service) IndexChapter(c ChapterRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexChapter(c); err != nil {
			logger.Sugar.Warnw("index chapter", "id", c.ID, "error", err)
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			logger.Sugar.Warnw("index comment", "id", c.ID, "error", err)
		}
	}()
}

// DeleteComment removes a comment from the search index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			logger.Sugar.Warnw("delete comment from index", "id", id, "error", err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(projects []ProjectRecord, chapters []ChapterRecord, comments []CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if err := s.meili.IndexProjects(projects); err != nil {
		logger.Sugar.Warnw("reindex projects", "error", err)
	}
	if err := s.meili.IndexChapters(chapters); err != nil {
		logger.Sugar.Warnw("reindex chapters", "error", err)
	}
	if err := s.meili.IndexComments(comments); err != nil {
		logger.Sugar.Warnw("reindex comments", "error", err)
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into
// Meilisearch. flatten converts serialized chapter content to plain text.
func (s *Service) ReindexAllFromPG(ctx context.Context, flatten func(string) string) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	projects, chapters, comments, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		logger.Sugar.Warnw("reindex load failed", "error", err)
		return
	}
	if flatten != nil {
		for i := range chapters {
			chapters[i].Body = flatten(chapters[i].Body)
		}
	}
	s.ReindexAll(projects, chapters, comments)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
