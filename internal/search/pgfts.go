package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects, chapters, and comments
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProject {
		projWhere := "p.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			projWhere += fmt.Sprintf(" AND p.id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.title,
				ts_headline('english', coalesce(p.field, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS project_id, ''::text AS chapter_id,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE %s`, tsQuery, tsQuery, projWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultChapter {
		chapWhere := "c.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			chapWhere += fmt.Sprintf(" AND c.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'chapter'::text AS type, c.id, c.title,
				ts_headline('english', coalesce(c.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.project_id, c.id AS chapter_id,
				ts_rank(c.fts, %s) AS rank
			FROM chapters c
			WHERE %s`, tsQuery, tsQuery, chapWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		comWhere := "cm.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			comWhere += fmt.Sprintf(" AND cm.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, cm.id, cm.highlighted_text AS title,
				ts_headline('english', coalesce(cm.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				cm.project_id, cm.chapter_id,
				ts_rank(cm.fts, %s) AS rank
			FROM comments cm
			WHERE %s`, tsQuery, tsQuery, comWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, chapter_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.ChapterID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing. Chapter
// bodies come back as raw serialized content; the caller flattens them to
// plain text before pushing to Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []ChapterRecord, []CommentRecord, error) {
	projRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.field, u.display_name, p.status
		FROM projects p
		JOIN users u ON u.id = p.student_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projRows.Close()

	projects := make([]ProjectRecord, 0)
	for projRows.Next() {
		var rec ProjectRecord
		if err := projRows.Scan(&rec.ID, &rec.Title, &rec.Field, &rec.StudentName, &rec.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, rec)
	}
	if err := projRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	chapRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, project_id, status
		FROM chapters
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load chapters: %w", err)
	}
	defer chapRows.Close()

	chapters := make([]ChapterRecord, 0)
	for chapRows.Next() {
		var rec ChapterRecord
		if err := chapRows.Scan(&rec.ID, &rec.Title, &rec.Body, &rec.ProjectID, &rec.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, rec)
	}
	if err := chapRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate chapters: %w", err)
	}

	comRows, err := p.db.QueryContext(ctx, `
		SELECT id, body, highlighted_text, chapter_id, project_id, is_resolved
		FROM comments
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer comRows.Close()

	comments := make([]CommentRecord, 0)
	for comRows.Next() {
		var rec CommentRecord
		if err := comRows.Scan(&rec.ID, &rec.Text, &rec.HighlightedText, &rec.ChapterID, &rec.ProjectID, &rec.Resolved); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, rec)
	}
	if err := comRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return projects, chapters, comments, nil
}
