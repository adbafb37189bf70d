package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

const userColumns = `id, display_name, email, password_hash, role, is_email_verified, verification_token, deactivated_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.DeactivatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email, role, is_email_verified, deactivated_at, created_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.DisplayName, &item.Email, &item.Role, &item.IsEmailVerified, &item.DeactivatedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeactivateUser(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET deactivated_at=NOW(), updated_at=NOW() WHERE id=$1 AND deactivated_at IS NULL`, userID)
	if err != nil {
		return false, fmt.Errorf("deactivate user: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- sessions ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- proposals ----

func (s *PostgresStore) InsertProposal(ctx context.Context, item Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, student_id, student_name, title, abstract, attachment_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.StudentID, item.StudentName, item.Title, item.Abstract, item.AttachmentKey, item.Status)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

const proposalColumns = `id, student_id, student_name, title, abstract, attachment_key, status, reviewed_by, review_note, created_at, reviewed_at`

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var item Proposal
	err := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=$1`, proposalID).Scan(
		&item.ID, &item.StudentID, &item.StudentName, &item.Title, &item.Abstract,
		&item.AttachmentKey, &item.Status, &item.ReviewedBy, &item.ReviewNote,
		&item.CreatedAt, &item.ReviewedAt,
	)
	if err != nil {
		return Proposal{}, err
	}
	return item, nil
}

// ListProposals returns all proposals, optionally filtered by status or student.
func (s *PostgresStore) ListProposals(ctx context.Context, status, studentID string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR student_id = $2)
		ORDER BY created_at DESC
	`, status, studentID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		var item Proposal
		if err := rows.Scan(
			&item.ID, &item.StudentID, &item.StudentName, &item.Title, &item.Abstract,
			&item.AttachmentKey, &item.Status, &item.ReviewedBy, &item.ReviewNote,
			&item.CreatedAt, &item.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

// DecideProposal stamps a review decision on a pending proposal. Returns false
// when the proposal was not pending (already decided).
func (s *PostgresStore) DecideProposal(ctx context.Context, proposalID, status, reviewedBy, note string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET status=$2, reviewed_by=$3, review_note=$4, reviewed_at=NOW()
		WHERE id=$1 AND status='PENDING'
	`, proposalID, status, reviewedBy, note)
	if err != nil {
		return false, fmt.Errorf("decide proposal: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ---- projects ----

const projectColumns = `id, title, field, student_id, student_name, supervisor_id, supervisor_name, status, created_at, updated_at`

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, field, student_id, student_name, supervisor_id, supervisor_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Title, item.Field, item.StudentID, item.StudentName, item.SupervisorID, item.SupervisorName, item.Status)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, projectID).Scan(
		&item.ID, &item.Title, &item.Field, &item.StudentID, &item.StudentName,
		&item.SupervisorID, &item.SupervisorName, &item.Status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

// ListProjectsForUser returns projects where the user is the student or the
// supervisor. An empty userID lists everything (admin view).
func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE $1 = '' OR student_id = $1 OR supervisor_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Field, &item.StudentID, &item.StudentName,
			&item.SupervisorID, &item.SupervisorName, &item.Status, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// ---- chapters ----

const chapterColumns = `id, project_id, title, sort_order, content, status, deadline, date_submitted, save_seq, updated_at`

func scanChapter(scan func(...any) error) (Chapter, error) {
	var item Chapter
	err := scan(
		&item.ID, &item.ProjectID, &item.Title, &item.SortOrder, &item.Content,
		&item.Status, &item.Deadline, &item.DateSubmitted, &item.SaveSeq, &item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertChapter(ctx context.Context, item Chapter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, project_id, title, sort_order, content, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.ProjectID, item.Title, item.SortOrder, item.Content, item.Status)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChapter(ctx context.Context, chapterID string) (Chapter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id=$1`, chapterID)
	item, err := scanChapter(row.Scan)
	if err != nil {
		return Chapter{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListChapters(ctx context.Context, projectID string) ([]Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chapterColumns+` FROM chapters WHERE project_id=$1 ORDER BY sort_order
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	items := make([]Chapter, 0)
	for rows.Next() {
		item, err := scanChapter(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return items, nil
}

// NextSaveSeq allocates the next save sequence number for a chapter.
func (s *PostgresStore) NextSaveSeq(ctx context.Context, chapterID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE chapters SET save_seq = save_seq + 1 WHERE id=$1 RETURNING save_seq
	`, chapterID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// UpdateChapterContent writes the current content, guarded by the save
// sequence: a write carrying a lower sequence than the stored one is a stale
// overlapping save and is discarded.
func (s *PostgresStore) UpdateChapterContent(ctx context.Context, chapterID, content string, seq int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET content=$2, updated_at=NOW() WHERE id=$1 AND save_seq <= $3
	`, chapterID, content, seq)
	if err != nil {
		return false, fmt.Errorf("update chapter content: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RewriteChapterContent replaces content unconditionally. Used for mark
// stripping and version restore, which are not ordinary edit saves.
func (s *PostgresStore) RewriteChapterContent(ctx context.Context, chapterID, content string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chapters SET content=$2, updated_at=NOW() WHERE id=$1`, chapterID, content)
	if err != nil {
		return fmt.Errorf("rewrite chapter content: %w", err)
	}
	return nil
}

// SubmitChapter moves a pending chapter to reviewing, stamping the submission
// time. Returns false when the chapter was not pending.
func (s *PostgresStore) SubmitChapter(ctx context.Context, chapterID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET status='reviewing', date_submitted=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='pending'
	`, chapterID)
	if err != nil {
		return false, fmt.Errorf("submit chapter: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ApproveChapter moves a reviewing chapter to approved. Returns false when the
// chapter was not in reviewing.
func (s *PostgresStore) ApproveChapter(ctx context.Context, chapterID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET status='approved', updated_at=NOW()
		WHERE id=$1 AND status='reviewing'
	`, chapterID)
	if err != nil {
		return false, fmt.Errorf("approve chapter: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ActivateChapter opens the next chapter for work after its predecessor is
// approved, attaching the supervisor-supplied deadline.
func (s *PostgresStore) ActivateChapter(ctx context.Context, chapterID string, deadline time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET status='reviewing', deadline=$2, updated_at=NOW() WHERE id=$1
	`, chapterID, deadline)
	if err != nil {
		return fmt.Errorf("activate chapter: %w", err)
	}
	return nil
}

// NextChapter returns the chapter following sortOrder in the project's ordered
// list, or nil when the approved chapter was the last one.
func (s *PostgresStore) NextChapter(ctx context.Context, projectID string, sortOrder int) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+chapterColumns+`
		FROM chapters
		WHERE project_id=$1 AND sort_order > $2
		ORDER BY sort_order
		LIMIT 1
	`, projectID, sortOrder)
	item, err := scanChapter(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next chapter: %w", err)
	}
	return &item, nil
}

// ---- versions ----

func (s *PostgresStore) InsertVersion(ctx context.Context, item Version) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapter_versions (id, chapter_id, content, save_seq)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.ChapterID, item.Content, item.SaveSeq)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, chapterID string, limit int) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_id, content, save_seq, created_at
		FROM chapter_versions
		WHERE chapter_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, chapterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		var item Version
		if err := rows.Scan(&item.ID, &item.ChapterID, &item.Content, &item.SaveSeq, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, chapterID, versionID string) (Version, error) {
	var item Version
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_id, content, save_seq, created_at
		FROM chapter_versions
		WHERE id=$1 AND chapter_id=$2
	`, versionID, chapterID).Scan(&item.ID, &item.ChapterID, &item.Content, &item.SaveSeq, &item.CreatedAt)
	if err != nil {
		return Version{}, err
	}
	return item, nil
}

func (s *PostgresStore) VersionCount(ctx context.Context, chapterID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chapter_versions WHERE chapter_id=$1`, chapterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// ---- comments ----

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, chapter_id, project_id, author_id, author_name, highlighted_text, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ChapterID, item.ProjectID, item.AuthorID, item.AuthorName, item.HighlightedText, item.Text)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_id, project_id, author_id, author_name, highlighted_text, body, is_resolved, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(
		&item.ID, &item.ChapterID, &item.ProjectID, &item.AuthorID, &item.AuthorName,
		&item.HighlightedText, &item.Text, &item.IsResolved, &item.CreatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

// ListComments returns a chapter's comments oldest-first with replies
// populated. Resolved comments are excluded from the active view unless
// includeResolved is set.
func (s *PostgresStore) ListComments(ctx context.Context, chapterID string, includeResolved bool) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_id, project_id, author_id, author_name, highlighted_text, body, is_resolved, created_at
		FROM comments
		WHERE chapter_id=$1 AND ($2 OR is_resolved=FALSE)
		ORDER BY created_at
	`, chapterID, includeResolved)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	index := make(map[string]int)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(
			&item.ID, &item.ChapterID, &item.ProjectID, &item.AuthorID, &item.AuthorName,
			&item.HighlightedText, &item.Text, &item.IsResolved, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		item.Replies = make([]Reply, 0)
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	replyRows, err := s.db.QueryContext(ctx, `
		SELECT r.comment_id, r.author_id, r.author_name, r.body, r.created_at
		FROM comment_replies r
		JOIN comments c ON c.id = r.comment_id
		WHERE c.chapter_id=$1
		ORDER BY r.id
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer replyRows.Close()

	for replyRows.Next() {
		var commentID string
		var reply Reply
		if err := replyRows.Scan(&commentID, &reply.AuthorID, &reply.AuthorName, &reply.Text, &reply.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		if i, ok := index[commentID]; ok {
			items[i].Replies = append(items[i].Replies, reply)
		}
	}
	if err := replyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertReply(ctx context.Context, commentID string, reply Reply) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_replies (comment_id, author_id, author_name, body)
		VALUES ($1, $2, $3, $4)
	`, commentID, reply.AuthorID, reply.AuthorName, reply.Text)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// ResolveComment marks a comment resolved. Returns false when it was already
// resolved; resolution is one-way.
func (s *PostgresStore) ResolveComment(ctx context.Context, commentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE comments SET is_resolved=TRUE WHERE id=$1 AND is_resolved=FALSE
	`, commentID)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ---- notifications ----

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, body, link)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.UserID, item.Type, item.Text, item.Link)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, body, link, read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Text, &item.Link, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2
	`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ---- messages ----

func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, sender_name, recipient_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.SenderID, item.SenderName, item.RecipientID, item.Body)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListConversation returns the two-party message history oldest-first and
// marks the other party's messages as read.
func (s *PostgresStore) ListConversation(ctx context.Context, userID, otherID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.sender_id, m.sender_name, m.recipient_id, u.display_name, m.body, m.read, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.recipient_id
		WHERE (m.sender_id=$1 AND m.recipient_id=$2) OR (m.sender_id=$2 AND m.recipient_id=$1)
		ORDER BY m.created_at
		LIMIT $3
	`, userID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.SenderID, &item.SenderName, &item.RecipientID, &item.RecipientName, &item.Body, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read=TRUE WHERE recipient_id=$1 AND sender_id=$2 AND read=FALSE
	`, userID, otherID); err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UnreadMessageCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE recipient_id=$1 AND read=FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
