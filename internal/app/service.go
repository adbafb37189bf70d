package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"gradportal/api/internal/archive"
	"gradportal/api/internal/auth"
	"gradportal/api/internal/authpw"
	"gradportal/api/internal/config"
	"gradportal/api/internal/document"
	"gradportal/api/internal/email"
	"gradportal/api/internal/files"
	"gradportal/api/internal/live"
	"gradportal/api/internal/rbac"
	"gradportal/api/internal/search"
	"gradportal/api/internal/session"
	"gradportal/api/internal/store"
	"gradportal/api/internal/util"
	"gradportal/api/internal/version"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type ProposalAttachment struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type ProposalInput struct {
	Title      string
	Abstract   string
	Attachment *ProposalAttachment
}

type DecideProposalInput struct {
	Note          string   `json:"note"`
	SupervisorID  string   `json:"supervisorId"`
	ChapterTitles []string `json:"chapterTitles"`
}

type SaveContentInput struct {
	Content json.RawMessage `json:"content"`
	// Immediate skips the debounce window, committing the version row
	// before the call returns. Used by explicit save actions.
	Immediate bool `json:"immediate"`
}

type CreateCommentInput struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Text string `json:"text"`
}

type ApproveChapterInput struct {
	NextDeadline *time.Time `json:"nextDeadline"`
}

type CreateUserInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// defaultChapterTitles seeds a project's chapter list when the approving
// admin does not supply one.
var defaultChapterTitles = []string{
	"Chapter 1: Introduction",
	"Chapter 2: Literature Review",
	"Chapter 3: Methodology",
	"Chapter 4: Results and Discussion",
	"Chapter 5: Conclusion",
}

var allowedAdminRoles = map[string]struct{}{
	"student":    {},
	"supervisor": {},
	"admin":      {},
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	ListUsers(context.Context) ([]store.User, error)
	DeactivateUser(context.Context, string) (bool, error)
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error
	UpdateUserPassword(context.Context, string, string) error
	CreatePasswordReset(context.Context, string, string, time.Time) error
	GetPasswordReset(context.Context, string) (string, error)
	MarkPasswordResetUsed(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertProposal(context.Context, store.Proposal) error
	GetProposal(context.Context, string) (store.Proposal, error)
	ListProposals(context.Context, string, string) ([]store.Proposal, error)
	DecideProposal(context.Context, string, string, string, string) (bool, error)
	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjectsForUser(context.Context, string) ([]store.Project, error)
	InsertChapter(context.Context, store.Chapter) error
	GetChapter(context.Context, string) (store.Chapter, error)
	ListChapters(context.Context, string) ([]store.Chapter, error)
	NextSaveSeq(context.Context, string) (int64, error)
	RewriteChapterContent(context.Context, string, string) error
	SubmitChapter(context.Context, string) (bool, error)
	ApproveChapter(context.Context, string) (bool, error)
	ActivateChapter(context.Context, string, time.Time) error
	NextChapter(context.Context, string, int) (*store.Chapter, error)
	ListVersions(context.Context, string, int) ([]store.Version, error)
	GetVersion(context.Context, string, string) (store.Version, error)
	VersionCount(context.Context, string) (int, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string, bool) ([]store.Comment, error)
	InsertReply(context.Context, string, store.Reply) error
	ResolveComment(context.Context, string) (bool, error)
	DeleteComment(context.Context, string) (bool, error)
	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string) (bool, error)
	InsertMessage(context.Context, store.Message) error
	ListConversation(context.Context, string, string, int) ([]store.Message, error)
	UnreadMessageCount(context.Context, string) (int, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PGSessionStore carries refresh sessions on the relational store when
// Redis is unavailable.
type PGSessionStore struct {
	Store *store.PostgresStore
}

func (p PGSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.Store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p PGSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.Store.LookupRefreshSession(ctx, tokenHash)
}

func (p PGSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.Store.RevokeRefreshSession(ctx, tokenHash)
}

type archiveStore interface {
	EnsureProjectRepo(projectID, projectTitle, author string) error
	CommitChapter(projectID string, entry archive.Entry, message string) (archive.CommitInfo, error)
	History(projectID string, limit int) ([]archive.CommitInfo, error)
}

type saveRecorder interface {
	Record(chapterID, content string, seq int64)
	RecordNow(ctx context.Context, chapterID, content string, seq int64) error
	Flush(chapterID string)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
	IndexChapter(c search.ChapterRecord)
	IndexComment(c search.CommentRecord)
	DeleteComment(id string)
}

type liveHub interface {
	Publish(chapterID, msgType string, payload any)
	CloseChapter(chapterID string)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendChapterApprovedEmail(to, userName, chapterTitle, chapterURL string) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, key, downloadName string, expiry time.Duration) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	pw       *authpw.Service
	archive  archiveStore
	recorder saveRecorder
	search   searchIndex
	hub      liveHub
	mail     mailer
	files    fileStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, arch *archive.Service, rec *version.Recorder) *Service {
	return newService(cfg, dataStore, PGSessionStore{Store: dataStore}, arch, rec)
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, arch *archive.Service, rec *version.Recorder) *Service {
	return newService(cfg, dataStore, sessions, arch, rec)
}

func newService(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, arch *archive.Service, rec *version.Recorder) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		pw:       authpw.NewService(dataStore),
		archive:  arch,
		recorder: rec,
	}
}

func (s *Service) AttachSearch(sv *search.Service) { s.search = sv }
func (s *Service) AttachHub(h *live.Hub)           { s.hub = h }
func (s *Service) AttachEmail(m *email.Service)    { s.mail = m }
func (s *Service) AttachFiles(f *files.Service)    { s.files = f }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- auth and sessions ---

func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (map[string]any, error) {
	resp, err := s.pw.SignUp(ctx, authpw.SignUpRequest{
		Email:       strings.TrimSpace(strings.ToLower(emailAddr)),
		Password:    password,
		DisplayName: strings.TrimSpace(displayName),
	})
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	result := map[string]any{
		"userId":              resp.UserID,
		"requiresEmailVerify": resp.RequiresEmailVerify,
	}
	if s.mail != nil && s.mail.IsConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.BaseURL, resp.VerificationToken)
		if err := s.mail.SendVerificationEmail(emailAddr, displayName, verifyURL); err != nil {
			return nil, fmt.Errorf("send verification email: %w", err)
		}
	} else {
		// No SMTP configured: surface the token so local setups can
		// complete the flow without a mailbox.
		result["devVerificationToken"] = resp.VerificationToken
	}
	return result, nil
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	resp, err := s.pw.SignIn(ctx, authpw.SignInRequest{
		Email:    strings.TrimSpace(strings.ToLower(emailAddr)),
		Password: password,
	})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "token is required", nil)
	}
	if err := s.pw.VerifyEmail(ctx, token); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (map[string]any, error) {
	token, err := s.pw.RequestPasswordReset(ctx, strings.TrimSpace(strings.ToLower(emailAddr)))
	if err != nil {
		// Do not reveal whether the address exists.
		return map[string]any{"ok": true}, nil
	}
	if s.mail != nil && s.mail.IsConfigured() {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.BaseURL, token)
		if err := s.mail.SendPasswordResetEmail(emailAddr, "", resetURL); err != nil {
			return nil, fmt.Errorf("send reset email: %w", err)
		}
		return map[string]any{"ok": true}, nil
	}
	return map[string]any{"ok": true, "devResetToken": token}, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.pw.ResetPassword(ctx, authpw.ResetPasswordRequest{
		Token:       token,
		NewPassword: newPassword,
	}); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- proposals ---

func (s *Service) CreateProposal(ctx context.Context, session Session, input ProposalInput) (map[string]any, error) {
	if session.Role != "student" {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only students submit proposals", nil)
	}
	title := strings.TrimSpace(input.Title)
	abstract := strings.TrimSpace(input.Abstract)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if abstract == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "abstract is required", nil)
	}

	attachmentKey := ""
	if input.Attachment != nil {
		if s.files == nil {
			return nil, domainError(http.StatusServiceUnavailable, "FILE_STORAGE_UNAVAILABLE", "attachment storage is not configured", nil)
		}
		attachmentKey = "proposals/" + util.NewID("att") + "/" + path.Base(input.Attachment.Name)
		if _, err := s.files.Upload(ctx, attachmentKey, input.Attachment.Reader, input.Attachment.Size, input.Attachment.ContentType); err != nil {
			return nil, fmt.Errorf("store attachment: %w", err)
		}
	}

	proposal := store.Proposal{
		ID:            util.NewID("prop"),
		StudentID:     session.UserID,
		StudentName:   session.UserName,
		Title:         title,
		Abstract:      abstract,
		AttachmentKey: attachmentKey,
		Status:        "PENDING",
	}
	if err := s.store.InsertProposal(ctx, proposal); err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, "proposal_submitted",
		fmt.Sprintf("%s submitted proposal %q", session.UserName, title),
		"/proposals/"+proposal.ID)

	stored, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return proposalMap(proposal), nil
	}
	return proposalMap(stored), nil
}

func (s *Service) ListProposals(ctx context.Context, session Session, status string) ([]map[string]any, error) {
	studentID := ""
	if !s.Can(session.Role, rbac.ActionAdmin) {
		studentID = session.UserID
	}
	proposals, err := s.store.ListProposals(ctx, strings.ToUpper(strings.TrimSpace(status)), studentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(proposals))
	for _, p := range proposals {
		items = append(items, proposalMap(p))
	}
	return items, nil
}

func (s *Service) GetProposal(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.StudentID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not your proposal", nil)
	}
	return proposalMap(proposal), nil
}

func (s *Service) ProposalAttachmentURL(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.StudentID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not your proposal", nil)
	}
	if proposal.AttachmentKey == "" {
		return nil, sql.ErrNoRows
	}
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILE_STORAGE_UNAVAILABLE", "attachment storage is not configured", nil)
	}
	url, err := s.files.PresignedURL(ctx, proposal.AttachmentKey, path.Base(proposal.AttachmentKey), 15*time.Minute)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) DecideProposal(ctx context.Context, session Session, proposalID string, approve bool, input DecideProposalInput) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only admins decide proposals", nil)
	}
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if !approve {
		note := strings.TrimSpace(input.Note)
		if note == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a note is required when rejecting", nil)
		}
		changed, err := s.store.DecideProposal(ctx, proposalID, "REJECTED", session.UserID, note)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, domainError(http.StatusConflict, "CONFLICT", "proposal already decided", nil)
		}
		s.notify(ctx, proposal.StudentID, "proposal_rejected",
			fmt.Sprintf("Your proposal %q was rejected", proposal.Title),
			"/proposals/"+proposalID)
		stored, err := s.store.GetProposal(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		return proposalMap(stored), nil
	}

	supervisorID := strings.TrimSpace(input.SupervisorID)
	if supervisorID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "supervisorId is required on approval", nil)
	}
	supervisor, err := s.store.GetUserByID(ctx, supervisorID)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "supervisor not found", nil)
	}
	if supervisor.Role != "supervisor" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "assigned user is not a supervisor", nil)
	}

	changed, err := s.store.DecideProposal(ctx, proposalID, "APPROVED", session.UserID, strings.TrimSpace(input.Note))
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "CONFLICT", "proposal already decided", nil)
	}

	project := store.Project{
		ID:             util.NewID("prj"),
		Title:          proposal.Title,
		Field:          proposal.Abstract,
		StudentID:      proposal.StudentID,
		StudentName:    proposal.StudentName,
		SupervisorID:   supervisor.ID,
		SupervisorName: supervisor.DisplayName,
		Status:         "active",
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}

	titles := input.ChapterTitles
	if len(titles) == 0 {
		titles = defaultChapterTitles
	}
	emptyDoc, _ := document.Empty().Snapshot()
	for i, title := range titles {
		chapter := store.Chapter{
			ID:        util.NewID("chp"),
			ProjectID: project.ID,
			Title:     strings.TrimSpace(title),
			SortOrder: i + 1,
			Content:   string(emptyDoc),
			Status:    "pending",
		}
		if err := s.store.InsertChapter(ctx, chapter); err != nil {
			return nil, err
		}
	}

	if s.archive != nil {
		if err := s.archive.EnsureProjectRepo(project.ID, project.Title, session.UserName); err != nil {
			return nil, fmt.Errorf("open project archive: %w", err)
		}
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{
			ID:          project.ID,
			Title:       project.Title,
			Field:       project.Field,
			StudentName: proposal.StudentName,
			Status:      project.Status,
		})
	}

	s.notify(ctx, proposal.StudentID, "proposal_approved",
		fmt.Sprintf("Your proposal %q was approved", proposal.Title),
		"/projects/"+project.ID)
	s.notify(ctx, supervisor.ID, "project_assigned",
		fmt.Sprintf("You supervise %q by %s", project.Title, proposal.StudentName),
		"/projects/"+project.ID)

	stored, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return projectMap(stored), nil
}

// --- projects ---

func (s *Service) ListProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	projects, err := s.store.ListProjectsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectMap(p))
	}
	return items, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}
	chapters, err := s.store.ListChapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	chapterItems := make([]map[string]any, 0, len(chapters))
	for _, c := range chapters {
		chapterItems = append(chapterItems, chapterSummaryMap(c))
	}
	unread, err := s.store.UnreadMessageCount(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	result := projectMap(project)
	result["chapters"] = chapterItems
	result["unreadMessages"] = unread
	return result, nil
}

func (s *Service) ListProjectChapters(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}
	chapters, err := s.store.ListChapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(chapters))
	for _, c := range chapters {
		items = append(items, chapterSummaryMap(c))
	}
	return items, nil
}

// --- chapters ---

func (s *Service) GetChapter(ctx context.Context, session Session, chapterID string) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}

	comments, err := s.store.ListComments(ctx, chapterID, false)
	if err != nil {
		return nil, err
	}
	commentItems := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		commentItems = append(commentItems, commentMap(c))
	}
	versionCount, err := s.store.VersionCount(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	result := chapterSummaryMap(chapter)
	result["content"] = json.RawMessage(chapter.Content)
	result["comments"] = commentItems
	result["versionCount"] = versionCount
	return result, nil
}

func (s *Service) SaveChapterContent(ctx context.Context, session Session, chapterID string, input SaveContentInput) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if project.StudentID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the assigned student edits chapter content", nil)
	}
	if chapter.Status == "approved" {
		return nil, domainError(http.StatusConflict, "CONFLICT", "approved chapters are locked", nil)
	}
	doc, err := document.Parse(input.Content)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is not a valid document", nil)
	}

	seq, err := s.store.NextSaveSeq(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if input.Immediate {
		if err := s.recorder.RecordNow(ctx, chapterID, string(input.Content), seq); err != nil {
			return nil, err
		}
	} else {
		s.recorder.Record(chapterID, string(input.Content), seq)
	}

	if s.search != nil {
		s.search.IndexChapter(search.ChapterRecord{
			ID:        chapter.ID,
			Title:     chapter.Title,
			Body:      doc.PlainText(),
			ProjectID: chapter.ProjectID,
			Status:    chapter.Status,
		})
	}
	return map[string]any{"chapterId": chapterID, "saveSeq": seq}, nil
}

func (s *Service) ListChapterVersions(ctx context.Context, session Session, chapterID string) (map[string]any, error) {
	_, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}

	limit := s.cfg.VersionListLimit
	if limit <= 0 {
		limit = 20
	}
	versions, err := s.store.ListVersions(ctx, chapterID, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.VersionCount(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(versions))
	for i, v := range versions {
		items = append(items, map[string]any{
			"id":        v.ID,
			"number":    total - i,
			"saveSeq":   v.SaveSeq,
			"createdAt": v.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"chapterId": chapterID,
		"total":     total,
		"items":     items,
	}, nil
}

// RestoreVersion points the chapter back at an earlier snapshot. No new
// version row is written; the history already contains the restored state.
func (s *Service) RestoreVersion(ctx context.Context, session Session, chapterID, versionID string) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if project.StudentID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the assigned student restores versions", nil)
	}
	if chapter.Status == "approved" {
		return nil, domainError(http.StatusConflict, "CONFLICT", "approved chapters are locked", nil)
	}

	stored, err := s.store.GetVersion(ctx, chapterID, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RewriteChapterContent(ctx, chapterID, stored.Content); err != nil {
		return nil, err
	}

	if s.search != nil {
		body := stored.Content
		if doc, err := document.Parse([]byte(stored.Content)); err == nil {
			body = doc.PlainText()
		}
		s.search.IndexChapter(search.ChapterRecord{
			ID:        chapter.ID,
			Title:     chapter.Title,
			Body:      body,
			ProjectID: chapter.ProjectID,
			Status:    chapter.Status,
		})
	}
	if s.hub != nil {
		s.hub.Publish(chapterID, live.UpdateType, json.RawMessage(stored.Content))
	}
	return map[string]any{
		"chapterId":  chapterID,
		"restoredTo": stored.ID,
	}, nil
}

func (s *Service) SubmitChapter(ctx context.Context, session Session, chapterID string) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if project.StudentID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the assigned student submits chapters", nil)
	}

	changed, err := s.store.SubmitChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "CONFLICT", "chapter is not awaiting submission", nil)
	}

	s.notify(ctx, project.SupervisorID, "chapter_submitted",
		fmt.Sprintf("%s submitted %q for review", session.UserName, chapter.Title),
		"/chapters/"+chapterID)
	if s.hub != nil {
		s.hub.Publish(chapterID, live.StatusType, map[string]any{"status": "reviewing"})
	}

	stored, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	return chapterSummaryMap(stored), nil
}

func (s *Service) ApproveChapter(ctx context.Context, session Session, chapterID string, input ApproveChapterInput) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if project.SupervisorID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the supervisor approves chapters", nil)
	}

	next, err := s.store.NextChapter(ctx, project.ID, chapter.SortOrder)
	if err != nil {
		return nil, err
	}
	if next != nil {
		if input.NextDeadline == nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a deadline for the next chapter is required", nil)
		}
		if !input.NextDeadline.After(time.Now()) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "deadline must be in the future", nil)
		}
	}

	changed, err := s.store.ApproveChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "CONFLICT", "chapter is not under review", nil)
	}

	approved, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if _, err := s.archive.CommitChapter(project.ID, archive.Entry{
			ChapterID:    approved.ID,
			ChapterTitle: approved.Title,
			ApprovedBy:   session.UserName,
			Content:      json.RawMessage(approved.Content),
		}, "Approve "+approved.Title); err != nil {
			return nil, fmt.Errorf("archive chapter: %w", err)
		}
	}

	result := chapterSummaryMap(approved)
	if next != nil {
		if err := s.store.ActivateChapter(ctx, next.ID, *input.NextDeadline); err != nil {
			return nil, err
		}
		activated, err := s.store.GetChapter(ctx, next.ID)
		if err != nil {
			return nil, err
		}
		result["nextChapter"] = chapterSummaryMap(activated)
		s.notify(ctx, project.StudentID, "chapter_activated",
			fmt.Sprintf("%q is open, due %s", activated.Title, input.NextDeadline.Format("2 Jan 2006")),
			"/chapters/"+activated.ID)
	}

	s.notify(ctx, project.StudentID, "chapter_approved",
		fmt.Sprintf("%q was approved", approved.Title),
		"/chapters/"+chapterID)
	if s.mail != nil && s.mail.IsConfigured() {
		if student, err := s.store.GetUserByID(ctx, project.StudentID); err == nil {
			chapterURL := fmt.Sprintf("%s/chapters/%s", s.cfg.BaseURL, chapterID)
			_ = s.mail.SendChapterApprovedEmail(student.Email, student.DisplayName, approved.Title, chapterURL)
		}
	}
	if s.hub != nil {
		s.hub.Publish(chapterID, live.StatusType, map[string]any{"status": "approved"})
		s.hub.CloseChapter(chapterID)
	}
	return result, nil
}

// --- comments ---

func (s *Service) ListComments(ctx context.Context, session Session, chapterID string, includeResolved bool) ([]map[string]any, error) {
	_, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}
	comments, err := s.store.ListComments(ctx, chapterID, includeResolved)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentMap(c))
	}
	return items, nil
}

// CreateComment persists the comment record first, then anchors the mark
// into the stored content. A failed content write deletes the record again
// so no unanchored comment survives.
func (s *Service) CreateComment(ctx context.Context, session Session, chapterID string, input CreateCommentInput) (map[string]any, error) {
	chapter, project, err := s.chapterProject(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if project.SupervisorID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the supervisor comments on chapters", nil)
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if input.From >= input.To {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "selection is empty", nil)
	}

	doc, err := document.Parse([]byte(chapter.Content))
	if err != nil {
		return nil, fmt.Errorf("parse chapter content: %w", err)
	}
	if input.From < 0 || input.To > doc.Size() {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "selection is outside the document", nil)
	}

	comment := store.Comment{
		ID:              util.NewID("cmt"),
		ChapterID:       chapterID,
		ProjectID:       project.ID,
		AuthorID:        session.UserID,
		AuthorName:      session.UserName,
		HighlightedText: doc.TextBetween(input.From, input.To),
		Text:            text,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	doc.ApplyMark("comment", input.From, input.To, map[string]any{"id": comment.ID})
	snapshot, err := doc.Snapshot()
	if err == nil {
		err = s.store.RewriteChapterContent(ctx, chapterID, string(snapshot))
	}
	if err != nil {
		_, _ = s.store.DeleteComment(ctx, comment.ID)
		return nil, fmt.Errorf("anchor comment mark: %w", err)
	}

	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:              comment.ID,
			Text:            comment.Text,
			HighlightedText: comment.HighlightedText,
			ChapterID:       chapterID,
			ProjectID:       project.ID,
		})
	}
	s.notify(ctx, project.StudentID, "comment_added",
		fmt.Sprintf("%s commented on %q", session.UserName, chapter.Title),
		"/chapters/"+chapterID)

	stored, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	result := commentMap(stored)
	if s.hub != nil {
		s.hub.Publish(chapterID, live.CommentType, result)
	}
	return result, nil
}

func (s *Service) AddReply(ctx context.Context, session Session, commentID, text string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, comment.ProjectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}

	if err := s.store.InsertReply(ctx, commentID, store.Reply{
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
		Text:       body,
	}); err != nil {
		return nil, err
	}

	recipient := project.StudentID
	if session.UserID == project.StudentID {
		recipient = project.SupervisorID
	}
	s.notify(ctx, recipient, "reply_added",
		fmt.Sprintf("%s replied to a comment", session.UserName),
		"/chapters/"+comment.ChapterID)

	stored, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	result := commentMap(stored)
	if s.hub != nil {
		s.hub.Publish(comment.ChapterID, live.CommentUpdateType, result)
	}
	return result, nil
}

// ResolveComment is one-way. The record is kept, the mark is stripped from
// the content so the highlight disappears for every participant.
func (s *Service) ResolveComment(ctx context.Context, session Session, commentID string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, comment.ProjectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(session, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "not a participant of this project", nil)
	}

	changed, err := s.store.ResolveComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "CONFLICT", "comment is already resolved", nil)
	}

	if err := s.stripCommentMark(ctx, comment.ChapterID, commentID); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:              comment.ID,
			Text:            comment.Text,
			HighlightedText: comment.HighlightedText,
			ChapterID:       comment.ChapterID,
			ProjectID:       comment.ProjectID,
			Resolved:        true,
		})
	}

	stored, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	result := commentMap(stored)
	if s.hub != nil {
		s.hub.Publish(comment.ChapterID, live.CommentUpdateType, result)
	}
	return result, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "not your comment", nil)
	}

	// Resolved comments already had their mark stripped.
	if !comment.IsResolved {
		if err := s.stripCommentMark(ctx, comment.ChapterID, commentID); err != nil {
			return err
		}
	}

	changed, err := s.store.DeleteComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !changed {
		return sql.ErrNoRows
	}

	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	if s.hub != nil {
		s.hub.Publish(comment.ChapterID, live.CommentDeleteType, map[string]any{"id": commentID})
	}
	return nil
}

func (s *Service) stripCommentMark(ctx context.Context, chapterID, commentID string) error {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return err
	}
	doc, err := document.Parse([]byte(chapter.Content))
	if err != nil {
		return fmt.Errorf("parse chapter content: %w", err)
	}
	if !doc.HasMark("comment", commentID) {
		return nil
	}
	doc.RemoveMark("comment", commentID)
	snapshot, err := doc.Snapshot()
	if err != nil {
		return err
	}
	return s.store.RewriteChapterContent(ctx, chapterID, string(snapshot))
}

// --- notifications ---

func (s *Service) ListNotifications(ctx context.Context, session Session) ([]map[string]any, error) {
	notifications, err := s.store.ListNotifications(ctx, session.UserID, 50)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, map[string]any{
			"id":        n.ID,
			"type":      n.Type,
			"text":      n.Text,
			"link":      nilIfEmpty(n.Link),
			"read":      n.Read,
			"createdAt": n.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	changed, err := s.store.MarkNotificationRead(ctx, notificationID, session.UserID)
	if err != nil {
		return err
	}
	if !changed {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID, notificationType, text, link string) {
	if userID == "" {
		return
	}
	_ = s.store.InsertNotification(ctx, store.Notification{
		ID:     util.NewID("ntf"),
		UserID: userID,
		Type:   notificationType,
		Text:   text,
		Link:   link,
	})
}

func (s *Service) notifyAdmins(ctx context.Context, notificationType, text, link string) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return
	}
	for _, u := range users {
		if u.Role != "admin" && u.Role != "superadmin" {
			continue
		}
		s.notify(ctx, u.ID, notificationType, text, link)
	}
}

// --- messages ---

func (s *Service) SendMessage(ctx context.Context, session Session, recipientID, body string) (map[string]any, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if recipientID == "" || recipientID == session.UserID {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a recipient is required", nil)
	}
	recipient, err := s.store.GetUserByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	message := store.Message{
		ID:          util.NewID("msg"),
		SenderID:    session.UserID,
		SenderName:  session.UserName,
		RecipientID: recipient.ID,
		Body:        text,
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}
	s.notify(ctx, recipient.ID, "message_received",
		fmt.Sprintf("New message from %s", session.UserName),
		"/messages/"+session.UserID)

	return map[string]any{
		"id":            message.ID,
		"senderId":      session.UserID,
		"senderName":    session.UserName,
		"recipientId":   recipient.ID,
		"recipientName": recipient.DisplayName,
		"body":          text,
	}, nil
}

func (s *Service) ListConversation(ctx context.Context, session Session, otherID string) ([]map[string]any, error) {
	if otherID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "'with' is required", nil)
	}
	messages, err := s.store.ListConversation(ctx, session.UserID, otherID, 100)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, map[string]any{
			"id":            m.ID,
			"senderId":      m.SenderID,
			"senderName":    m.SenderName,
			"recipientId":   m.RecipientID,
			"recipientName": m.RecipientName,
			"body":          m.Body,
			"read":          m.Read,
			"createdAt":     m.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

// --- search ---

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}}, nil
	}
	return s.search.Search(q), nil
}

// --- admin ---

func (s *Service) ListAllUsers(ctx context.Context, session Session) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userMap(u))
	}
	return items, nil
}

// CreateUser provisions supervisor and staff accounts. The account skips
// email verification; the admin hands over the credentials.
func (s *Service) CreateUser(ctx context.Context, session Session, input CreateUserInput) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
	}
	role := strings.ToLower(strings.TrimSpace(input.Role))
	if _, ok := allowedAdminRoles[role]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid role", nil)
	}
	if role == "admin" && session.Role != "superadmin" {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only superadmins create admin accounts", nil)
	}

	resp, err := s.pw.SignUp(ctx, authpw.SignUpRequest{
		Email:       strings.TrimSpace(strings.ToLower(input.Email)),
		Password:    input.Password,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        role,
	})
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if err := s.store.VerifyUserEmail(ctx, resp.VerificationToken); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, resp.UserID)
	if err != nil {
		return nil, err
	}
	return userMap(user), nil
}

func (s *Service) DeactivateUser(ctx context.Context, session Session, userID string) error {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
	}
	if userID == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot deactivate yourself", nil)
	}
	changed, err := s.store.DeactivateUser(ctx, userID)
	if err != nil {
		return err
	}
	if !changed {
		return sql.ErrNoRows
	}
	return nil
}

// --- helpers ---

func (s *Service) chapterProject(ctx context.Context, chapterID string) (store.Chapter, store.Project, error) {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return store.Chapter{}, store.Project{}, err
	}
	project, err := s.store.GetProject(ctx, chapter.ProjectID)
	if err != nil {
		return store.Chapter{}, store.Project{}, err
	}
	return chapter, project, nil
}

func (s *Service) canViewProject(session Session, project store.Project) bool {
	if s.Can(session.Role, rbac.ActionAdmin) {
		return true
	}
	return project.StudentID == session.UserID || project.SupervisorID == session.UserID
}

func userMap(u store.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"displayName": u.DisplayName,
		"email":       u.Email,
		"role":        u.Role,
		"verified":    u.IsEmailVerified,
		"deactivated": u.DeactivatedAt != nil,
		"createdAt":   u.CreatedAt.Format(time.RFC3339),
	}
}

func proposalMap(p store.Proposal) map[string]any {
	var reviewedAt any
	if p.ReviewedAt != nil {
		reviewedAt = p.ReviewedAt.Format(time.RFC3339)
	}
	return map[string]any{
		"id":            p.ID,
		"studentId":     p.StudentID,
		"studentName":   p.StudentName,
		"title":         p.Title,
		"abstract":      p.Abstract,
		"hasAttachment": p.AttachmentKey != "",
		"status":        p.Status,
		"reviewedBy":    nilIfEmpty(p.ReviewedBy),
		"reviewNote":    nilIfEmpty(p.ReviewNote),
		"reviewedAt":    reviewedAt,
		"createdAt":     p.CreatedAt.Format(time.RFC3339),
	}
}

func projectMap(p store.Project) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"title":          p.Title,
		"field":          p.Field,
		"studentId":      p.StudentID,
		"studentName":    p.StudentName,
		"supervisorId":   p.SupervisorID,
		"supervisorName": p.SupervisorName,
		"status":         p.Status,
		"createdAt":      p.CreatedAt.Format(time.RFC3339),
	}
}

func chapterSummaryMap(c store.Chapter) map[string]any {
	var deadline, submitted any
	if c.Deadline != nil {
		deadline = c.Deadline.Format(time.RFC3339)
	}
	if c.DateSubmitted != nil {
		submitted = c.DateSubmitted.Format(time.RFC3339)
	}
	return map[string]any{
		"id":            c.ID,
		"projectId":     c.ProjectID,
		"title":         c.Title,
		"sortOrder":     c.SortOrder,
		"status":        c.Status,
		"deadline":      deadline,
		"dateSubmitted": submitted,
		"saveSeq":       c.SaveSeq,
		"updatedAt":     c.UpdatedAt.Format(time.RFC3339),
	}
}

func commentMap(c store.Comment) map[string]any {
	replies := make([]map[string]any, 0, len(c.Replies))
	for _, r := range c.Replies {
		replies = append(replies, map[string]any{
			"authorId":   r.AuthorID,
			"authorName": r.AuthorName,
			"text":       r.Text,
			"createdAt":  r.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"id":              c.ID,
		"chapterId":       c.ChapterID,
		"authorId":        c.AuthorID,
		"authorName":      c.AuthorName,
		"highlightedText": c.HighlightedText,
		"text":            c.Text,
		"resolved":        c.IsResolved,
		"createdAt":       c.CreatedAt.Format(time.RFC3339),
		"replies":         replies,
	}
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
