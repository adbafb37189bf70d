package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Project struct {
	ID             string
	Title          string
	Field          string
	StudentID      string
	StudentName    string
	SupervisorID   string
	SupervisorName string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Proposal struct {
	ID            string
	StudentID     string
	StudentName   string
	Title         string
	Abstract      string
	AttachmentKey string
	Status        string
	ReviewedBy    string
	ReviewNote    string
	CreatedAt     time.Time
	ReviewedAt    *time.Time
}

// Chapter content is the serialized document snapshot. SaveSeq is the
// per-chapter monotonic save counter; content writes carrying a lower
// sequence than the stored one are discarded.
type Chapter struct {
	ID            string
	ProjectID     string
	Title         string
	SortOrder     int
	Content       string
	Status        string
	Deadline      *time.Time
	DateSubmitted *time.Time
	SaveSeq       int64
	UpdatedAt     time.Time
}

// Version rows are append-only; they are never mutated or deleted.
type Version struct {
	ID        string
	ChapterID string
	Content   string
	SaveSeq   int64
	CreatedAt time.Time
}

type Comment struct {
	ID              string
	ChapterID       string
	ProjectID       string
	AuthorID        string
	AuthorName      string
	HighlightedText string
	Text            string
	IsResolved      bool
	CreatedAt       time.Time
	Replies         []Reply
}

type Reply struct {
	AuthorID   string
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Text      string
	Link      string
	Read      bool
	CreatedAt time.Time
}

type Message struct {
	ID            string
	SenderID      string
	SenderName    string
	RecipientID   string
	RecipientName string
	Body          string
	Read          bool
	CreatedAt     time.Time
}
