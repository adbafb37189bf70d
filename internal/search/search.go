package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultChapter ResultType = "chapter"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
	ChapterID string     `json:"chapterId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	IndexChapter(c ChapterRecord) error
	IndexComment(c CommentRecord) error
	DeleteChapter(id string) error
	DeleteComment(id string) error
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Field       string `json:"field"`
	StudentName string `json:"studentName"`
	Status      string `json:"status"`
}

// ChapterRecord is the data we index for a chapter. Body carries the flattened
// plain text of the editor document, not the serialized JSON.
type ChapterRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

// CommentRecord is the data we index for a supervisor comment.
type CommentRecord struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	HighlightedText string `json:"highlightedText"`
	ChapterID       string `json:"chapterId"`
	ProjectID       string `json:"projectId"`
	Resolved        bool   `json:"resolved"`
}
