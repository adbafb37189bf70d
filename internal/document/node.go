// Package document holds the structured rich-text document model used for
// thesis chapters: a tree of block nodes carrying text leaves with inline
// marks, serialized as JSON. Positions are offsets into the document's
// flattened text where entering any non-text node occupies one position, so
// ranges shift naturally as surrounding content changes.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Block node types.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableCell      = "tableCell"
	TypeTableHeader    = "tableHeader"
	TypeImage          = "image"
	TypePageBreak      = "pageBreak"
	TypeHorizontalRule = "horizontalRule"
	TypeText           = "text"
)

// Inline mark types.
const (
	MarkBold      = "bold"
	MarkItalic    = "italic"
	MarkUnderline = "underline"
	MarkStrike    = "strike"
	MarkColor     = "color"
	MarkHighlight = "highlight"
	MarkLink      = "link"
	MarkComment   = "comment"
	MarkCitation  = "citation"
)

type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ID returns the mark's id attribute, empty when absent.
func (m Mark) ID() string {
	id, _ := m.Attrs["id"].(string)
	return id
}

func (m Mark) equal(other Mark) bool {
	if m.Type != other.Type {
		return false
	}
	if len(m.Attrs) != len(other.Attrs) {
		return false
	}
	for key, value := range m.Attrs {
		if other.Attrs[key] != value {
			return false
		}
	}
	return true
}

type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

func (n *Node) IsText() bool {
	return n.Type == TypeText
}

func (n *Node) textLen() int {
	return len([]rune(n.Text))
}

func (n *Node) hasMark(mark Mark) bool {
	for _, m := range n.Marks {
		if m.equal(mark) {
			return true
		}
	}
	return false
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

// Doc wraps a parsed document root.
type Doc struct {
	Root *Node
}

// Parse decodes a serialized snapshot. The root node must be a doc.
func Parse(snapshot []byte) (*Doc, error) {
	var root Node
	if err := json.Unmarshal(snapshot, &root); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if root.Type != TypeDoc {
		return nil, fmt.Errorf("parse document: root node is %q, want %q", root.Type, TypeDoc)
	}
	return &Doc{Root: &root}, nil
}

// Empty returns a document with no content.
func Empty() *Doc {
	return &Doc{Root: &Node{Type: TypeDoc, Content: []*Node{{Type: TypeParagraph}}}}
}

// Snapshot serializes the document.
func (d *Doc) Snapshot() ([]byte, error) {
	data, err := json.Marshal(d.Root)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return data, nil
}

// Size returns the position one past the document's last token.
func (d *Doc) Size() int {
	size := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Content {
			if child.IsText() {
				size += child.textLen()
				continue
			}
			size++
			walk(child)
		}
	}
	walk(d.Root)
	return size
}

// PlainText flattens the document's text leaves, separating text-bearing
// blocks with newlines.
func (d *Doc) PlainText() string {
	var b strings.Builder
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Content {
			if child.IsText() {
				b.WriteString(child.Text)
				continue
			}
			walk(child)
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				switch child.Type {
				case TypeParagraph, TypeHeading, TypeListItem, TypeCodeBlock, TypeBlockquote:
					b.WriteString("\n")
				}
			}
		}
	}
	walk(d.Root)
	return strings.TrimRight(b.String(), "\n")
}

// TextBetween returns the literal text covered by [from, to).
func (d *Doc) TextBetween(from, to int) string {
	var b strings.Builder
	d.eachLeaf(func(_ *Node, _ int, leaf *Node, start, end int) {
		s, e := maxInt(start, from), minInt(end, to)
		if s >= e {
			return
		}
		runes := []rune(leaf.Text)
		b.WriteString(string(runes[s-start : e-start]))
	})
	return b.String()
}

// eachLeaf visits every text leaf with its parent, index and absolute
// position range.
func (d *Doc) eachLeaf(visit func(parent *Node, index int, leaf *Node, start, end int)) {
	pos := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		for i := 0; i < len(n.Content); i++ {
			child := n.Content[i]
			if child.IsText() {
				start := pos
				pos += child.textLen()
				visit(n, i, child, start, pos)
				continue
			}
			pos++
			walk(child)
		}
	}
	walk(d.Root)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
