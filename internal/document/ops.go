package document

func cloneMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	copy(out, marks)
	return out
}

// ApplyMark attaches an inline mark over [from, to), splitting text leaves at
// the range boundaries. Leaves already carrying an identical mark are left
// alone, so reapplying is idempotent.
func (d *Doc) ApplyMark(markType string, from, to int, attrs map[string]any) {
	if to <= from {
		return
	}
	mark := Mark{Type: markType, Attrs: attrs}
	pos := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		for i := 0; i < len(n.Content); i++ {
			child := n.Content[i]
			if !child.IsText() {
				pos++
				walk(child)
				continue
			}
			start := pos
			end := start + child.textLen()
			pos = end
			s, e := maxInt(start, from), minInt(end, to)
			if s >= e || child.hasMark(mark) {
				continue
			}
			segments := splitLeaf(child, s-start, e-start, mark)
			n.Content = append(n.Content[:i], append(segments, n.Content[i+1:]...)...)
			i += len(segments) - 1
		}
	}
	walk(d.Root)
}

func splitLeaf(leaf *Node, s, e int, mark Mark) []*Node {
	runes := []rune(leaf.Text)
	segments := make([]*Node, 0, 3)
	if s > 0 {
		segments = append(segments, &Node{Type: TypeText, Text: string(runes[:s]), Marks: cloneMarks(leaf.Marks)})
	}
	segments = append(segments, &Node{
		Type:  TypeText,
		Text:  string(runes[s:e]),
		Marks: append(cloneMarks(leaf.Marks), mark),
	})
	if e < len(runes) {
		segments = append(segments, &Node{Type: TypeText, Text: string(runes[e:]), Marks: cloneMarks(leaf.Marks)})
	}
	return segments
}

// RemoveMark strips every instance of the mark type carrying the given id,
// unwrapping the underlying text. An empty id matches every mark of the type.
// Stripping a mark that is not present is a no-op, which makes the operation
// idempotent.
func (d *Doc) RemoveMark(markType, id string) {
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Content {
			if !child.IsText() {
				walk(child)
				continue
			}
			kept := child.Marks[:0:0]
			for _, m := range child.Marks {
				if m.Type == markType && (id == "" || m.ID() == id) {
					continue
				}
				kept = append(kept, m)
			}
			child.Marks = kept
		}
		mergeTextRuns(n)
	}
	walk(d.Root)
}

// HasMark reports whether any text leaf carries the mark type with the id.
func (d *Doc) HasMark(markType, id string) bool {
	found := false
	d.eachLeaf(func(_ *Node, _ int, leaf *Node, _, _ int) {
		for _, m := range leaf.Marks {
			if m.Type == markType && (id == "" || m.ID() == id) {
				found = true
			}
		}
	})
	return found
}

// MarkRange returns the absolute position range covered by a mark, and
// whether the mark is present at all.
func (d *Doc) MarkRange(markType, id string) (from, to int, ok bool) {
	d.eachLeaf(func(_ *Node, _ int, leaf *Node, start, end int) {
		for _, m := range leaf.Marks {
			if m.Type != markType || (id != "" && m.ID() != id) {
				continue
			}
			if !ok || start < from {
				from = start
			}
			if end > to {
				to = end
			}
			ok = true
		}
	})
	return from, to, ok
}

// InsertText inserts text at the position, inheriting the marks of the leaf
// it lands in. Out-of-range positions are ignored.
func (d *Doc) InsertText(pos int, text string) {
	if text == "" {
		return
	}
	inserted := false
	d.eachLeaf(func(_ *Node, _ int, leaf *Node, start, end int) {
		if inserted || pos < start || pos > end {
			return
		}
		runes := []rune(leaf.Text)
		at := pos - start
		leaf.Text = string(runes[:at]) + text + string(runes[at:])
		inserted = true
	})
	if !inserted {
		d.insertIntoEmptyBlock(text)
	}
}

// insertIntoEmptyBlock seeds the first text-bearing block when the document
// has no text leaves yet.
func (d *Doc) insertIntoEmptyBlock(text string) {
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		for _, child := range n.Content {
			switch child.Type {
			case TypeParagraph, TypeHeading, TypeCodeBlock:
				if len(child.Content) == 0 {
					child.Content = []*Node{{Type: TypeText, Text: text}}
					return true
				}
			}
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(d.Root)
}

// DeleteRange removes the text covered by [from, to). Block structure is kept;
// emptied leaves are dropped and adjacent identical runs merged.
func (d *Doc) DeleteRange(from, to int) {
	if to <= from {
		return
	}
	pos := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		for i := 0; i < len(n.Content); i++ {
			child := n.Content[i]
			if !child.IsText() {
				pos++
				walk(child)
				continue
			}
			start := pos
			end := start + child.textLen()
			pos = end
			s, e := maxInt(start, from), minInt(end, to)
			if s >= e {
				continue
			}
			runes := []rune(child.Text)
			child.Text = string(runes[:s-start]) + string(runes[e-start:])
			if child.Text == "" {
				n.Content = append(n.Content[:i], n.Content[i+1:]...)
				i--
			}
		}
		mergeTextRuns(n)
	}
	walk(d.Root)
}

// mergeTextRuns joins consecutive text children carrying identical marks.
func mergeTextRuns(n *Node) {
	for i := 0; i < len(n.Content)-1; {
		a, b := n.Content[i], n.Content[i+1]
		if a.IsText() && b.IsText() && sameMarks(a.Marks, b.Marks) {
			a.Text += b.Text
			n.Content = append(n.Content[:i+1], n.Content[i+2:]...)
			continue
		}
		i++
	}
}
