package document

import "sync"

// Range is a position span with the literal text it covered when read.
type Range struct {
	From int
	To   int
	Text string
}

// Session is an edit session over one document. A session with no loaded
// document is inert: every operation is a no-op, since the surface may be
// created before its content arrives. Change notifications fire once per
// committed operation, never on Load.
type Session struct {
	mu        sync.Mutex
	doc       *Doc
	selection Range
	onChange  func(snapshot []byte)
}

func NewSession() *Session {
	return &Session{}
}

// OnChange registers the change callback. It receives the full serialized
// document after each committed edit.
func (s *Session) OnChange(fn func(snapshot []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Load replaces the current document state without firing the change
// callback, so externally sourced content (initial load, version restore)
// does not feed back into the save pipeline.
func (s *Session) Load(snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snapshot) == 0 {
		s.doc = nil
		return nil
	}
	doc, err := Parse(snapshot)
	if err != nil {
		return err
	}
	s.doc = doc
	s.selection = Range{}
	return nil
}

// Loaded reports whether the session holds a document.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil
}

// Snapshot serializes the current document, nil when none is loaded.
func (s *Session) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	data, err := s.doc.Snapshot()
	if err != nil {
		return nil
	}
	return data
}

// Update runs one committed transaction against the document and fires the
// change callback exactly once. Inert when no document is loaded.
func (s *Session) Update(fn func(d *Doc)) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return
	}
	fn(s.doc)
	data, err := s.doc.Snapshot()
	onChange := s.onChange
	s.mu.Unlock()
	if err != nil || onChange == nil {
		return
	}
	onChange(data)
}

func (s *Session) InsertText(pos int, text string) {
	s.Update(func(d *Doc) { d.InsertText(pos, text) })
}

func (s *Session) DeleteRange(from, to int) {
	s.Update(func(d *Doc) { d.DeleteRange(from, to) })
}

// ApplyMark attaches an inline mark over a character range. Ranges are
// document positions and shift with surrounding edits because they are
// materialized into the tree.
func (s *Session) ApplyMark(kind string, from, to int, attrs map[string]any) {
	s.Update(func(d *Doc) { d.ApplyMark(kind, from, to, attrs) })
}

// RemoveMark strips all instances of a mark carrying the id, preserving the
// wrapped text.
func (s *Session) RemoveMark(kind, id string) {
	s.Update(func(d *Doc) { d.RemoveMark(kind, id) })
}

// SetSelection records the user's selection.
func (s *Session) SetSelection(from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return
	}
	if to < from {
		from, to = to, from
	}
	s.selection = Range{From: from, To: to}
}

// Selection returns the current selection with its literal text; an empty
// range when nothing is selected or no document is loaded.
func (s *Session) Selection() Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || s.selection.From == s.selection.To {
		return Range{}
	}
	sel := s.selection
	sel.Text = s.doc.TextBetween(sel.From, sel.To)
	return sel
}
