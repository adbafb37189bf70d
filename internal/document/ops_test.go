package document

import (
	"bytes"
	"testing"
)

const sampleSnapshot = `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Hello world"}]}]}`

func mustParse(t *testing.T, snapshot string) *Doc {
	t.Helper()
	doc, err := Parse([]byte(snapshot))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestParseRejectsNonDocRoot(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"paragraph"}`)); err == nil {
		t.Fatal("expected error for non-doc root")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestSizeCountsBlockEntries(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	// Entering the paragraph costs one position, then 11 runes of text.
	if got := doc.Size(); got != 12 {
		t.Fatalf("Size = %d, want 12", got)
	}

	nested := mustParse(t, `{"type":"doc","content":[
		{"type":"bulletList","content":[
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"One"}]}]},
			{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"Two"}]}]}
		]}
	]}`)
	if got := nested.Size(); got != 11 {
		t.Fatalf("Size = %d, want 11", got)
	}
	if got := nested.PlainText(); got != "One\nTwo" {
		t.Fatalf("PlainText = %q", got)
	}
}

func TestTextBetween(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	if got := doc.TextBetween(7, 12); got != "world" {
		t.Fatalf("TextBetween(7, 12) = %q, want %q", got, "world")
	}
	if got := doc.TextBetween(1, 6); got != "Hello" {
		t.Fatalf("TextBetween(1, 6) = %q, want %q", got, "Hello")
	}
	if got := doc.TextBetween(5, 5); got != "" {
		t.Fatalf("TextBetween(5, 5) = %q, want empty", got)
	}
}

func TestApplyMarkSplitsLeafAtBoundaries(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})

	para := doc.Root.Content[0]
	if len(para.Content) != 2 {
		t.Fatalf("leaf count = %d, want 2", len(para.Content))
	}
	if para.Content[0].Text != "Hello " || len(para.Content[0].Marks) != 0 {
		t.Fatalf("unexpected leading leaf: %+v", para.Content[0])
	}
	if para.Content[1].Text != "world" || len(para.Content[1].Marks) != 1 {
		t.Fatalf("unexpected marked leaf: %+v", para.Content[1])
	}
	from, to, ok := doc.MarkRange(MarkComment, "cmt_1")
	if !ok || from != 7 || to != 12 {
		t.Fatalf("MarkRange = [%d, %d) ok=%v, want [7, 12)", from, to, ok)
	}
}

func TestApplyMarkIsIdempotent(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})
	once, err := doc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})
	twice, err := doc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatalf("reapplying changed the document:\n%s\n%s", once, twice)
	}
}

func TestRemoveMarkMergesRuns(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})
	doc.RemoveMark(MarkComment, "cmt_1")

	para := doc.Root.Content[0]
	if len(para.Content) != 1 || para.Content[0].Text != "Hello world" {
		t.Fatalf("leaves not merged back: %+v", para.Content)
	}
	if doc.HasMark(MarkComment, "cmt_1") {
		t.Fatal("mark still present after removal")
	}
	// Removing again is a no-op.
	doc.RemoveMark(MarkComment, "cmt_1")
	if got := doc.PlainText(); got != "Hello world" {
		t.Fatalf("PlainText = %q", got)
	}
}

func TestRemoveMarkEmptyIDMatchesAll(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 1, 6, map[string]any{"id": "cmt_1"})
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_2"})
	doc.RemoveMark(MarkComment, "")
	if doc.HasMark(MarkComment, "") {
		t.Fatal("expected all comment marks stripped")
	}
}

func TestMarkRangeShiftsWithSurroundingEdits(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})

	doc.InsertText(1, "XX")
	from, to, ok := doc.MarkRange(MarkComment, "cmt_1")
	if !ok || from != 9 || to != 14 {
		t.Fatalf("after insert MarkRange = [%d, %d) ok=%v, want [9, 14)", from, to, ok)
	}

	doc.DeleteRange(1, 3)
	from, to, ok = doc.MarkRange(MarkComment, "cmt_1")
	if !ok || from != 7 || to != 12 {
		t.Fatalf("after delete MarkRange = [%d, %d) ok=%v, want [7, 12)", from, to, ok)
	}
	if got := doc.TextBetween(from, to); got != "world" {
		t.Fatalf("marked text = %q, want %q", got, "world")
	}
}

func TestInsertTextInheritsLeafMarks(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkBold, 1, 6, nil)
	doc.InsertText(3, "y")
	if got := doc.PlainText(); got != "Heyllo world" {
		t.Fatalf("PlainText = %q", got)
	}
	from, to, ok := doc.MarkRange(MarkBold, "")
	if !ok || from != 1 || to != 7 {
		t.Fatalf("MarkRange = [%d, %d) ok=%v, want [1, 7)", from, to, ok)
	}
}

func TestInsertTextSeedsEmptyDocument(t *testing.T) {
	doc := Empty()
	doc.InsertText(1, "Hello")
	if got := doc.PlainText(); got != "Hello" {
		t.Fatalf("PlainText = %q", got)
	}
	if got := doc.Size(); got != 6 {
		t.Fatalf("Size = %d, want 6", got)
	}
}

func TestDeleteRangeDropsEmptiedLeaves(t *testing.T) {
	doc := mustParse(t, sampleSnapshot)
	doc.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})
	doc.DeleteRange(7, 12)

	if doc.HasMark(MarkComment, "cmt_1") {
		t.Fatal("mark survived deletion of its text")
	}
	if got := doc.PlainText(); got != "Hello " {
		t.Fatalf("PlainText = %q", got)
	}
	para := doc.Root.Content[0]
	if len(para.Content) != 1 {
		t.Fatalf("leaf count = %d, want 1", len(para.Content))
	}
}

func TestDeleteRangeKeepsBlockStructure(t *testing.T) {
	doc := mustParse(t, `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"First"}]},
		{"type":"paragraph","content":[{"type":"text","text":"Second"}]}
	]}`)
	// Delete "Second" entirely; its paragraph remains.
	doc.DeleteRange(7, 13)
	if len(doc.Root.Content) != 2 {
		t.Fatalf("block count = %d, want 2", len(doc.Root.Content))
	}
	if got := doc.PlainText(); got != "First" {
		t.Fatalf("PlainText = %q", got)
	}
}
