package document

import "testing"

func TestSessionInertWhenNothingLoaded(t *testing.T) {
	sess := NewSession()
	fired := 0
	sess.OnChange(func([]byte) { fired++ })

	sess.InsertText(0, "hi")
	sess.ApplyMark(MarkComment, 0, 2, map[string]any{"id": "cmt_1"})
	sess.DeleteRange(0, 2)
	sess.SetSelection(0, 2)

	if sess.Loaded() {
		t.Fatal("session reports loaded")
	}
	if sess.Snapshot() != nil {
		t.Fatal("expected nil snapshot")
	}
	if sel := sess.Selection(); sel != (Range{}) {
		t.Fatalf("Selection = %+v, want empty", sel)
	}
	if fired != 0 {
		t.Fatalf("change fired %d times, want 0", fired)
	}
}

func TestSessionLoadDoesNotFireChange(t *testing.T) {
	sess := NewSession()
	fired := 0
	sess.OnChange(func([]byte) { fired++ })

	if err := sess.Load([]byte(sampleSnapshot)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !sess.Loaded() {
		t.Fatal("session not loaded")
	}
	if fired != 0 {
		t.Fatalf("change fired %d times on load, want 0", fired)
	}
}

func TestSessionFiresOncePerEdit(t *testing.T) {
	sess := NewSession()
	var snapshots [][]byte
	sess.OnChange(func(snapshot []byte) { snapshots = append(snapshots, snapshot) })
	if err := sess.Load([]byte(sampleSnapshot)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sess.InsertText(12, "!")
	sess.ApplyMark(MarkComment, 7, 12, map[string]any{"id": "cmt_1"})
	sess.RemoveMark(MarkComment, "cmt_1")

	if len(snapshots) != 3 {
		t.Fatalf("change fired %d times, want 3", len(snapshots))
	}
	doc, err := Parse(snapshots[len(snapshots)-1])
	if err != nil {
		t.Fatalf("parse final snapshot: %v", err)
	}
	if got := doc.PlainText(); got != "Hello world!" {
		t.Fatalf("PlainText = %q", got)
	}
}

func TestSessionSelectionNormalizesAndReadsText(t *testing.T) {
	sess := NewSession()
	if err := sess.Load([]byte(sampleSnapshot)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sess.SetSelection(12, 7)
	sel := sess.Selection()
	if sel.From != 7 || sel.To != 12 || sel.Text != "world" {
		t.Fatalf("Selection = %+v, want [7, 12) %q", sel, "world")
	}

	sess.SetSelection(5, 5)
	if sel := sess.Selection(); sel != (Range{}) {
		t.Fatalf("collapsed Selection = %+v, want empty", sel)
	}
}

func TestSessionLoadReplacesState(t *testing.T) {
	sess := NewSession()
	if err := sess.Load([]byte(sampleSnapshot)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sess.SetSelection(7, 12)

	if err := sess.Load([]byte(`{"type":"doc","content":[{"type":"paragraph"}]}`)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sel := sess.Selection(); sel != (Range{}) {
		t.Fatalf("Selection = %+v, want reset", sel)
	}

	if err := sess.Load(nil); err != nil {
		t.Fatalf("Load nil: %v", err)
	}
	if sess.Loaded() {
		t.Fatal("session still loaded after clearing")
	}
}
