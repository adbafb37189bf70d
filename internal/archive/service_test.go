package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestProjectArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("prj_1", "Thesis on Distributed Consensus", "Nadia"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prj_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Second call is a no-op.
	if err := svc.EnsureProjectRepo("prj_1", "Thesis on Distributed Consensus", "Nadia"); err != nil {
		t.Fatalf("EnsureProjectRepo() second call error = %v", err)
	}

	entry := Entry{
		ChapterID:    "chp_1",
		ChapterTitle: "Chapter I: Introduction",
		ApprovedBy:   "Nadia",
		Content:      json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Intro"}]}]}`),
	}
	commit, err := svc.CommitChapter("prj_1", entry, "Approve Chapter I: Introduction")
	if err != nil {
		t.Fatalf("CommitChapter() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if commit.Author != "Nadia" {
		t.Fatalf("unexpected commit author %q", commit.Author)
	}

	history, err := svc.History("prj_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected archive open + one approval, got %d entries", len(history))
	}
	if history[0].Hash != commit.Hash {
		t.Fatalf("expected newest-first history, got %+v", history)
	}

	got, err := svc.ChapterAt("prj_1", "chp_1", commit.Hash)
	if err != nil {
		t.Fatalf("ChapterAt() error = %v", err)
	}
	if got.ChapterTitle != "Chapter I: Introduction" || got.ApprovedBy != "Nadia" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.Content) == 0 {
		t.Fatal("expected archived content")
	}
}

func TestConcurrentCommitsSameProject(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("prj_1", "Thesis", "Nadia"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			entry := Entry{
				ChapterID:    fmt.Sprintf("chp_%d", idx),
				ChapterTitle: fmt.Sprintf("Chapter %d", idx),
				ApprovedBy:   "Nadia",
				Content:      json.RawMessage(`{"type":"doc","content":[]}`),
			}
			if _, err := svc.CommitChapter("prj_1", entry, fmt.Sprintf("Approve chapter %d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitChapter() concurrent error = %v", err)
		}
	}

	history, err := svc.History("prj_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits, got %d", writers+1, len(history))
	}
}
