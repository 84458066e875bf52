package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProjectIDShape(t *testing.T) {
	dir := t.TempDir()
	id, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatalf("ProjectID: %v", err)
	}
	if abs != dir {
		t.Fatalf("abs = %q, want %q", abs, dir)
	}
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 12 {
		t.Fatalf("id %q does not start with a 12-char hash fragment", id)
	}
	if strings.ContainsAny(parts[1], " /\\") {
		t.Fatalf("id fragment %q not sanitized", parts[1])
	}

	// Same directory, same identity.
	id2, _, err := ProjectID(dir)
	if err != nil {
		t.Fatalf("ProjectID: %v", err)
	}
	if id2 != id {
		t.Fatalf("identity not stable: %q vs %q", id, id2)
	}

	// Different directory, different identity even with the same base name.
	sibling := filepath.Join(t.TempDir(), filepath.Base(dir))
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		t.Fatal(err)
	}
	id3, _, err := ProjectID(sibling)
	if err != nil {
		t.Fatalf("ProjectID: %v", err)
	}
	if id3 == id {
		t.Fatalf("distinct directories collided on %q", id)
	}
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(t.TempDir())
	projectID, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}

	sess := NewSession(projectID, abs, "qwen2.5-coder:7b")
	sess.Append("user", "hello")
	sess.Append("assistant", "hi there")
	sess.Summary = "earlier digest"
	sess.SummaryCutoff = sess.Messages[0].CreatedAt
	if _, err := sess.TaskList().Add("ship it"); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil for a saved session")
	}
	if got.ID != sess.ID || got.ProjectID != sess.ProjectID || got.Model != sess.Model {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "hello" || got.Messages[1].Role != "assistant" {
		t.Fatalf("messages mismatch: %+v", got.Messages)
	}
	if got.Summary != "earlier digest" {
		t.Fatalf("summary mismatch: %q", got.Summary)
	}
	if !got.SummaryCutoff.Equal(sess.SummaryCutoff) {
		t.Fatalf("cutoff mismatch: %v vs %v", got.SummaryCutoff, sess.SummaryCutoff)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Content != "ship it" || got.Tasks[0].Status != TaskPending {
		t.Fatalf("tasks mismatch: %+v", got.Tasks)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Fatalf("created_at drifted: %v vs %v", got.CreatedAt, sess.CreatedAt)
	}
}

func TestFileStoreLoadMissingIsAbsent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	got, err := store.Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing record must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestFileStoreCorruptRecordIsAbsent(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	store := NewFileStore(root)
	projectID, _, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "session", projectID), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "session", projectID, "current.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(dir)
	if err != nil {
		t.Fatalf("corrupt record must load as absence, got error %v", err)
	}
	if got != nil {
		t.Fatalf("corrupt record must load as absence, got %+v", got)
	}
}

func TestFileStoreArchiveReplacesCurrent(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(t.TempDir())
	projectID, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}

	sess := NewSession(projectID, abs, "m")
	sess.Append("user", "remember this")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}

	fresh, err := store.Archive(dir)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if fresh.ID == sess.ID {
		t.Fatal("archive must install a fresh session id")
	}
	if fresh.ProjectID != projectID || fresh.WorkDir != abs || fresh.Model != "m" {
		t.Fatalf("fresh session lost identity: %+v", fresh)
	}
	if len(fresh.Messages) != 0 {
		t.Fatalf("fresh session carries messages: %+v", fresh.Messages)
	}

	current, err := store.Load(dir)
	if err != nil || current == nil {
		t.Fatalf("Load after archive: %v / %v", current, err)
	}
	if current.ID != fresh.ID {
		t.Fatal("current record is not the fresh session")
	}

	entries, err := store.ListArchived(dir)
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != sess.ID || entries[0].MessageCount != 1 {
		t.Fatalf("archive listing wrong: %+v", entries)
	}

	old, err := store.LoadArchived(dir, sess.ID)
	if err != nil || old == nil {
		t.Fatalf("LoadArchived: %v / %v", old, err)
	}
	if old.Messages[0].Content != "remember this" {
		t.Fatalf("archived transcript lost content: %+v", old.Messages)
	}
}

func TestFileStoreArchiveWithoutCurrentFails(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if _, err := store.Archive(t.TempDir()); err == nil {
		t.Fatal("archiving with no current session must fail")
	}
}

func TestFileStoreListArchivedEmptyProject(t *testing.T) {
	store := NewFileStore(t.TempDir())
	entries, err := store.ListArchived(t.TempDir())
	if err != nil {
		t.Fatalf("ListArchived on empty project: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}
