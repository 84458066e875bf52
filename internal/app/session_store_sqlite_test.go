package app

import (
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newTestSQLiteStore(t)
	projectID, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}

	sess := NewSession(projectID, abs, "qwen2.5-coder:7b")
	sess.Append("user", "hello")
	sess.Append("assistant", "hi")
	if err := store.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.ID != sess.ID || len(got.Messages) != 2 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	// Save again overwrites in place, no duplicate rows.
	sess.Append("user", "more")
	if err := store.Save(sess); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err = store.Load(dir)
	if err != nil || got == nil {
		t.Fatalf("Load after overwrite: %v / %v", got, err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("overwrite lost messages: %d", len(got.Messages))
	}
}

func TestSQLiteStoreLoadMissingIsAbsent(t *testing.T) {
	store := newTestSQLiteStore(t)
	got, err := store.Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing record must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestSQLiteStoreArchiveReplacesCurrent(t *testing.T) {
	dir := t.TempDir()
	store := newTestSQLiteStore(t)
	projectID, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}

	sess := NewSession(projectID, abs, "m")
	sess.Append("user", "keep me")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}

	fresh, err := store.Archive(dir)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if fresh.ID == sess.ID || len(fresh.Messages) != 0 {
		t.Fatalf("fresh session wrong: %+v", fresh)
	}

	current, err := store.Load(dir)
	if err != nil || current == nil || current.ID != fresh.ID {
		t.Fatalf("current after archive: %+v / %v", current, err)
	}

	entries, err := store.ListArchived(dir)
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != sess.ID || entries[0].MessageCount != 1 {
		t.Fatalf("archive listing wrong: %+v", entries)
	}

	old, err := store.LoadArchived(dir, sess.ID)
	if err != nil || old == nil || old.Messages[0].Content != "keep me" {
		t.Fatalf("LoadArchived: %+v / %v", old, err)
	}
}

func TestSQLiteStoreArchiveWithoutCurrentFails(t *testing.T) {
	store := newTestSQLiteStore(t)
	if _, err := store.Archive(t.TempDir()); err == nil {
		t.Fatal("archiving with no current session must fail")
	}
}

func TestSQLiteStoreArchiveOrderNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := newTestSQLiteStore(t)
	projectID, abs, err := ProjectID(dir)
	if err != nil {
		t.Fatal(err)
	}

	first := NewSession(projectID, abs, "m")
	first.Append("user", "one")
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Archive(dir); err != nil {
		t.Fatal(err)
	}

	second, err := store.Load(dir)
	if err != nil || second == nil {
		t.Fatal("no current session after archive")
	}
	second.Append("user", "two")
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Archive(dir); err != nil {
		t.Fatal(err)
	}

	entries, err := store.ListArchived(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(entries))
	}
	if entries[0].SessionID != second.ID {
		t.Fatalf("archives not newest-first: %+v", entries)
	}
}
