package app

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeFormat is RFC3339 with a fixed-width fraction so the stored text
// sorts chronologically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps current and archived sessions in a single database file.
// The record payload is the same serialized session the file store writes, so
// the two backends stay interchangeable.
type SQLiteStore struct {
	Root   string
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &SQLiteStore{
		Root:   root,
		dbPath: filepath.Join(root, "hermit.db"),
	}, nil
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.err = err
			return
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				project_id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				payload    TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS archives (
				project_id  TEXT NOT NULL,
				session_id  TEXT NOT NULL,
				payload     TEXT NOT NULL,
				archived_at TEXT NOT NULL,
				PRIMARY KEY (project_id, session_id)
			);
		`); err != nil {
			s.err = err
			_ = db.Close()
			return
		}
		s.db = db
	})
	return s.db, s.err
}

func (s *SQLiteStore) Save(sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if strings.TrimSpace(sess.ProjectID) == "" || strings.TrimSpace(sess.ID) == "" {
		return errors.New("missing session identity")
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	updatedAt := sess.Touch()
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = db.Exec(`
		INSERT INTO sessions (project_id, session_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			session_id = excluded.session_id,
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`, sess.ProjectID, sess.ID, string(payload), updatedAt.UTC().Format(sqliteTimeFormat))
	return err
}

func (s *SQLiteStore) Load(workDir string) (*Session, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload string
	row := db.QueryRow(`SELECT payload FROM sessions WHERE project_id = ?`, projectID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSessionPayload(payload), nil
}

// Archive runs snapshot-and-replace in one transaction, so a failure leaves
// the current record untouched.
func (s *SQLiteStore) Archive(workDir string) (*Session, error) {
	projectID, absWorkDir, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var payload string
	row := tx.QueryRow(`SELECT payload FROM sessions WHERE project_id = ?`, projectID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("no current session to archive")
		}
		return nil, err
	}
	current := decodeSessionPayload(payload)
	if current == nil {
		return nil, errors.New("no current session to archive")
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO archives (project_id, session_id, payload, archived_at)
		VALUES (?, ?, ?, ?)
	`, projectID, current.ID, payload, time.Now().UTC().Format(sqliteTimeFormat)); err != nil {
		return nil, fmt.Errorf("archive snapshot failed: %w", err)
	}

	fresh := NewSession(projectID, absWorkDir, current.Model)
	freshPayload, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		UPDATE sessions SET session_id = ?, payload = ?, updated_at = ?
		WHERE project_id = ?
	`, fresh.ID, string(freshPayload), fresh.UpdatedAt.UTC().Format(sqliteTimeFormat), projectID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *SQLiteStore) ListArchived(workDir string) ([]ArchiveEntry, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := db.Query(`
		SELECT payload, archived_at FROM archives
		WHERE project_id = ? ORDER BY archived_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := []ArchiveEntry{}
	for rows.Next() {
		var payload, archivedAt string
		if err := rows.Scan(&payload, &archivedAt); err != nil {
			return nil, err
		}
		sess := decodeSessionPayload(payload)
		if sess == nil {
			continue
		}
		at, _ := time.Parse(time.RFC3339Nano, archivedAt)
		entries = append(entries, ArchiveEntry{
			SessionID:    sess.ID,
			Model:        sess.Model,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt,
			ArchivedAt:   at,
		})
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) LoadArchived(workDir, sessionID string) (*Session, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload string
	row := db.QueryRow(`
		SELECT payload FROM archives WHERE project_id = ? AND session_id = ?
	`, projectID, strings.TrimSpace(sessionID))
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSessionPayload(payload), nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// decodeSessionPayload treats unparseable payloads as absence, matching the
// file store's corrupt-record behavior.
func decodeSessionPayload(payload string) *Session {
	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil
	}
	if strings.TrimSpace(sess.ID) == "" {
		return nil
	}
	return &sess
}
