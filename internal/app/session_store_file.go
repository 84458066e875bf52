package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Store persists whole transcripts keyed by project identity. Save overwrites
// the current record wholesale; Archive moves it to cold storage and installs
// a fresh empty session.
type Store interface {
	Save(sess *Session) error
	// Load returns (nil, nil) when no usable current record exists; corrupt
	// records count as absent.
	Load(workDir string) (*Session, error)
	Archive(workDir string) (*Session, error)
	ListArchived(workDir string) ([]ArchiveEntry, error)
	LoadArchived(workDir, sessionID string) (*Session, error)
}

// ArchiveEntry describes one cold-storage snapshot.
type ArchiveEntry struct {
	SessionID    string    `json:"session_id"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// DefaultStorageRoot prefers the XDG data dir, then ~/.local/share.
func DefaultStorageRoot() string {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "hermit", "storage")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "hermit", "storage")
	}
	return filepath.Join(os.TempDir(), "hermit", "storage")
}

var projectFragmentRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ProjectID derives the durable key for a working directory: a short one-way
// hash for collision resistance plus the directory name so the on-disk layout
// stays inspectable.
func ProjectID(workDir string) (string, string, error) {
	wd := strings.TrimSpace(workDir)
	if wd == "" {
		var err error
		wd, err = os.Getwd()
		if err != nil {
			return "", "", err
		}
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(abs))
	fragment := projectFragmentRe.ReplaceAllString(filepath.Base(abs), "-")
	fragment = strings.Trim(fragment, "-")
	if fragment == "" {
		fragment = "root"
	}
	return hex.EncodeToString(sum[:])[:12] + "-" + fragment, abs, nil
}

// FileStore keeps one JSON record per current session and per archived
// session:
//
//	<root>/session/<projectID>/current.json
//	<root>/archive/<projectID>/<sessionID>.json
type FileStore struct {
	Root string
}

func NewFileStore(root string) *FileStore {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	return &FileStore{Root: root}
}

func (s *FileStore) sessionDir(projectID string) string {
	return filepath.Join(s.Root, "session", projectID)
}

func (s *FileStore) archiveDir(projectID string) string {
	return filepath.Join(s.Root, "archive", projectID)
}

func (s *FileStore) currentPath(projectID string) string {
	return filepath.Join(s.sessionDir(projectID), "current.json")
}

func (s *FileStore) Save(sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if strings.TrimSpace(sess.ProjectID) == "" || strings.TrimSpace(sess.ID) == "" {
		return errors.New("missing session identity")
	}
	if err := os.MkdirAll(s.sessionDir(sess.ProjectID), 0o755); err != nil {
		return err
	}
	sess.Touch()
	return writeJSONAtomic(s.currentPath(sess.ProjectID), sess)
}

func (s *FileStore) Load(workDir string) (*Session, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	return readSessionRecord(s.currentPath(projectID))
}

// Archive snapshots the current session into cold storage, then replaces it
// with a fresh empty session carrying the same project identity and model.
// If the snapshot cannot be written, the current record is left untouched.
func (s *FileStore) Archive(workDir string) (*Session, error) {
	projectID, absWorkDir, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	current, err := readSessionRecord(s.currentPath(projectID))
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.New("no current session to archive")
	}

	if err := os.MkdirAll(s.archiveDir(projectID), 0o755); err != nil {
		return nil, err
	}
	snapshot := filepath.Join(s.archiveDir(projectID), current.ID+".json")
	if err := writeJSONAtomic(snapshot, current); err != nil {
		return nil, fmt.Errorf("archive snapshot failed: %w", err)
	}

	fresh := NewSession(projectID, absWorkDir, current.Model)
	if err := s.Save(fresh); err != nil {
		// Roll the snapshot back so a retry starts from a clean state.
		_ = os.Remove(snapshot)
		return nil, err
	}
	return fresh, nil
}

func (s *FileStore) ListArchived(workDir string) ([]ArchiveEntry, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(s.archiveDir(projectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ArchiveEntry{}, nil
		}
		return nil, err
	}

	entries := make([]ArchiveEntry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.archiveDir(projectID), e.Name())
		sess, err := readSessionRecord(path)
		if err != nil || sess == nil {
			continue
		}
		archivedAt := sess.UpdatedAt
		if info, err := e.Info(); err == nil {
			archivedAt = info.ModTime()
		}
		entries = append(entries, ArchiveEntry{
			SessionID:    sess.ID,
			Model:        sess.Model,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt,
			ArchivedAt:   archivedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ArchivedAt.After(entries[j].ArchivedAt)
	})
	return entries, nil
}

func (s *FileStore) LoadArchived(workDir, sessionID string) (*Session, error) {
	projectID, _, err := ProjectID(workDir)
	if err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("missing sessionID")
	}
	return readSessionRecord(filepath.Join(s.archiveDir(projectID), sessionID+".json"))
}

// readSessionRecord treats missing, unreadable, and unparseable records all
// as absence.
func readSessionRecord(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, nil
	}
	if strings.TrimSpace(sess.ID) == "" {
		return nil, nil
	}
	return &sess, nil
}

// writeJSONAtomic writes the whole record to a temp file and renames it over
// the target, so a crash mid-write never corrupts the previous record.
func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
