package app

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one conversation turn. Messages are append-only; ordering is the
// append sequence, timestamps are informational.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // system|user|assistant|tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Task statuses. Tasks move only through TaskList transitions.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

type Task struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the durable unit of conversation state for one project.
//
// The full message log is kept for audit; messages with CreatedAt at or before
// SummaryCutoff are superseded by Summary and excluded from model requests.
//
// The debounced save timer serializes against mutation through mu: every
// mutation path (Append, TaskList, FoldSummary) and every save-side read
// (MarshalJSON, Touch) takes it.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	WorkDir   string `json:"work_dir"`
	Model     string `json:"model"`

	Messages      []Message `json:"messages"`
	Summary       string    `json:"summary,omitempty"`
	SummaryCutoff time.Time `json:"summary_cutoff,omitempty"`
	Tasks         []Task    `json:"tasks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mu sync.Mutex
}

// sessionRecord is the plain serialized shape, without the Marshaler method.
type sessionRecord Session

// MarshalJSON snapshots the session under its lock so a scheduled save never
// reads fields mid-mutation.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal((*sessionRecord)(s))
}

// Touch bumps UpdatedAt under the lock and returns the new value. Stores call
// it instead of writing the field directly.
func (s *Session) Touch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	return s.UpdatedAt
}

func NewSession(projectID, workDir, model string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		WorkDir:   workDir,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a turn to the log and returns the stored message.
func (s *Session) Append(role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.CreatedAt
	return msg
}

// Window returns the live prompt window: every message newer than the
// summary cutoff, in append order.
func (s *Session) Window() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SummaryCutoff.IsZero() {
		return s.Messages
	}
	for i, m := range s.Messages {
		if m.CreatedAt.After(s.SummaryCutoff) {
			return s.Messages[i:]
		}
	}
	return nil
}

// FoldSummary appends a digest to the accumulated summary and advances the
// cutoff. Cutoff never moves backwards.
func (s *Session) FoldSummary(digest string, cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.Summary) == "" {
		s.Summary = strings.TrimSpace(digest)
	} else {
		s.Summary = strings.TrimSpace(s.Summary) + summaryDelimiter + strings.TrimSpace(digest)
	}
	if cutoff.After(s.SummaryCutoff) {
		s.SummaryCutoff = cutoff
	}
}

// TaskList provides the only mutation path for session tasks.
type TaskList struct {
	sess *Session
}

func (s *Session) TaskList() *TaskList {
	return &TaskList{sess: s}
}

func (t *TaskList) Add(content string) (Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Task{}, errEmptyTaskContent
	}
	task := Task{
		ID:        shortTaskID(),
		Content:   content,
		Status:    TaskPending,
		CreatedAt: time.Now(),
	}
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	t.sess.Tasks = append(t.sess.Tasks, task)
	t.sess.UpdatedAt = task.CreatedAt
	return task, nil
}

func (t *TaskList) Update(id, status string) (Task, error) {
	switch status {
	case TaskPending, TaskInProgress, TaskCompleted:
	default:
		return Task{}, errBadTaskStatus
	}
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	for i := range t.sess.Tasks {
		if t.sess.Tasks[i].ID == id {
			t.sess.Tasks[i].Status = status
			t.sess.UpdatedAt = time.Now()
			return t.sess.Tasks[i], nil
		}
	}
	return Task{}, errTaskNotFound
}

func (t *TaskList) All() []Task {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	out := make([]Task, len(t.sess.Tasks))
	copy(out, t.sess.Tasks)
	return out
}

func shortTaskID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
