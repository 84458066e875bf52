package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// Application owns the live session for one project: the model client, the
// capability registry, the continuity engine, and the persistence pipeline.
// One instance per process; the session is never shared.
type Application struct {
	Config    Config
	Logger    *Logger
	Client    ChatClient
	Registry  *Registry
	Store     Store
	Saver     *SaveScheduler
	Compactor *Compactor

	mu      sync.Mutex
	sess    *Session
	workDir string
	logFile *os.File
}

// NewApplication wires the stack and loads (or creates) the current session
// for workDir. mock replaces the Ollama client with a scripted one.
func NewApplication(cfg Config, workDir string, mock bool) (*Application, error) {
	cfg = applyConfigDefaults(cfg)

	root := cfg.StorageRoot
	if root == "" {
		root = DefaultStorageRoot()
	}

	var logSink io.Writer
	logFile, err := OpenLogFile(root)
	if err == nil {
		logSink = logFile
	}
	logger := NewLogger(logSink)

	var store Store
	if cfg.Storage == "sqlite" {
		store, err = NewSQLiteStore(root)
		if err != nil {
			logger.Warn("sqlite store unavailable, falling back to files", map[string]interface{}{"error": err.Error()})
			store = NewFileStore(root)
		}
	} else {
		store = NewFileStore(root)
	}

	var client ChatClient
	if mock {
		client = NewMockChatClient()
	} else {
		client = NewOllamaClient(cfg.Model, cfg.BaseURL)
	}

	a := &Application{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Registry: DefaultRegistry(),
		Store:    store,
		Saver:    NewSaveScheduler(store, logger, time.Duration(cfg.SaveDebounceMs)*time.Millisecond),
		Compactor: NewCompactor(client, logger, cfg.SummaryModel,
			int(0.9*float64(cfg.ContextWindowTokens)), cfg.CompactKeepRecent),
		workDir: workDir,
		logFile: logFile,
	}

	if err := a.loadOrCreateSession(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Application) loadOrCreateSession() error {
	sess, err := a.Store.Load(a.workDir)
	if err != nil {
		return err
	}
	if sess == nil {
		projectID, absWorkDir, err := ProjectID(a.workDir)
		if err != nil {
			return err
		}
		sess = NewSession(projectID, absWorkDir, a.Config.Model)
		if err := a.Store.Save(sess); err != nil {
			a.Logger.Warn("initial session save failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.sess = sess
	a.workDir = sess.WorkDir
	return nil
}

func (a *Application) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

func (a *Application) WorkDir() string {
	return a.workDir
}

func (a *Application) chatOptions() ChatOptions {
	return ChatOptions{
		Temperature: a.Config.Temperature,
		TopP:        a.Config.TopP,
		NumCtx:      a.Config.ContextWindowTokens,
		MaxTokens:   a.Config.MaxTokens,
	}
}

// RunTurn executes one full user turn: appends the input, drives the tool
// loop to a final answer, folds every produced message into the session, runs
// the continuity check, and schedules a save.
//
// On a gateway failure the in-memory session keeps the partial round (tool
// side effects already happened) but no save is scheduled; the next
// successful round or an explicit save persists it.
func (a *Application) RunTurn(ctx context.Context, input string, hooks Hooks) (string, error) {
	a.mu.Lock()
	sess := a.sess
	a.mu.Unlock()
	if sess == nil {
		return "", errors.New("no active session")
	}

	sess.Append("user", input)
	loop := NewAgentLoop(a.Client, a.Registry, a.Logger, a.chatOptions(), a.Config.MaxRounds)
	tc := &ToolContext{
		WorkDir: sess.WorkDir,
		Tasks:   sess.TaskList(),
		Timeout: time.Duration(a.Config.ToolTimeoutSeconds) * time.Second,
	}

	answer, produced, err := loop.Run(ctx, requestMessages(sess), tc, hooks)
	for _, m := range produced {
		role := m.Role
		if role == "user" {
			// Everything the loop emits with the user role is a tool result;
			// record it as such, the request builder maps it back.
			role = "tool"
		}
		sess.Append(role, m.Content)
	}
	if err != nil {
		return "", err
	}
	sess.Append("assistant", answer)

	if a.Compactor.Compact(ctx, sess) {
		a.Logger.Info("session compacted", map[string]interface{}{
			"window":  len(sess.Window()),
			"summary": len(sess.Summary),
		})
	}
	a.Saver.MarkDirty(sess)
	return answer, nil
}

// SaveNow cancels any pending debounce and writes synchronously.
func (a *Application) SaveNow() error {
	return a.Saver.Flush(a.Session())
}

// ArchiveSession snapshots the current transcript to cold storage and starts
// a fresh one for the same project.
func (a *Application) ArchiveSession() (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return nil, errors.New("no active session")
	}
	a.Saver.Stop()
	if err := a.Store.Save(a.sess); err != nil {
		return nil, err
	}
	fresh, err := a.Store.Archive(a.workDir)
	if err != nil {
		return nil, err
	}
	a.sess = fresh
	return fresh, nil
}

func (a *Application) ListArchived() ([]ArchiveEntry, error) {
	return a.Store.ListArchived(a.workDir)
}

func (a *Application) LoadArchived(sessionID string) (*Session, error) {
	return a.Store.LoadArchived(a.workDir, sessionID)
}

// Close flushes pending state and releases resources. Call on process exit.
func (a *Application) Close() error {
	err := a.SaveNow()
	if closer, ok := a.Store.(io.Closer); ok {
		_ = closer.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}
