package tui

import (
	"context"
	"fmt"
	"strings"

	"hermit/internal/app"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type streamDeltaMsg string

type toolCallMsg struct {
	name string
}

type toolResultMsg struct {
	name   string
	result string
}

type turnDoneMsg struct {
	answer string
	err    error
}

// Model is the interactive chat surface. All agent work happens in a
// goroutine; events arrive through a channel so the UI stays responsive
// while the model streams.
type Model struct {
	application *app.Application
	theme       Theme

	vp   viewport.Model
	ta   textarea.Model
	spin spinner.Model

	events    chan tea.Msg
	busy      bool
	streaming strings.Builder
	lines     []string
	width     int
	height    int
	ready     bool
}

func New(application *app.Application) *Model {
	theme := NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Ask something, or /help"
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	m := &Model{
		application: application,
		theme:       theme,
		ta:          ta,
		spin:        spin,
		events:      make(chan tea.Msg, 64),
	}
	m.addLine(theme.Title.Render("hermit") + theme.Footer.Render("  local coding agent · model "+application.Client.Model()))
	if summary := application.Session().Summary; strings.TrimSpace(summary) != "" {
		m.addLine(theme.RoleTool.Render("(resumed session with compacted history)"))
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick)
}

func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inputHeight := 4
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-inputHeight-1)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - inputHeight - 1
		}
		m.ta.SetWidth(msg.Width - 4)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			_ = m.application.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			input := strings.TrimSpace(m.ta.Value())
			if input == "" {
				return m, nil
			}
			m.ta.Reset()
			if strings.HasPrefix(input, "/") {
				return m, m.runSlash(input)
			}
			m.addLine(m.theme.RoleYou.Render("you ") + input)
			m.busy = true
			m.streaming.Reset()
			return m, tea.Batch(m.startTurn(input), m.waitEvent(), m.spin.Tick)
		}

	case streamDeltaMsg:
		m.streaming.WriteString(string(msg))
		m.refresh()
		return m, m.waitEvent()

	case toolCallMsg:
		m.addLine(m.theme.RoleTool.Render("→ " + msg.name))
		return m, m.waitEvent()

	case toolResultMsg:
		preview := firstLine(msg.result)
		m.addLine(m.theme.RoleTool.Render("← " + msg.name + ": " + preview))
		m.streaming.Reset()
		return m, m.waitEvent()

	case turnDoneMsg:
		m.busy = false
		m.streaming.Reset()
		if msg.err != nil {
			m.addLine(m.theme.RoleErr.Render("error ") + msg.err.Error())
		} else {
			m.addLine(m.theme.RoleAI.Render("hermit ") + strings.TrimSpace(msg.answer))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.busy {
			cmds = append(cmds, cmd)
		}
	}

	var taCmd tea.Cmd
	m.ta, taCmd = m.ta.Update(msg)
	cmds = append(cmds, taCmd)

	var vpCmd tea.Cmd
	m.vp, vpCmd = m.vp.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) startTurn(input string) tea.Cmd {
	events := m.events
	application := m.application
	return func() tea.Msg {
		go func() {
			hooks := app.Hooks{
				OnToken: func(delta string) {
					events <- streamDeltaMsg(delta)
				},
				OnToolCall: func(call app.ToolCall) {
					events <- toolCallMsg{name: call.Name}
				},
				OnToolResult: func(call app.ToolCall, result string) {
					events <- toolResultMsg{name: call.Name, result: result}
				},
			}
			answer, err := application.RunTurn(context.Background(), input, hooks)
			events <- turnDoneMsg{answer: answer, err: err}
		}()
		return nil
	}
}

func (m *Model) runSlash(input string) tea.Cmd {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		_ = m.application.Close()
		return tea.Quit
	case "/help":
		m.addLine(m.theme.RoleTool.Render("/tasks /archive /sessions /compact /quit"))
	case "/tasks":
		m.addLine(app.FormatTasks(m.application.Session().TaskList().All()))
	case "/archive":
		if _, err := m.application.ArchiveSession(); err != nil {
			m.addLine(m.theme.RoleErr.Render("archive failed: ") + err.Error())
		} else {
			m.addLine(m.theme.RoleTool.Render("session archived, starting fresh"))
		}
	case "/sessions":
		entries, err := m.application.ListArchived()
		if err != nil {
			m.addLine(m.theme.RoleErr.Render("list failed: ") + err.Error())
			break
		}
		if len(entries) == 0 {
			m.addLine(m.theme.RoleTool.Render("no archived sessions"))
			break
		}
		for _, e := range entries {
			m.addLine(m.theme.RoleTool.Render(fmt.Sprintf("%s  %d messages  archived %s",
				e.SessionID, e.MessageCount, e.ArchivedAt.Format("2006-01-02 15:04"))))
		}
	case "/compact":
		if m.application.Compactor.Compact(context.Background(), m.application.Session()) {
			m.application.Saver.MarkDirty(m.application.Session())
			m.addLine(m.theme.RoleTool.Render("older context folded into the summary"))
		} else {
			m.addLine(m.theme.RoleTool.Render("nothing to compact"))
		}
	default:
		m.addLine(m.theme.RoleErr.Render("unknown command: ") + fields[0])
	}
	m.refresh()
	return nil
}

func (m *Model) addLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	content := strings.Join(m.lines, "\n")
	if m.streaming.Len() > 0 {
		content += "\n" + m.theme.RoleAI.Render("hermit ") + m.streaming.String()
	}
	m.vp.SetContent(content)
	m.vp.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}
	status := "enter to send · /help for commands"
	if m.busy {
		status = m.spin.View() + " thinking"
	}
	return m.vp.View() + "\n" +
		m.theme.InputBox.Render(m.ta.View()) + "\n" +
		m.theme.Footer.Render(status)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
