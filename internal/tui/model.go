// Package tui is the terminal front end of Insight Scout: URL fields and a
// question field over a single session, with outcomes drawn as cards.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/session"
)

// Actions is the TUI-facing subset of the Assistant.
type Actions interface {
	Process(ctx context.Context, st *session.State, urls []string) scout.Outcome
	Ask(ctx context.Context, st *session.State, question string) scout.Outcome
	MaxURLs() int
}

// outcomeMsg carries the result of an action back into Update.
type outcomeMsg struct {
	action  string
	outcome scout.Outcome
}

// Model is the Bubble Tea model for the terminal UI.
type Model struct {
	ctx      context.Context
	actions  Actions
	state    *session.State
	urls     []textinput.Model
	question textinput.Model
	focus    int
	spinner  spinner.Model
	viewport viewport.Model
	busy     string
	output   *scout.Outcome
	width    int
	ready    bool
}

// New creates a TUI model over a fresh session. ctx bounds every action.
func New(ctx context.Context, actions Actions) Model {
	urls := make([]textinput.Model, actions.MaxURLs())
	for i := range urls {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("Link %d: ", i+1)
		ti.Placeholder = "https://"
		ti.CharLimit = 2048
		urls[i] = ti
	}
	q := textinput.New()
	q.Prompt = "> "
	q.Placeholder = "e.g., What is the article about?"
	q.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		actions:  actions,
		state:    session.NewState(),
		urls:     urls,
		question: q,
		spinner:  sp,
		viewport: viewport.New(0, 0),
	}
	m.setFocus(0)
	return m
}

// State returns the session the model works on.
func (m Model) State() *session.State { return m.state }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and action-result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-m.formHeight()-3)
		m.refresh()
		return m, nil

	case outcomeMsg:
		m.busy = ""
		o := msg.outcome
		m.output = &o
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			return m, tea.Quit
		case "tab", "down":
			m.setFocus((m.focus + 1) % m.fields())
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus - 1 + m.fields()) % m.fields())
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "ctrl+p":
			return m.start("process")
		case "enter":
			if m.focus == len(m.urls) {
				return m.start("ask")
			}
			m.setFocus(m.focus + 1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus < len(m.urls) {
		m.urls[m.focus], cmd = m.urls[m.focus].Update(msg)
	} else {
		m.question, cmd = m.question.Update(msg)
	}
	return m, cmd
}

// start launches an action in the background unless one is running.
func (m Model) start(action string) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	m.busy = action

	ctx, actions, st := m.ctx, m.actions, m.state
	var run tea.Cmd
	switch action {
	case "process":
		urls := make([]string, len(m.urls))
		for i, u := range m.urls {
			urls[i] = u.Value()
		}
		run = func() tea.Msg {
			return outcomeMsg{action: action, outcome: actions.Process(ctx, st, urls)}
		}
	default:
		q := m.question.Value()
		run = func() tea.Msg {
			return outcomeMsg{action: action, outcome: actions.Ask(ctx, st, q)}
		}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// View renders the form, the status line and the latest outcome.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Insight Scout") + "  " + subtleStyle.Render("Ask questions based on news URLs") + "\n\n")

	b.WriteString(labelStyle.Render("Enter your links") + "\n")
	for i, u := range m.urls {
		b.WriteString(m.fieldView(i, u.View()) + "\n")
	}
	b.WriteString(labelStyle.Render("What's on your mind today?") + "\n")
	b.WriteString(m.fieldView(len(m.urls), m.question.View()) + "\n")

	status := subtleStyle.Render("tab: next field · ctrl+p: process URLs · enter: get answer · esc: quit")
	if m.busy != "" {
		status = m.spinner.View() + " " + busyText(m.busy)
	}
	b.WriteString(status + "\n")
	b.WriteString(m.viewport.View())
	return b.String()
}

func (m Model) fieldView(i int, view string) string {
	if i == m.focus {
		return focusStyle.Render("▸ ") + view
	}
	return "  " + view
}

func busyText(action string) string {
	if action == "process" {
		return "Fetching content from URLs..."
	}
	return "Thinking..."
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.urls {
		if j == i {
			m.urls[j].Focus()
		} else {
			m.urls[j].Blur()
		}
	}
	if i == len(m.urls) {
		m.question.Focus()
	} else {
		m.question.Blur()
	}
}

func (m Model) fields() int { return len(m.urls) + 1 }

// formHeight is the number of lines the header and inputs take.
func (m Model) formHeight() int { return 2 + 1 + len(m.urls) + 1 + 1 + 1 }

func (m *Model) refresh() {
	if m.output == nil {
		m.viewport.SetContent(subtleStyle.Render("No results yet."))
		return
	}
	m.viewport.SetContent(RenderOutcome(*m.output, m.viewport.Width))
	m.viewport.GotoTop()
}

// Run starts the terminal UI and blocks until the user quits.
func Run(ctx context.Context, actions Actions) error {
	p := tea.NewProgram(New(ctx, actions), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
