// Package chat is the conversational terminal front end: the user asks in
// natural language, answers any clarifying questions one at a time, and
// sees the generated SQL and its results.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/render"
)

// Asker runs one pipeline turn.
type Asker interface {
	Handle(ctx context.Context, text string, actx *ambiguity.Context) pipeline.Response
}

// DefaultTurnTimeout bounds a single turn.
const DefaultTurnTimeout = 2 * time.Minute

const placeholderAsk = "Ask about customers, accounts, transactions..."

type turnResultMsg struct {
	Resp  pipeline.Response
	RunID uint64
}

// clarification tracks the questions of an ambiguous request while the user
// answers them.
type clarification struct {
	original  string
	questions []string
	answers   []string
}

func (c *clarification) current() string { return c.questions[len(c.answers)] }

func (c *clarification) done() bool { return len(c.answers) >= len(c.questions) }

// Model is the bubbletea model of the chat UI.
type Model struct {
	width  int
	height int

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap

	asker    Asker
	renderer *render.Renderer
	timeout  time.Duration

	transcript   []string
	pending      *clarification
	lastQuestion string

	runID   uint64
	running bool
	cancel  context.CancelFunc

	quitting bool
}

// New returns a chat Model that sends turns to asker.
func New(asker Asker, r *render.Renderer) Model {
	if r == nil {
		r = render.New("default", "sqlite")
	}
	in := textinput.New()
	in.Placeholder = placeholderAsk
	in.Prompt = "> "
	in.PromptStyle = r.Theme.Prompt
	in.CharLimit = 1000
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	vp := viewport.New(80, 20)

	return Model{
		input:    in,
		viewport: vp,
		spinner:  s,
		help:     help.New(),
		keyMap:   DefaultKeyMap(),
		asker:    asker,
		renderer: r,
		timeout:  DefaultTurnTimeout,
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keyMap.Submit):
			return m, m.submit()
		case key.Matches(msg, m.keyMap.Cancel):
			return m, m.cancelOrSkip()
		case key.Matches(msg, m.keyMap.Clear):
			m.transcript = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keyMap.ToggleVerbose):
			m.renderer.Verbose = !m.renderer.Verbose
			return m, nil
		case key.Matches(msg, m.keyMap.ScrollUp), key.Matches(msg, m.keyMap.ScrollDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case turnResultMsg:
		if msg.RunID != m.runID {
			break // stale result from a cancelled turn
		}
		m.running = false
		m.cancel = nil
		m.show(m.renderer.Response(msg.Resp))
		if msg.Resp.Status == pipeline.StatusClarification && len(msg.Resp.FollowUpQuestions) > 0 {
			m.pending = &clarification{original: m.pendingOriginal(), questions: msg.Resp.FollowUpQuestions}
			m.promptNext()
		} else {
			m.pending = nil
			m.input.Placeholder = placeholderAsk
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles Enter: either a new question or an answer to the current
// clarifying question.
func (m *Model) submit() tea.Cmd {
	if m.running {
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()

	if m.pending != nil {
		m.pending.answers = append(m.pending.answers, text)
		m.show(m.renderer.Theme.UserText.Render("  "+answerLabel(text)))
		if !m.pending.done() {
			m.promptNext()
			return nil
		}
		return m.resume()
	}

	if text == "" {
		return nil
	}
	m.show(m.renderer.Theme.Prompt.Render("> ") + m.renderer.Theme.UserText.Render(text))
	m.lastQuestion = text
	return m.ask(text, nil)
}

// cancelOrSkip cancels a running turn, or skips the remaining clarifying
// questions and proceeds with what was answered.
func (m *Model) cancelOrSkip() tea.Cmd {
	if m.running {
		if m.cancel != nil {
			m.cancel()
		}
		m.running = false
		m.runID++
		m.show(m.renderer.Theme.WarningText.Render("Cancelled."))
		return nil
	}
	if m.pending != nil {
		for !m.pending.done() {
			m.pending.answers = append(m.pending.answers, "")
		}
		return m.resume()
	}
	return nil
}

func (m *Model) resume() tea.Cmd {
	p := m.pending
	m.pending = nil
	m.input.Placeholder = placeholderAsk
	text, actx := ambiguity.Resume(p.original, p.questions, p.answers)
	return m.ask(text, actx)
}

func (m *Model) ask(text string, actx *ambiguity.Context) tea.Cmd {
	m.runID++
	runID := m.runID
	m.running = true

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	m.cancel = cancel
	asker := m.asker

	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			defer cancel()
			return turnResultMsg{Resp: asker.Handle(ctx, text, actx), RunID: runID}
		},
	)
}

func (m *Model) promptNext() {
	q := m.pending.current()
	m.input.Placeholder = "answer, or press enter to skip"
	m.show(m.renderer.Theme.Question.Render("? " + q))
}

func (m *Model) pendingOriginal() string { return m.lastQuestion }

func (m *Model) show(s string) {
	m.transcript = append(m.transcript, strings.TrimRight(s, "\n"))
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) updateLayout() {
	inputH := 3
	helpH := 1
	titleH := 1
	h := m.height - inputH - helpH - titleH - 1
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 6
	m.help.Width = m.width
	m.refresh()
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	th := m.renderer.Theme

	title := th.Title.Render("bankql")
	status := ""
	if m.running {
		status = " " + m.spinner.View() + th.MutedText.Render(" thinking...")
	}

	box := th.InputBox
	if m.width > 2 {
		box = box.Width(m.width - 2)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title+status,
		m.viewport.View(),
		box.Render(m.input.View()),
		m.help.View(m.keyMap),
	)
}

func answerLabel(a string) string {
	if a == "" {
		return "(skipped)"
	}
	return a
}
