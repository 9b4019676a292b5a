package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/render"
)

type call struct {
	text string
	actx *ambiguity.Context
}

type fakeAsker struct {
	mu    sync.Mutex
	resps []pipeline.Response
	calls []call
}

func (a *fakeAsker) Handle(_ context.Context, text string, actx *ambiguity.Context) pipeline.Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call{text: text, actx: actx})
	if len(a.resps) == 0 {
		return pipeline.Response{Status: pipeline.StatusSuccess, State: pipeline.StateDone, Explanation: "ok"}
	}
	r := a.resps[0]
	a.resps = a.resps[1:]
	return r
}

func newModel(a Asker) Model {
	m := New(a, render.New("default", "sqlite"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

// press sends a key and runs any resulting turn to completion.
func press(t *testing.T, m Model, k tea.KeyType) Model {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	m = next.(Model)
	for _, msg := range collect(cmd) {
		if res, ok := msg.(turnResultMsg); ok {
			next, _ = m.Update(res)
			m = next.(Model)
		}
	}
	return m
}

// collect runs cmd and flattens batches, skipping spinner ticks.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		if c == nil {
			continue
		}
		if res, isTurn := c().(turnResultMsg); isTurn {
			out = append(out, res)
		}
	}
	return out
}

func TestSubmitRunsTurn(t *testing.T) {
	a := &fakeAsker{resps: []pipeline.Response{{
		Status: pipeline.StatusSuccess, State: pipeline.StateDone,
		SQL: "SELECT 1", Explanation: "Query executed successfully.",
	}}}
	m := newModel(a)
	m = typeText(t, m, "show accounts")
	m = press(t, m, tea.KeyEnter)

	if len(a.calls) < 1 || a.calls[0].text != "show accounts" {
		t.Fatalf("calls = %+v", a.calls)
	}
	if a.calls[0].actx != nil {
		t.Error("first turn should have no context")
	}
	if m.running {
		t.Error("still running after result")
	}
	out := strings.Join(m.transcript, "\n")
	if !strings.Contains(out, "Query executed successfully.") {
		t.Errorf("transcript missing explanation:\n%s", out)
	}
	if m.input.Value() != "" {
		t.Errorf("input not reset: %q", m.input.Value())
	}
}

func TestEmptySubmitIgnored(t *testing.T) {
	a := &fakeAsker{}
	m := newModel(a)
	m = press(t, m, tea.KeyEnter)
	if len(a.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(a.calls))
	}
}

func TestClarificationLoop(t *testing.T) {
	a := &fakeAsker{resps: []pipeline.Response{{
		Status: pipeline.StatusClarification, State: pipeline.StateClarifying,
		FollowUpQuestions: []string{"Which time period?", "Which branch?"},
	}}}
	m := newModel(a)
	m = typeText(t, m, "show recent transactions")
	m = press(t, m, tea.KeyEnter)

	if m.pending == nil {
		t.Fatal("expected pending clarification")
	}
	if got := m.pending.current(); got != "Which time period?" {
		t.Errorf("current question = %q", got)
	}

	m = typeText(t, m, "last 7 days")
	m = press(t, m, tea.KeyEnter)
	if m.pending == nil || m.pending.current() != "Which branch?" {
		t.Fatal("expected second question")
	}
	if len(a.calls) != 1 {
		t.Fatalf("answering should not run a turn yet, calls = %d", len(a.calls))
	}

	// Skip the second question.
	m = press(t, m, tea.KeyEnter)
	if m.pending != nil {
		t.Error("pending should be cleared")
	}
	if len(a.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(a.calls))
	}
	follow := a.calls[1]
	if !strings.HasPrefix(follow.text, "show recent transactions. Additional context: Which time period? Answer: last 7 days") {
		t.Errorf("follow-up text = %q", follow.text)
	}
	if follow.actx == nil || !follow.actx.Continued() {
		t.Error("follow-up should carry a continued context")
	}
	if len(follow.actx.Clarifications) != 1 {
		t.Errorf("clarifications = %v", follow.actx.Clarifications)
	}
}

func TestEscSkipsClarification(t *testing.T) {
	a := &fakeAsker{resps: []pipeline.Response{{
		Status: pipeline.StatusClarification, State: pipeline.StateClarifying,
		FollowUpQuestions: []string{"Which time period?"},
	}}}
	m := newModel(a)
	m = typeText(t, m, "show recent transactions")
	m = press(t, m, tea.KeyEnter)
	m = press(t, m, tea.KeyEsc)

	if len(a.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(a.calls))
	}
	want := "show recent transactions. Use reasonable defaults for any ambiguous terms."
	if a.calls[1].text != want {
		t.Errorf("text = %q, want %q", a.calls[1].text, want)
	}
	if m.pending != nil {
		t.Error("pending should be cleared")
	}
}

func TestStaleResultIgnored(t *testing.T) {
	m := newModel(&fakeAsker{})
	m.runID = 5
	m.running = true
	next, _ := m.Update(turnResultMsg{RunID: 4, Resp: pipeline.Response{Explanation: "old"}})
	m = next.(Model)
	if !m.running {
		t.Error("stale result should not stop the current run")
	}
	if strings.Contains(strings.Join(m.transcript, "\n"), "old") {
		t.Error("stale result rendered")
	}
}

func TestEscCancelsRunning(t *testing.T) {
	m := newModel(&fakeAsker{})
	cancelled := false
	m.running = true
	m.runID = 1
	m.cancel = func() { cancelled = true }
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if !cancelled || m.running {
		t.Errorf("cancelled=%v running=%v", cancelled, m.running)
	}
	if m.runID != 2 {
		t.Errorf("runID = %d, want 2", m.runID)
	}
}

func TestToggleVerboseAndClear(t *testing.T) {
	m := newModel(&fakeAsker{})
	m.show("line")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlV})
	m = next.(Model)
	if !m.renderer.Verbose {
		t.Error("verbose not toggled")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m = next.(Model)
	if len(m.transcript) != 0 {
		t.Errorf("transcript = %v", m.transcript)
	}
}

func TestQuit(t *testing.T) {
	m := newModel(&fakeAsker{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected quit cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.View() != "Goodbye!\n" {
		t.Errorf("View = %q", m.View())
	}
}

func TestView(t *testing.T) {
	m := newModel(&fakeAsker{})
	v := m.View()
	if !strings.Contains(v, "bankql") {
		t.Error("missing title")
	}
	if !strings.Contains(v, "send") {
		t.Error("missing help")
	}
}
