package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/dataset"
	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/service"
	"loanquery/internal/session"
)

type fakeChat struct {
	ready bool
	asked []string
	err   error
}

func (f *fakeChat) Ready() bool { return f.ready }

func (f *fakeChat) Ask(_ context.Context, sess *session.Session, q string) (domain.Turn, error) {
	f.asked = append(f.asked, q)
	if f.err != nil {
		return domain.Turn{}, f.err
	}
	_, demo := sess.Settings()
	mode := domain.ModeLive
	if demo {
		mode = domain.ModeDemo
	}
	turn := domain.Turn{
		Question: q,
		Answer:   "Credit history matters most.",
		Mode:     mode,
		Sources:  []domain.SearchResult{{Chunk: domain.Chunk{ID: "LP001002", Text: "Applicant LP001002 has credit history."}, Score: 0.5}},
		At:       time.Now(),
	}
	sess.Append(turn)
	return turn, nil
}

func (f *fakeChat) SampleQuestions() []string {
	return []string{"What factors affect loan approval?", "Why are loans denied?"}
}

func (f *fakeChat) DatasetInfo() (service.Info, error) {
	if !f.ready {
		return service.Info{}, errs.ErrIndexMissing
	}
	return service.Info{
		Overview:   dataset.Overview{TotalRows: 8, Approved: 6, Denied: 2},
		Summary:    "Most applicants have credit history.",
		Highlights: []string{"Applicant LP001002 is a married male graduate."},
	}, nil
}

func newTestModel(t *testing.T, ready bool) (Model, *fakeChat, *session.Session) {
	t.Helper()
	fc := &fakeChat{ready: ready}
	sess := session.NewStore(time.Hour, false).New()
	return New(fc, sess, Options{Style: "notty"}), fc, sess
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestParseCommand(t *testing.T) {
	name, arg, ok := parseCommand("/KEY  sk-123 ")
	assert.True(t, ok)
	assert.Equal(t, "key", name)
	assert.Equal(t, "sk-123", arg)

	name, arg, ok = parseCommand("/demo")
	assert.True(t, ok)
	assert.Equal(t, "demo", name)
	assert.Empty(t, arg)

	_, _, ok = parseCommand("why are loans denied?")
	assert.False(t, ok)
}

func TestNewSummarisesDataset(t *testing.T) {
	m, _, _ := newTestModel(t, true)
	assert.Equal(t, "8 applications, 6 approved, 2 denied", m.summary)
	assert.Equal(t, "Loading...", m.View())

	m, _, _ = newTestModel(t, false)
	assert.Equal(t, "No dataset loaded.", m.summary)
	assert.Equal(t, errs.UserMessage(errs.ErrIndexMissing), m.status)
}

func TestAskRoundTrip(t *testing.T) {
	m, fc, sess := newTestModel(t, true)

	m, cmd := typeLine(t, m, "  Why are loans denied?  ")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.transcript(), "_Thinking..._")

	// a second enter while busy is ignored
	m.input.SetValue("another")
	next, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Nil(t, again)

	msg := cmd()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"Why are loans denied?"}, fc.asked)
	assert.Len(t, sess.History(), 1)

	out := m.transcript()
	assert.Contains(t, out, "**You:** Why are loans denied?")
	assert.Contains(t, out, "Credit history matters most.")
	assert.NotContains(t, out, "Retrieved records")
	assert.Contains(t, m.status, "live")
}

func TestAskErrorShowsUserMessage(t *testing.T) {
	m, fc, _ := newTestModel(t, false)
	fc.err = errs.ErrIndexMissing.Wrap(errors.New("no manifest"))

	m, cmd := typeLine(t, m, "anything")
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Error: "+errs.UserMessage(errs.ErrIndexMissing), m.status)
}

func TestCommands(t *testing.T) {
	m, fc, sess := newTestModel(t, true)

	m, cmd := typeLine(t, m, "/demo")
	assert.Nil(t, cmd)
	_, demo := sess.Settings()
	assert.True(t, demo)
	assert.Equal(t, "Mode: demo.", m.status)

	m, _ = typeLine(t, m, "/key sk-test")
	hasKey, _ := sess.Settings()
	assert.True(t, hasKey)
	m, _ = typeLine(t, m, "/key")
	hasKey, _ = sess.Settings()
	assert.False(t, hasKey)

	m, _ = typeLine(t, m, "/samples")
	assert.Contains(t, m.note, "2. Why are loans denied?")

	m, _ = typeLine(t, m, "/sample 9")
	assert.Contains(t, m.status, "between 1 and 2")

	m, cmd = typeLine(t, m, "/sample 2")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, []string{"Why are loans denied?"}, fc.asked)
	assert.Contains(t, m.status, "demo")

	m, _ = typeLine(t, m, "/sources")
	assert.True(t, m.showSources)
	assert.Contains(t, m.transcript(), "**LP001002** (0.500)")

	m, _ = typeLine(t, m, "/clear")
	assert.Empty(t, sess.History())

	m, _ = typeLine(t, m, "/bogus")
	assert.Contains(t, m.status, "Unknown command /bogus")

	_, cmd = typeLine(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWindowResize(t *testing.T) {
	m, _, _ := newTestModel(t, true)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	assert.True(t, m.ready)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Contains(t, m.View(), "Loan Dataset Q&A")
}

func TestHighlightQuestionTerms(t *testing.T) {
	out := highlightQuestionTerms("credit history is key", "Does credit matter?")
	assert.Contains(t, out, "history is key")
	assert.Equal(t, "plain", highlightQuestionTerms("plain", "a b"))
}

func TestSummaryCommand(t *testing.T) {
	m, _, _ := newTestModel(t, true)
	m, cmd := typeLine(t, m, "/summary")
	assert.Nil(t, cmd)
	assert.Contains(t, m.note, "Most applicants have credit history.")
	assert.Contains(t, m.note, "- Applicant LP001002 is a married male graduate.")

	m, _, _ = newTestModel(t, false)
	m, _ = typeLine(t, m, "/summary")
	assert.Equal(t, "Error: "+errs.UserMessage(errs.ErrIndexMissing), m.status)
}
