package tui

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/service"
	"loanquery/internal/session"
)

// ChatPort is the TUI-facing subset of the question answering service.
type ChatPort interface {
	Ready() bool
	Ask(ctx context.Context, sess *session.Session, question string) (domain.Turn, error)
	SampleQuestions() []string
	DatasetInfo() (service.Info, error)
}

// Options tune rendering. Style is a glamour standard style name; empty
// means auto-detect from the terminal.
type Options struct {
	Style string
}

type answerMsg struct {
	turn domain.Turn
	err  error
}

// Model is the Bubble Tea model for the terminal chat.
type Model struct {
	service  ChatPort
	sess     *session.Session
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	summary     string
	status      string
	note        string
	pending     string
	busy        bool
	showSources bool
	ready       bool
}

// New creates a chat model bound to one session.
func New(svc ChatPort, sess *session.Session, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the loan data, or /help"
	ti.Focus()
	ti.CharLimit = 500
	vp := viewport.New(0, 0)
	m := Model{service: svc, sess: sess, opts: opts, input: ti, viewport: vp}
	m.summary = m.datasetSummary()
	if svc.Ready() {
		m.status = "Ready. " + m.modeLine()
	} else {
		m.status = errs.UserMessage(errs.ErrIndexMissing)
	}
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.renderer = newRenderer(m.opts.Style, m.viewport.Width-4)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + errs.UserMessage(msg.err)
		} else {
			m.status = fmt.Sprintf("Answered in %s mode. %s", msg.turn.Mode, m.modeLine())
			if msg.turn.Notice != "" {
				m.status = msg.turn.Notice
			}
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs a slash command or sends the line as a question.
func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	name, arg, isCmd := parseCommand(line)
	if !isCmd {
		return m.ask(line)
	}
	m.note = ""
	switch name {
	case "help":
		m.note = helpText
	case "demo":
		_, demo := m.sess.Settings()
		m.sess.SetDemo(!demo)
		m.status = m.modeLine()
	case "key":
		m.sess.SetAPIKey(arg)
		if arg == "" {
			m.status = "API key forgotten. " + m.modeLine()
		} else {
			m.status = "API key stored for this session. " + m.modeLine()
		}
	case "clear":
		m.sess.Clear()
		m.status = "Conversation cleared."
	case "samples":
		var b strings.Builder
		b.WriteString("**Sample questions**\n\n")
		for i, q := range m.service.SampleQuestions() {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\nType `/sample <n>` to ask one.")
		m.note = b.String()
	case "sample":
		samples := m.service.SampleQuestions()
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(samples) {
			m.status = fmt.Sprintf("Pick a sample between 1 and %d.", len(samples))
			break
		}
		return m.ask(samples[n-1])
	case "summary":
		info, err := m.service.DatasetInfo()
		if err != nil {
			m.status = "Error: " + errs.UserMessage(err)
			break
		}
		var b strings.Builder
		b.WriteString("**Dataset summary**\n\n")
		if info.Summary != "" {
			b.WriteString(info.Summary + "\n\n")
		}
		for _, h := range info.Highlights {
			b.WriteString("- " + h + "\n")
		}
		m.note = b.String()
	case "sources":
		m.showSources = !m.showSources
		if m.showSources {
			m.status = "Showing retrieved records."
		} else {
			m.status = "Hiding retrieved records."
		}
	case "quit", "exit":
		return m, tea.Quit
	default:
		m.status = fmt.Sprintf("Unknown command /%s. Type /help.", name)
	}
	m.refresh()
	return m, nil
}

func (m Model) ask(question string) (tea.Model, tea.Cmd) {
	m.busy = true
	m.note = ""
	m.pending = question
	m.status = "Thinking..."
	m.refresh()
	svc, sess := m.service, m.sess
	return m, func() tea.Msg {
		turn, err := svc.Ask(context.Background(), sess, question)
		return answerMsg{turn: turn, err: err}
	}
}

// parseCommand splits "/name arg" lines. Names are case-insensitive.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

const helpText = "**Commands**\n\n" +
	"- `/samples` list sample questions, `/sample <n>` asks one\n" +
	"- `/key <value>` sets the API key for this session, `/key` alone forgets it\n" +
	"- `/demo` toggles demo answers\n" +
	"- `/sources` shows or hides the retrieved records, `/summary` describes the dataset\n" +
	"- `/clear` starts over, `/quit` leaves"

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Loan Dataset Q&A")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	chat := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + chat + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

// transcript renders the conversation as markdown through glamour.
func (m Model) transcript() string {
	var b strings.Builder
	b.WriteString(service.WelcomeMessage + "\n\n")
	for _, t := range m.sess.History() {
		fmt.Fprintf(&b, "---\n\n**You:** %s\n\n", t.Question)
		fmt.Fprintf(&b, "**Assistant** _(%s)_:\n\n%s\n\n", t.Mode, t.Answer)
		if t.Notice != "" {
			fmt.Fprintf(&b, "> %s\n\n", t.Notice)
		}
		if m.showSources && len(t.Sources) > 0 {
			b.WriteString("Retrieved records:\n\n")
			for i, r := range t.Sources {
				fmt.Fprintf(&b, "%d. **%s** (%.3f) %s\n", i+1, r.Chunk.ID, r.Score, r.Chunk.Text)
			}
			b.WriteString("\n")
		}
	}
	if m.pending != "" {
		fmt.Fprintf(&b, "---\n\n**You:** %s\n\n_Thinking..._\n\n", m.pending)
	}
	if m.note != "" {
		b.WriteString("---\n\n" + m.note + "\n")
	}
	md := b.String()
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	if m.showSources {
		out = highlightQuestionTerms(out, m.lastQuestion())
	}
	return out
}

func (m Model) lastQuestion() string {
	if t, ok := m.sess.Last(); ok {
		return t.Question
	}
	return ""
}

func (m Model) modeLine() string {
	hasKey, demo := m.sess.Settings()
	switch {
	case demo:
		return "Mode: demo."
	case hasKey:
		return "Mode: live (session key)."
	default:
		return "Mode: live if a default key is configured, demo otherwise."
	}
}

func (m Model) datasetSummary() string {
	info, err := m.service.DatasetInfo()
	if err != nil {
		return "No dataset loaded."
	}
	return fmt.Sprintf("%d applications, %d approved, %d denied", info.TotalRows, info.Approved, info.Denied)
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(max(20, width)))
	if err != nil {
		return nil
	}
	return r
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// highlightQuestionTerms emphasises words of the rendered transcript that
// also appear in the question. Short words are skipped.
func highlightQuestionTerms(text, question string) string {
	terms := toTokenSet(question)
	if len(terms) == 0 {
		return text
	}
	return unicodeWordRe.ReplaceAllStringFunc(text, func(w string) string {
		if _, ok := terms[strings.ToLower(w)]; ok {
			return highlightStyle.Render(w)
		}
		return w
	})
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) > 3 {
			m[t] = struct{}{}
		}
	}
	return m
}
