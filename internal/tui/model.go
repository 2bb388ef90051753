package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/chatwidget/internal/domain"
)

type speaker int

const (
	speakerUser speaker = iota
	speakerBot
	speakerSystem
)

type line struct {
	from speaker
	text string
}

// Options configures the terminal widget.
type Options struct {
	// OpTimeout bounds each orchestrator call.
	OpTimeout time.Duration
	// Scrollback caps the number of conversation lines kept on screen.
	Scrollback int
}

// Model is the Bubble Tea model of the chat widget.
type Model struct {
	ctx       context.Context
	ctl       Controller
	bridge    *Bridge
	opTimeout time.Duration

	input   textinput.Model
	history viewport.Model
	spinner spinner.Model
	theme   theme

	scroll       scrollback
	typing       bool
	suggestions  domain.SuggestionSet
	minimized    bool
	confirmClear bool
	form         *formEntry
	lastForm     *formEntry
	status       string
	statusErr    bool
	width        int
}

// New creates the widget model. ctx bounds every orchestrator call the
// widget makes.
func New(ctx context.Context, ctl Controller, bridge *Bridge, opts Options) Model {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Placeholder = "Type a message, /inquiry, /apply or /clear"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4f46e5"))

	history := viewport.New(0, 0)
	history.MouseWheelEnabled = true

	return Model{
		ctx:       ctx,
		ctl:       ctl,
		bridge:    bridge,
		opTimeout: opts.OpTimeout,
		input:     input,
		history:   history,
		spinner:   sp,
		theme:     newTheme(),
		scroll:    newScrollback(opts.Scrollback),
		status:    "connecting...",
	}
}

// Init opens the widget and starts listening for display intents.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.bridge.Wait(),
		m.openCmd(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case uiBatchMsg:
		for _, item := range msg {
			m.apply(item)
		}
		m.refresh()
		return m, m.bridge.Wait()

	case actionDoneMsg:
		m.actionDone(msg)
		return m, nil

	case formOpenedMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("could not open form: %v", msg.err))
			return m, nil
		}
		m.form = newFormEntry(msg.kind, msg.formID)
		m.setStatus(m.form.title() + " started, esc cancels")
		return m, nil

	case submitDoneMsg:
		m.submitDone(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case userLineMsg:
		m.scroll.append(line{from: speakerUser, text: msg.text})
	case botLineMsg:
		m.scroll.append(line{from: speakerBot, text: msg.text})
	case typingMsg:
		m.typing = msg.on
	case suggestionsMsg:
		m.suggestions = msg.set
	case confirmationMsg:
		m.scroll.append(line{from: speakerSystem, text: confirmationText(msg.kind)})
	case widgetErrorMsg:
		m.setError(fmt.Sprintf("%s error: %s", msg.kind, msg.detail))
	case clearMsg:
		m.scroll.reset()
		m.typing = false
		m.suggestions = nil
		m.form = nil
		m.lastForm = nil
	}
}

func confirmationText(kind domain.SubmissionKind) string {
	if kind == domain.JobApplication {
		return "Your application was sent."
	}
	return "Your inquiry was sent."
}

func (m *Model) actionDone(msg actionDoneMsg) {
	if msg.err != nil {
		m.setError(fmt.Sprintf("%s failed: %v", msg.action, msg.err))
		return
	}
	switch msg.action {
	case "open":
		m.minimized = false
		m.setStatus("connected")
	case "clear":
		m.setStatus("conversation cleared")
	}
}

func (m *Model) submitDone(msg submitDoneMsg) {
	if msg.err == nil {
		m.lastForm = nil
		m.setStatus(msg.entry.title() + " submitted")
		return
	}
	if errors.Is(msg.err, domain.ErrAlreadySubmitted) {
		m.lastForm = nil
		m.setError("this form was already submitted")
		return
	}
	m.lastForm = msg.entry
	m.setError(fmt.Sprintf("%s failed: %v (type /retry to try again)", msg.entry.title(), msg.err))
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.minimized {
		if key == "enter" || key == "ctrl+o" {
			m.minimized = false
			return m, m.openCmd()
		}
		return m, nil
	}

	if m.confirmClear {
		switch key {
		case "y", "Y":
			m.confirmClear = false
			return m, m.clearCmd()
		case "n", "N", "esc":
			m.confirmClear = false
		}
		return m, nil
	}

	switch key {
	case "esc":
		if m.form != nil {
			m.form = nil
			m.setStatus("form cancelled")
			return m, nil
		}
		m.minimized = true
		return m, m.minimizeCmd()
	case "ctrl+l":
		m.confirmClear = true
		return m, nil
	case "enter":
		return m.handleEnter()
	}

	if m.form == nil && m.input.Value() == "" {
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.suggestions) {
			return m, m.selectCmd(n - 1)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	value := m.input.Value()

	if m.form != nil {
		if !m.form.fill(value) {
			m.setError(m.form.current().label + " is required")
			return m, nil
		}
		m.input.Reset()
		if !m.form.done() {
			return m, nil
		}
		entry := m.form
		m.form = nil
		m.setStatus("submitting " + strings.ToLower(entry.title()) + "...")
		return m, m.submitCmd(entry)
	}

	text := strings.TrimSpace(value)
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/inquiry":
		return m, m.openFormCmd(domain.Inquiry)
	case "/apply":
		return m, m.openFormCmd(domain.JobApplication)
	case "/clear":
		m.confirmClear = true
		return m, nil
	case "/retry":
		if m.lastForm == nil {
			m.setError("nothing to retry")
			return m, nil
		}
		entry := m.lastForm
		m.setStatus("retrying " + strings.ToLower(entry.title()) + "...")
		return m, m.submitCmd(entry)
	case "/quit":
		return m, tea.Quit
	}
	return m, m.sendCmd(text)
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.history.Width = max(width-4, 10)
	m.history.Height = max(height-12, 3)
	m.input.Width = max(width-8, 10)
	m.refresh()
}

func (m *Model) refresh() {
	var b strings.Builder
	for i, l := range m.scroll.lines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch l.from {
		case speakerUser:
			b.WriteString(m.theme.user.Render("You: ") + l.text)
		case speakerBot:
			b.WriteString(m.theme.bot.Render("Bot: ") + l.text)
		default:
			b.WriteString(m.theme.system.Render(l.text))
		}
	}
	m.history.SetContent(b.String())
	m.history.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.minimized {
		return m.theme.launcher.Render("Chat with us (enter to open)") + "\n" + m.statusLine()
	}

	sections := []string{
		m.theme.header.Render("Chat"),
		m.theme.panel.Render(m.history.View()),
	}
	if m.typing {
		sections = append(sections, m.spinner.View()+" Bot is typing...")
	}
	if len(m.suggestions) > 0 && m.form == nil {
		chips := make([]string, len(m.suggestions))
		for i, s := range m.suggestions {
			chips[i] = m.theme.suggestion.Render(fmt.Sprintf("%d %s", i+1, s))
		}
		sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, chips...))
	}

	switch {
	case m.confirmClear:
		sections = append(sections, m.theme.dialog.Render("Clear this conversation? (y/n)"))
	case m.form != nil:
		prompt := fmt.Sprintf("%s %d/%d: %s", m.form.title(), m.form.step+1, len(m.form.fields), m.form.current().label)
		sections = append(sections, m.theme.system.Render(prompt), m.input.View())
	default:
		sections = append(sections, m.input.View())
	}

	sections = append(sections,
		m.statusLine(),
		m.theme.help.Render("enter send | 1-3 suggestion | esc minimize | ctrl+l clear | ctrl+c quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusLine() string {
	if m.statusErr {
		return m.theme.errorStatus.Render(m.status)
	}
	return m.theme.status.Render(m.status)
}
