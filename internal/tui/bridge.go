// Package tui renders the chat widget in a terminal with Bubble Tea.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashureev/chatwidget/internal/domain"
)

type (
	userLineMsg     struct{ text string }
	botLineMsg      struct{ text string }
	typingMsg       struct{ on bool }
	suggestionsMsg  struct{ set domain.SuggestionSet }
	confirmationMsg struct {
		kind   domain.SubmissionKind
		formID string
	}
	widgetErrorMsg struct {
		kind   domain.ErrorKind
		detail string
	}
	clearMsg struct{}

	// uiBatchMsg carries display intents in the order the orchestrator
	// emitted them.
	uiBatchMsg []tea.Msg
)

// Bridge implements chat.UI by queueing display intents for the Bubble Tea
// program. Its methods never block.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	notify chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{notify: make(chan struct{}, 1)}
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Wait returns a command that resolves with every intent queued since the
// previous call.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		<-b.notify
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()
		return uiBatchMsg(batch)
	}
}

func (b *Bridge) DisplayUserMessage(text string) { b.push(userLineMsg{text: text}) }
func (b *Bridge) DisplayBotMessage(text string) { b.push(botLineMsg{text: text}) }
func (b *Bridge) ShowTypingIndicator() { b.push(typingMsg{on: true}) }
func (b *Bridge) ClearTypingIndicator() { b.push(typingMsg{on: false}) }
func (b *Bridge) HideSuggestions() { b.push(suggestionsMsg{}) }
func (b *Bridge) ClearDisplay() { b.push(clearMsg{}) }

func (b *Bridge) ShowSuggestions(set domain.SuggestionSet) {
	b.push(suggestionsMsg{set: append(domain.SuggestionSet(nil), set...)})
}

func (b *Bridge) ShowConfirmation(kind domain.SubmissionKind, formID string) {
	b.push(confirmationMsg{kind: kind, formID: formID})
}

func (b *Bridge) ShowError(kind domain.ErrorKind, detail string) {
	b.push(widgetErrorMsg{kind: kind, detail: detail})
}
