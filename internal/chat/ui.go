package chat

import "github.com/ashureev/chatwidget/internal/domain"

// UI receives display intents from the orchestrator. Calls are made from the
// orchestrator loop and must not block or call back into the orchestrator.
type UI interface {
	DisplayUserMessage(text string)
	DisplayBotMessage(text string)
	ShowTypingIndicator()
	ClearTypingIndicator()
	ShowSuggestions(set domain.SuggestionSet)
	HideSuggestions()
	ShowConfirmation(kind domain.SubmissionKind, formID string)
	ShowError(kind domain.ErrorKind, detail string)
	ClearDisplay()
}

// Transcript records conversation events. Record must not block.
type Transcript interface {
	Record(entry domain.TranscriptEntry)
}

type nopUI struct{}

func (nopUI) DisplayUserMessage(string) {}
func (nopUI) DisplayBotMessage(string) {}
func (nopUI) ShowTypingIndicator() {}
func (nopUI) ClearTypingIndicator() {}
func (nopUI) ShowSuggestions(domain.SuggestionSet) {}
func (nopUI) HideSuggestions() {}
func (nopUI) ShowConfirmation(domain.SubmissionKind, string) {}
func (nopUI) ShowError(domain.ErrorKind, string) {}
func (nopUI) ClearDisplay() {}

type nopTranscript struct{}

func (nopTranscript) Record(domain.TranscriptEntry) {}
