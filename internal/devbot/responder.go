package devbot

import (
	"strings"

	"github.com/ashureev/chatwidget/internal/domain"
)

// WelcomeMessage is sent as soon as a widget connects.
const WelcomeMessage = "Hi there! I'm the virtual assistant. How can I help you today?"

// Responder produces bot replies.
type Responder interface {
	Reply(sessionID, text string) string
}

// KeywordResponder answers the suggested prompts with canned text and
// echoes everything else.
type KeywordResponder struct{}

// Reply implements Responder.
func (KeywordResponder) Reply(_ string, text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "service"):
		return "We build web platforms, AI assistants and data pipelines. Type /inquiry to tell us about your project."
	case strings.Contains(lower, "job") || strings.Contains(lower, "opening"):
		return "We are hiring Go and frontend engineers. Type /apply to send your resume."
	case strings.Contains(lower, "contact"):
		return "You can reach us at hello@example.com or leave an inquiry with /inquiry."
	default:
		return "You said: " + text
	}
}

// Acknowledge returns the confirmation for a structured submission.
func Acknowledge(ev domain.OutboundEvent) string {
	switch ev.Submission {
	case domain.Inquiry:
		return "Thank you for your inquiry, " + ev.Fields[domain.FieldName] + "! We will get back to you soon."
	case domain.JobApplication:
		return "Thank you for your application, " + ev.Fields[domain.FieldName] + "! We will review your resume."
	default:
		return "Submission received."
	}
}
