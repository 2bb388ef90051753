package domain

import (
	"encoding/json"
	"fmt"
)

// TypingSentinel is the inbound frame the bot sends while it is composing a reply.
const TypingSentinel = "Typing..."

// InboundKind tags an InboundEvent.
type InboundKind int

const (
	// InboundText is an ordinary bot message.
	InboundText InboundKind = iota
	// InboundTyping is the non-displayable typing marker.
	InboundTyping
)

// InboundEvent is a frame received from the bot.
type InboundEvent struct {
	Kind InboundKind
	Text string
}

// TextEvent builds an InboundText event.
func TextEvent(text string) InboundEvent {
	return InboundEvent{Kind: InboundText, Text: text}
}

// TypingMarker builds an InboundTyping event.
func TypingMarker() InboundEvent {
	return InboundEvent{Kind: InboundTyping}
}

// OutboundKind tags an OutboundEvent.
type OutboundKind int

const (
	// OutboundUserText is raw text typed or selected by the user.
	OutboundUserText OutboundKind = iota
	// OutboundSubmission is a structured form submission.
	OutboundSubmission
)

// Fields holds the named values of a submitted form.
type Fields map[string]string

// OutboundEvent is a frame sent to the bot.
type OutboundEvent struct {
	Kind       OutboundKind
	Text       string
	Submission SubmissionKind
	Fields     Fields
}

// UserText builds an OutboundUserText event.
func UserText(text string) OutboundEvent {
	return OutboundEvent{Kind: OutboundUserText, Text: text}
}

// StructuredSubmission builds an OutboundSubmission event.
func StructuredSubmission(kind SubmissionKind, fields Fields) OutboundEvent {
	return OutboundEvent{Kind: OutboundSubmission, Submission: kind, Fields: fields}
}

// submissionEnvelope is the wire shape of a structured submission.
type submissionEnvelope struct {
	Action string `json:"action"`
	Data   Fields `json:"data"`
}

// Encode renders the event as the text frame written to the transport.
func (e OutboundEvent) Encode() (string, error) {
	switch e.Kind {
	case OutboundUserText:
		return e.Text, nil
	case OutboundSubmission:
		action := e.Submission.Action()
		if action == "" {
			return "", fmt.Errorf("encode submission: unknown kind %d", e.Submission)
		}
		data := e.Fields
		if data == nil {
			data = Fields{}
		}
		raw, err := json.Marshal(submissionEnvelope{Action: action, Data: data})
		if err != nil {
			return "", fmt.Errorf("encode submission: %w", err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("encode: unknown outbound kind %d", e.Kind)
	}
}

// DecodeSubmission parses a structured submission frame. The second return
// value is false for frames that are plain user text.
func DecodeSubmission(frame string) (OutboundEvent, bool) {
	if len(frame) < 2 || frame[0] != '{' || frame[len(frame)-1] != '}' {
		return OutboundEvent{}, false
	}
	var env submissionEnvelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		return OutboundEvent{}, false
	}
	kind, ok := SubmissionKindFromAction(env.Action)
	if !ok {
		return OutboundEvent{}, false
	}
	return StructuredSubmission(kind, env.Data), true
}
