package chat

import "github.com/ashureev/chatwidget/internal/domain"

// Deduplicator filters inbound bot frames before they reach the display.
// It is owned by the orchestrator loop and is not safe for concurrent use.
type Deduplicator struct {
	last *string
}

// Accept classifies a raw inbound frame. The typing sentinel always maps to
// a typing marker. Ordinary text identical to the last displayed bot message
// is rejected; anything else is accepted and becomes the new last message.
func (d *Deduplicator) Accept(raw string) (domain.InboundEvent, bool) {
	if raw == domain.TypingSentinel {
		return domain.TypingMarker(), true
	}
	if d.last != nil && *d.last == raw {
		return domain.InboundEvent{}, false
	}
	text := raw
	d.last = &text
	return domain.TextEvent(raw), true
}

// Last returns the last displayed bot message, or nil.
func (d *Deduplicator) Last() *string {
	if d.last == nil {
		return nil
	}
	text := *d.last
	return &text
}

// Reset forgets the last displayed message.
func (d *Deduplicator) Reset() {
	d.last = nil
}
