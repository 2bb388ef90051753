package chat

import (
	"testing"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

func TestSessionTimerFiresOnce(t *testing.T) {
	fired := make(chan uint64, 4)
	timer := NewSessionTimer(func(gen uint64) { fired <- gen })

	gen := timer.Arm(20 * time.Millisecond)
	select {
	case got := <-fired:
		if got != gen {
			t.Fatalf("fired generation %d, want %d", got, gen)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if timer.Armed() {
		t.Fatal("timer still armed after firing")
	}

	timer.Cancel()
	select {
	case <-fired:
		t.Fatal("timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionTimerResetPostpones(t *testing.T) {
	fired := make(chan uint64, 4)
	timer := NewSessionTimer(func(gen uint64) { fired <- gen })

	first := timer.Arm(60 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	second := timer.Reset()
	if second == first {
		t.Fatal("Reset() did not bump the generation")
	}

	select {
	case got := <-fired:
		if got != second {
			t.Fatalf("fired generation %d, want %d", got, second)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after reset")
	}
}

func TestSessionTimerCancel(t *testing.T) {
	fired := make(chan uint64, 1)
	timer := NewSessionTimer(func(gen uint64) { fired <- gen })

	timer.Arm(20 * time.Millisecond)
	timer.Cancel()
	timer.Cancel()

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
	if gen := timer.Reset(); gen != timer.Generation() || timer.Armed() {
		t.Fatal("Reset() re-armed a canceled timer")
	}
}

func TestDeduplicator(t *testing.T) {
	var d Deduplicator

	if ev, ok := d.Accept(domain.TypingSentinel); !ok || ev.Kind != domain.InboundTyping {
		t.Fatalf("Accept(typing) = %+v, %v", ev, ok)
	}
	if d.Last() != nil {
		t.Fatal("typing marker became the last message")
	}

	var shown []string
	for _, raw := range []string{"A", "A", "B", "A", domain.TypingSentinel, "A"} {
		if ev, ok := d.Accept(raw); ok && ev.Kind == domain.InboundText {
			shown = append(shown, ev.Text)
		}
	}
	if !equal(shown, []string{"A", "B", "A"}) {
		t.Fatalf("accepted %v, want [A B A]", shown)
	}

	d.Reset()
	if _, ok := d.Accept("A"); !ok {
		t.Fatal("Reset() kept the last message")
	}
}
