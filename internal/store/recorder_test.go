package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

type memorySink struct {
	mu      sync.Mutex
	entries []domain.TranscriptEntry
	gate    chan struct{}
	closed  bool
	err     error
}

func (m *memorySink) Append(ctx context.Context, e domain.TranscriptEntry) error {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Text
	}
	return out
}

func TestAsyncRecorderDeliversInOrder(t *testing.T) {
	sink := &memorySink{}
	r := NewAsyncRecorder(sink, 16, nil)

	for _, text := range []string{"a", "b", "c"} {
		r.Record(domain.TranscriptEntry{SessionID: "s", Kind: domain.EntryUserMessage, Text: text})
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	got := sink.texts()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("sink got %v, want [a b c]", got)
	}
	if !sink.closed {
		t.Fatal("Close() did not close the sink")
	}

	r.Record(domain.TranscriptEntry{SessionID: "s", Text: "late"})
	if len(sink.texts()) != 3 {
		t.Fatal("Record() after Close() reached the sink")
	}
}

func TestAsyncRecorderDropsOldestWhenFull(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	r := NewAsyncRecorder(sink, 2, nil)

	// The first entry is picked up by the worker and blocks on the gate.
	r.Record(domain.TranscriptEntry{SessionID: "s", Text: "first"})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		for _, text := range []string{"b", "c", "d"} {
			r.Record(domain.TranscriptEntry{SessionID: "s", Text: text})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record() blocked on a full queue")
	}
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", r.Dropped())
	}

	close(sink.gate)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	got := sink.texts()
	if len(got) != 3 || got[0] != "first" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("sink got %v, want [first c d]", got)
	}
}

func TestAsyncRecorderSurvivesSinkErrors(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	r := NewAsyncRecorder(sink, 4, nil)

	r.Record(domain.TranscriptEntry{SessionID: "s", Text: "lost"})
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if len(sink.texts()) != 0 {
		t.Fatal("failed append was stored")
	}
}

type countingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *countingPruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, nil
}

func (p *countingPruner) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoffs...)
}

func TestRetentionWorkerPrunes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &countingPruner{}

	stop := StartRetentionWorker(ctx, p, time.Hour, 10*time.Millisecond)
	defer stop()

	deadline := time.Now().Add(time.Second)
	for len(p.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	calls := p.calls()
	if len(calls) == 0 {
		t.Fatal("retention worker never pruned")
	}
	if age := time.Since(calls[0]); age < 59*time.Minute || age > 61*time.Minute {
		t.Fatalf("cutoff age = %v, want about one hour", age)
	}
}

func TestRetentionWorkerStopWaitsForExit(t *testing.T) {
	p := &countingPruner{}
	stop := StartRetentionWorker(context.Background(), p, time.Hour, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for len(p.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stop()
	n := len(p.calls())
	if n == 0 {
		t.Fatal("retention worker never pruned")
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(p.calls()); got != n {
		t.Fatalf("pruned %d times after stop returned", got-n)
	}
}

func TestRedisStreamUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisStream(ctx, "127.0.0.1:1", "", 0); err == nil {
		t.Fatal("NewRedisStream() succeeded against a closed port")
	}
}

func TestStreamValues(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	v := streamValues(domain.TranscriptEntry{SessionID: "s1", Kind: domain.EntryBotMessage, Text: "hi", CreatedAt: at})
	if v["session_id"] != "s1" || v["kind"] != "bot_message" || v["text"] != "hi" || v["created_at"] != "1700000000123" {
		t.Fatalf("streamValues() = %v", v)
	}
}
