package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
	"github.com/ashureev/chatwidget/internal/submission"
	"github.com/ashureev/chatwidget/internal/transport"
	"github.com/ashureev/chatwidget/internal/transport/transporttest"
)

const (
	waitTimeout = 2 * time.Second
	syncPrefix  = "__sync__"
)

// recordingUI captures display intents as short strings.
type recordingUI struct {
	mu     sync.Mutex
	events []string
}

func (u *recordingUI) add(ev string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, ev)
}

func (u *recordingUI) DisplayUserMessage(text string) { u.add("user:" + text) }
func (u *recordingUI) DisplayBotMessage(text string) { u.add("bot:" + text) }
func (u *recordingUI) ShowTypingIndicator() { u.add("typing") }
func (u *recordingUI) ClearTypingIndicator() { u.add("typing-clear") }
func (u *recordingUI) HideSuggestions() { u.add("suggestions-hide") }
func (u *recordingUI) ClearDisplay() { u.add("clear") }

func (u *recordingUI) ShowSuggestions(set domain.SuggestionSet) {
	u.add(fmt.Sprintf("suggestions:%d", len(set)))
}

func (u *recordingUI) ShowConfirmation(kind domain.SubmissionKind, formID string) {
	u.add("confirm:" + kind.String() + ":" + formID)
}

func (u *recordingUI) ShowError(kind domain.ErrorKind, _ string) {
	u.add("error:" + kind.String())
}

func (u *recordingUI) snapshot() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.events))
	copy(out, u.events)
	return out
}

// matching returns the events with the given prefix.
func (u *recordingUI) matching(prefix string) []string {
	var out []string
	for _, ev := range u.snapshot() {
		if strings.HasPrefix(ev, prefix) {
			out = append(out, ev)
		}
	}
	return out
}

func (u *recordingUI) count(ev string) int {
	n := 0
	for _, got := range u.snapshot() {
		if got == ev {
			n++
		}
	}
	return n
}

// fakeUploader hands out references and optionally blocks until released.
type fakeUploader struct {
	mu    sync.Mutex
	calls int
	ref   string
	err   error
	gate  chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, _ string, body io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, body)
	f.mu.Lock()
	f.calls++
	gate, ref, err := f.gate, f.ref, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return ref, err
}

func (f *fakeUploader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	o        *Orchestrator
	dialer   *transporttest.Dialer
	ui       *recordingUI
	uploader *fakeUploader
	cancel   context.CancelFunc
	stopped  chan struct{}
	syncs    int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		dialer:   transporttest.NewDialer(),
		ui:       &recordingUI{},
		uploader: &fakeUploader{ref: "uploads/resume-1.pdf"},
		stopped:  make(chan struct{}),
	}
	h.o = New(h.dialer, submission.NewAdapter(h.uploader), h.ui, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = h.o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.stopped
	})
	return h
}

func (h *harness) snap(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.o.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	return s
}

// eventually polls cond until it holds or the timeout elapses.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// openReady opens the widget and waits until the transport is usable.
func (h *harness) openReady(t *testing.T) *transporttest.Conn {
	t.Helper()
	if err := h.o.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	conn := h.dialer.WaitDial(waitTimeout)
	if conn == nil {
		t.Fatal("no connection dialed")
	}
	eventually(t, "transport ready", func() bool { return h.snap(t).Ready })
	return conn
}

// deliverAndWait pushes frames followed by a unique marker and waits until
// the marker is displayed, so every earlier frame was processed.
func (h *harness) deliverAndWait(t *testing.T, conn *transporttest.Conn, frames ...string) {
	t.Helper()
	h.syncs++
	marker := fmt.Sprintf("%s%d", syncPrefix, h.syncs)
	for _, f := range frames {
		conn.Deliver(f)
	}
	conn.Deliver(marker)
	eventually(t, "sync marker", func() bool { return h.ui.count("bot:"+marker) > 0 })
}

func botMessages(ui *recordingUI) []string {
	var out []string
	for _, ev := range ui.matching("bot:") {
		if !strings.HasPrefix(ev, "bot:"+syncPrefix) {
			out = append(out, strings.TrimPrefix(ev, "bot:"))
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSendsWhileConnectingAreDeliveredInOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.Hold()
	ctx := context.Background()

	if err := h.o.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	for _, msg := range []string{"one", "two", "three"} {
		if err := h.o.SendText(ctx, msg); err != nil {
			t.Fatalf("SendText(%q) error: %v", msg, err)
		}
	}
	if got := h.snap(t).Pending; got != 3 {
		t.Fatalf("Pending = %d, want 3", got)
	}

	h.dialer.Release()
	conn := h.dialer.WaitDial(waitTimeout)
	if conn == nil {
		t.Fatal("no connection dialed")
	}
	want := []string{"one", "two", "three"}
	if got := conn.WaitWritten(3, waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}

	eventually(t, "queue drained", func() bool { return h.snap(t).Pending == 0 })
	if err := h.o.SendText(ctx, "four"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	want = append(want, "four")
	if got := conn.WaitWritten(4, waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	if n := len(h.dialer.Conns()); n != 1 {
		t.Fatalf("dialed %d times, want 1", n)
	}
}

func TestDuplicateBotMessagesAreSuppressed(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.openReady(t)

	h.deliverAndWait(t, conn, "A", "A", "B", "A")

	if got, want := botMessages(h.ui), []string{"A", "B", "A"}; !equal(got, want) {
		t.Fatalf("displayed = %v, want %v", got, want)
	}
}

func TestTypingMarkerIsNeverDisplayed(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.openReady(t)

	h.deliverAndWait(t, conn, domain.TypingSentinel, "Hi", domain.TypingSentinel, domain.TypingSentinel)

	if got := botMessages(h.ui); !equal(got, []string{"Hi"}) {
		t.Fatalf("displayed = %v, want [Hi]", got)
	}
	if n := h.ui.count("typing-clear"); n < 5 {
		t.Fatalf("typing indicator cleared %d times, want one per inbound frame", n)
	}
	last := h.snap(t).Session.LastBotMessage
	if last == nil || !strings.HasPrefix(*last, syncPrefix) {
		t.Fatalf("LastBotMessage = %v, want the last displayed text", last)
	}
}

func TestSuggestionsAttachOnlyToFirstReply(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.openReady(t)

	if h.snap(t).Session.SuggestionsShown {
		t.Fatal("SuggestionsShown set before any bot message")
	}
	h.deliverAndWait(t, conn, "Welcome!", "Anything else?")

	if n := len(h.ui.matching("suggestions:")); n != 1 {
		t.Fatalf("suggestions shown %d times, want 1", n)
	}
	s := h.snap(t)
	if !s.Session.SuggestionsShown || !s.SuggestionsVisible {
		t.Fatalf("snapshot = %+v, want suggestions shown and visible", s)
	}
}

func TestSuggestionClickScenario(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.openReady(t)
	ctx := context.Background()

	if err := h.o.SendText(ctx, "hello"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if err := h.o.SelectSuggestion(ctx, 0); !errors.Is(err, domain.ErrUnknownSuggestion) {
		t.Fatalf("SelectSuggestion() before reply = %v, want ErrUnknownSuggestion", err)
	}
	conn.Deliver(domain.TypingSentinel)
	conn.Deliver("Hi there")
	eventually(t, "suggestions", func() bool { return len(h.ui.matching("suggestions:")) == 1 })

	if err := h.o.SelectSuggestion(ctx, 2); err != nil {
		t.Fatalf("SelectSuggestion() error: %v", err)
	}
	want := []string{"hello", "How can I contact you?"}
	if got := conn.WaitWritten(2, waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	if h.ui.count("user:How can I contact you?") != 1 {
		t.Fatal("suggestion prompt not displayed as a user message")
	}
	if h.ui.count("suggestions-hide") != 1 {
		t.Fatal("suggestions not removed after selection")
	}
	if h.snap(t).SuggestionsVisible {
		t.Fatal("SuggestionsVisible still true")
	}
	if err := h.o.SelectSuggestion(ctx, 1); !errors.Is(err, domain.ErrUnknownSuggestion) {
		t.Fatalf("second SelectSuggestion() = %v, want ErrUnknownSuggestion", err)
	}
}

func TestIdleTimeoutExpiresSession(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: 200 * time.Millisecond})
	conn := h.openReady(t)
	ctx := context.Background()
	first := h.snap(t).Session.ID

	eventually(t, "expiry", func() bool { return h.snap(t).Session.State == domain.SessionExpired })
	if !conn.IsClosed() {
		t.Fatal("transport left open after expiry")
	}
	if h.ui.count("clear") != 1 {
		t.Fatal("display not cleared on expiry")
	}
	if err := h.o.SendText(ctx, "anyone?"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("SendText() after expiry = %v, want ErrSessionNotActive", err)
	}
	if got := conn.Written(); len(got) != 0 {
		t.Fatalf("expired session wrote %v", got)
	}

	next := h.openReady(t)
	s := h.snap(t)
	if s.Session.State != domain.SessionActive || s.Session.ID == first {
		t.Fatalf("reopened session = %+v, want a fresh active session", s.Session)
	}
	if next == conn || next.SessionID != s.Session.ID {
		t.Fatal("reopen did not dial a new transport for the new session")
	}
}

func TestUserActionResetsIdleTimer(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: 300 * time.Millisecond})
	h.openReady(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := h.o.SendText(ctx, fmt.Sprintf("ping %d", i)); err != nil {
			t.Fatalf("SendText() error: %v", err)
		}
	}
	if state := h.snap(t).Session.State; state != domain.SessionActive {
		t.Fatalf("state = %v after steady activity, want active", state)
	}
	eventually(t, "expiry after inactivity", func() bool {
		return h.snap(t).Session.State == domain.SessionExpired
	})
}

func TestDirtyCloseThenSendReconnects(t *testing.T) {
	h := newHarness(t, Options{})
	first := h.openReady(t)
	ctx := context.Background()
	h.deliverAndWait(t, first, "Welcome")

	first.Drop()
	eventually(t, "transport closed", func() bool { return !h.snap(t).Ready })
	if state := h.snap(t).Session.State; state != domain.SessionActive {
		t.Fatalf("dirty close changed session state to %v", state)
	}

	if err := h.o.SendText(ctx, "still here"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	second := h.dialer.WaitDial(waitTimeout)
	if second == nil {
		t.Fatal("send did not reconnect")
	}
	if got := second.WaitWritten(1, waitTimeout); !equal(got, []string{"still here"}) {
		t.Fatalf("written = %v, want [still here]", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := second.Written(); len(got) != 1 {
		t.Fatalf("message delivered %d times", len(got))
	}
	if got := first.Written(); len(got) != 0 {
		t.Fatalf("dead transport received %v", got)
	}
}

func TestFailedWriteIsResentAfterReconnect(t *testing.T) {
	h := newHarness(t, Options{})
	first := h.openReady(t)
	ctx := context.Background()
	first.FailWrites(errors.New("broken pipe"))

	if err := h.o.SendText(ctx, "still here"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	eventually(t, "connection error shown", func() bool { return h.ui.count("error:connection") == 1 })
	if s := h.snap(t); s.Ready || s.Pending != 1 {
		t.Fatalf("after write failure ready=%v pending=%d, want not ready with 1 pending", s.Ready, s.Pending)
	}

	if err := h.o.SendText(ctx, "again"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	second := h.dialer.WaitDial(waitTimeout)
	if second == nil {
		t.Fatal("send did not reconnect")
	}
	want := []string{"still here", "again"}
	if got := second.WaitWritten(2, waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	eventually(t, "queue drained", func() bool { return h.snap(t).Pending == 0 })
	time.Sleep(20 * time.Millisecond)
	if got := second.Written(); !equal(got, want) {
		t.Fatalf("written = %v after settling, want %v", got, want)
	}
	if got := first.Written(); len(got) != 0 {
		t.Fatalf("broken transport recorded %v", got)
	}
}

func TestFramesQueuedOnDroppedTransportAreResentInOrder(t *testing.T) {
	h := newHarness(t, Options{})
	first := h.openReady(t)
	ctx := context.Background()
	first.StallWrites()

	for _, msg := range []string{"one", "two", "three"} {
		if err := h.o.SendText(ctx, msg); err != nil {
			t.Fatalf("SendText(%q) error: %v", msg, err)
		}
	}
	first.Drop()
	eventually(t, "connection error shown", func() bool { return h.ui.count("error:connection") == 1 })
	if got := h.snap(t).Pending; got != 3 {
		t.Fatalf("Pending = %d, want 3", got)
	}

	if err := h.o.SendText(ctx, "four"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	second := h.dialer.WaitDial(waitTimeout)
	if second == nil {
		t.Fatal("send did not reconnect")
	}
	want := []string{"one", "two", "three", "four"}
	if got := second.WaitWritten(4, waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	eventually(t, "queue drained", func() bool { return h.snap(t).Pending == 0 })
	time.Sleep(20 * time.Millisecond)
	if got := second.Written(); !equal(got, want) {
		t.Fatalf("written = %v after settling, want %v", got, want)
	}
	if got := first.Written(); len(got) != 0 {
		t.Fatalf("dropped transport recorded %v", got)
	}
}

func TestFullOutboxDrainsAsWritesComplete(t *testing.T) {
	h := newHarness(t, Options{Transport: transport.Options{OutboxSize: 1}})
	conn := h.openReady(t)
	ctx := context.Background()
	conn.StallWrites()

	want := []string{"one", "two", "three", "four"}
	for _, msg := range want {
		if err := h.o.SendText(ctx, msg); err != nil {
			t.Fatalf("SendText(%q) error: %v", msg, err)
		}
	}
	if got := h.snap(t).Pending; got != len(want) {
		t.Fatalf("Pending = %d, want %d", got, len(want))
	}

	conn.ResumeWrites()
	if got := conn.WaitWritten(len(want), waitTimeout); !equal(got, want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	eventually(t, "queue drained", func() bool { return h.snap(t).Pending == 0 })
}

func TestClearResetsSession(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.openReady(t)
	ctx := context.Background()
	h.deliverAndWait(t, conn, "Hi")

	if err := h.o.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	s := h.snap(t)
	if s.Session.State != domain.SessionIdle || s.Session.SuggestionsShown || s.Session.LastBotMessage != nil {
		t.Fatalf("session after clear = %+v, want zero idle session", s.Session)
	}
	eventually(t, "transport closed", conn.IsClosed)
	if err := h.o.SendText(ctx, "hello?"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("SendText() after clear = %v, want ErrSessionNotActive", err)
	}

	next := h.openReady(t)
	h.deliverAndWait(t, next, "Hi")
	if got := botMessages(h.ui); !equal(got, []string{"Hi", "Hi"}) {
		t.Fatalf("displayed = %v; duplicate suppression leaked across sessions", got)
	}
	if n := len(h.ui.matching("suggestions:")); n != 2 {
		t.Fatalf("suggestions shown %d times, want once per session", n)
	}
}

func TestCompletionsAfterClearAreDiscarded(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.Hold()
	ctx := context.Background()

	if err := h.o.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := h.o.SendText(ctx, "queued"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if err := h.o.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	h.dialer.Release()

	time.Sleep(50 * time.Millisecond)
	for _, c := range h.dialer.Conns() {
		if got := c.Written(); len(got) != 0 {
			t.Fatalf("torn-down session delivered %v", got)
		}
	}
	if s := h.snap(t); s.Session.State != domain.SessionIdle || s.Pending != 0 {
		t.Fatalf("snapshot = %+v, want idle with empty queue", s)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	if err := h.o.SendText(ctx, "   "); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("SendText(blank) = %v, want ErrEmptyMessage", err)
	}
	if err := h.o.SendText(ctx, "hi"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("SendText() while idle = %v, want ErrSessionNotActive", err)
	}
	if got := h.dialer.Conns(); len(got) != 0 {
		t.Fatalf("idle send dialed %d connections", len(got))
	}
}

func TestMinimizeKeepsSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.openReady(t)
	ctx := context.Background()
	id := h.snap(t).Session.ID

	if err := h.o.Minimize(ctx); err != nil {
		t.Fatalf("Minimize() error: %v", err)
	}
	if s := h.snap(t); !s.Minimized || s.Session.State != domain.SessionActive {
		t.Fatalf("snapshot = %+v, want minimized active session", s)
	}
	if err := h.o.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s := h.snap(t)
	if s.Minimized || s.Session.ID != id {
		t.Fatalf("restore changed session: %+v", s)
	}
	if n := len(h.dialer.Conns()); n != 1 {
		t.Fatalf("restore dialed again: %d connections", n)
	}
}

func TestStoppedOrchestratorRejectsCalls(t *testing.T) {
	h := newHarness(t, Options{})
	h.cancel()
	<-h.stopped

	if err := h.o.Open(context.Background()); !errors.Is(err, domain.ErrStopped) {
		t.Fatalf("Open() after stop = %v, want ErrStopped", err)
	}
}

func TestTranscriptRecordsConversation(t *testing.T) {
	rec := &recordingTranscript{}
	h := newHarness(t, Options{Transcript: rec})
	conn := h.openReady(t)
	ctx := context.Background()

	if err := h.o.SendText(ctx, "hello"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	h.deliverAndWait(t, conn, "Hi there")
	if err := h.o.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	kinds := rec.kinds()
	want := []domain.EntryKind{
		domain.EntrySessionStarted,
		domain.EntryUserMessage,
		domain.EntryBotMessage,
		domain.EntryBotMessage,
		domain.EntrySessionCleared,
	}
	if len(kinds) != len(want) {
		t.Fatalf("recorded %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("recorded %v, want %v", kinds, want)
		}
	}
}

type recordingTranscript struct {
	mu      sync.Mutex
	entries []domain.TranscriptEntry
}

func (r *recordingTranscript) Record(e domain.TranscriptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingTranscript) kinds() []domain.EntryKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EntryKind, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Kind
	}
	return out
}
