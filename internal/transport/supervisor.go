// Package transport owns the single WebSocket connection between the widget and the bot.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

// ErrOutboxFull is returned when the transport cannot buffer another frame.
var ErrOutboxFull = errors.New("transport outbox full")

// ConnectionState is the state of one transport.
type ConnectionState int

const (
	// StateConnecting means the dial is in flight.
	StateConnecting ConnectionState = iota
	// StateOpen means frames can be sent.
	StateOpen
	// StateClosed is final.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is an established bidirectional text channel.
// Read returns io.EOF when the peer closed the connection cleanly.
type Conn interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
	Close(reason string) error
}

// Dialer establishes connections to the bot endpoint.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// Handlers receive transport lifecycle callbacks. Callbacks must not block.
// OnOpen, OnMessage and OnClose for a given transport come from its reader
// goroutine in order. OnSent comes from the writer goroutine once per frame
// written, in Send order. OnClose is delivered only after the writer stopped,
// so no OnSent for a transport follows its OnClose. Frames that were queued
// but never acknowledged by OnSent were not written.
type Handlers struct {
	OnOpen    func(t *Transport)
	OnMessage func(t *Transport, raw string)
	OnSent    func(t *Transport)
	OnClose   func(t *Transport, clean bool, err error)
}

// Options tunes a Supervisor.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
	Logger       *slog.Logger
}

// DefaultOptions returns default supervisor options.
func DefaultOptions() Options {
	return Options{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		OutboxSize:   256,
	}
}

// Transport is one connection attempt and, once open, one live connection.
type Transport struct {
	id        uint64
	sessionID string

	mu            sync.Mutex
	state         ConnectionState
	closedCleanly bool
	closedLocally bool
	conn          Conn
	writeErr      error

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan string
}

// ID returns the supervisor-unique transport ID.
func (t *Transport) ID() uint64 { return t.id }

// SessionID returns the session the transport was opened for.
func (t *Transport) SessionID() string { return t.sessionID }

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ClosedCleanly reports whether a closed transport ended with a clean close.
func (t *Transport) ClosedCleanly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateClosed && t.closedCleanly
}

// IsLive returns true while the transport is connecting or open.
func (t *Transport) IsLive() bool {
	state := t.State()
	return state == StateConnecting || state == StateOpen
}

// attach records the dialed connection. It returns false if the transport was
// closed while the dial was in flight.
func (t *Transport) attach(conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateClosed {
		return false
	}
	t.conn = conn
	t.state = StateOpen
	return true
}

// markClosed moves the transport to Closed and reports the effective clean flag.
func (t *Transport) markClosed(clean bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateClosed {
		t.state = StateClosed
		t.closedCleanly = clean
	}
	if t.closedLocally {
		t.closedCleanly = true
	}
	return t.closedCleanly
}

func (t *Transport) failWrite(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr == nil {
		t.writeErr = err
	}
}

func (t *Transport) writeFailure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeErr
}

// closeLocal closes the transport from our side without blocking the caller.
func (t *Transport) closeLocal(reason string, logger *slog.Logger) {
	t.mu.Lock()
	if t.closedLocally || t.state == StateClosed {
		t.mu.Unlock()
		t.cancel()
		return
	}
	t.closedLocally = true
	t.state = StateClosed
	t.closedCleanly = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.cancel()
		return
	}
	go func() {
		if err := conn.Close(reason); err != nil {
			logger.Debug("Transport close returned error", "transport_id", t.id, "error", err)
		}
		t.cancel()
	}()
}

// Supervisor owns at most one live transport at a time. It never reconnects
// on its own; callers decide when to call EnsureOpen.
type Supervisor struct {
	dialer   Dialer
	handlers Handlers
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	current *Transport
	nextID  uint64
}

// NewSupervisor creates a supervisor. The handlers are attached to every
// transport it opens.
func NewSupervisor(dialer Dialer, handlers Handlers, opts Options) *Supervisor {
	defaults := DefaultOptions()
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaults.DialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaults.OutboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		dialer:   dialer,
		handlers: handlers,
		opts:     opts,
		logger:   logger,
	}
}

// Current returns the most recently opened transport, or nil.
func (s *Supervisor) Current() *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Open closes any existing transport and starts dialing a new one.
func (s *Supervisor) Open(sessionID string) *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(sessionID)
}

// EnsureOpen returns the current transport if it is connecting or open for
// the same session; otherwise it discards the stale handle and opens a new one.
func (s *Supervisor) EnsureOpen(sessionID string) *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.current; t != nil && t.sessionID == sessionID && t.IsLive() {
		return t
	}
	return s.openLocked(sessionID)
}

func (s *Supervisor) openLocked(sessionID string) *Transport {
	if prev := s.current; prev != nil {
		prev.closeLocal("replaced", s.logger)
	}

	s.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:        s.nextID,
		sessionID: sessionID,
		state:     StateConnecting,
		ctx:       ctx,
		cancel:    cancel,
		outbox:    make(chan string, s.opts.OutboxSize),
	}
	s.current = t

	s.logger.Info("Opening transport", "transport_id", t.id, "session_id", sessionID)
	go s.run(t)
	return t
}

// Send queues a frame on the current transport. A nil error only means the
// frame was queued; OnSent reports that it was written.
func (s *Supervisor) Send(text string) error {
	t := s.Current()
	if t == nil || t.State() != StateOpen {
		return domain.ErrNotConnected
	}
	select {
	case t.outbox <- text:
		return nil
	case <-t.ctx.Done():
		return domain.ErrNotConnected
	default:
		return fmt.Errorf("send on transport %d: %w", t.id, ErrOutboxFull)
	}
}

// Close closes the current transport, if any.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.logger.Info("Closing transport", "transport_id", s.current.id, "session_id", s.current.sessionID)
		s.current.closeLocal("session ended", s.logger)
	}
}

func (s *Supervisor) run(t *Transport) {
	dialCtx, cancel := context.WithTimeout(t.ctx, s.opts.DialTimeout)
	conn, err := s.dialer.Dial(dialCtx, t.sessionID)
	cancel()
	if err != nil {
		clean := t.markClosed(false)
		t.cancel()
		s.logger.Warn("Transport dial failed", "transport_id", t.id, "error", err)
		s.notifyClose(t, clean, err)
		return
	}

	if !t.attach(conn) {
		if closeErr := conn.Close("closed during dial"); closeErr != nil {
			s.logger.Debug("Failed to close abandoned connection", "transport_id", t.id, "error", closeErr)
		}
		t.cancel()
		s.notifyClose(t, true, nil)
		return
	}

	s.logger.Info("Transport open", "transport_id", t.id, "session_id", t.sessionID)
	if s.handlers.OnOpen != nil {
		s.handlers.OnOpen(t)
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(t, conn)
	}()

	for {
		text, err := conn.Read(t.ctx)
		if err != nil {
			t.cancel()
			<-writerDone

			clean := errors.Is(err, io.EOF)
			if werr := t.writeFailure(); werr != nil {
				clean = false
				if errors.Is(err, context.Canceled) {
					err = werr
				}
				if closeErr := conn.Close("write failed"); closeErr != nil {
					s.logger.Debug("Failed to close broken connection", "transport_id", t.id, "error", closeErr)
				}
			}
			clean = t.markClosed(clean)
			if clean {
				s.logger.Info("Transport closed cleanly", "transport_id", t.id)
			} else {
				s.logger.Warn("Transport died", "transport_id", t.id, "error", err)
			}
			s.notifyClose(t, clean, err)
			return
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(t, text)
		}
	}
}

func (s *Supervisor) notifyClose(t *Transport, clean bool, err error) {
	if s.handlers.OnClose == nil {
		return
	}
	if clean {
		err = nil
	} else if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrTransportClosedDirty, err)
	} else {
		err = domain.ErrTransportClosedDirty
	}
	s.handlers.OnClose(t, clean, err)
}

func (s *Supervisor) writeLoop(t *Transport, conn Conn) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case text := <-t.outbox:
			writeCtx, cancel := context.WithTimeout(t.ctx, s.opts.WriteTimeout)
			err := conn.Write(writeCtx, text)
			cancel()
			if err != nil {
				if t.ctx.Err() != nil {
					return
				}
				s.logger.Warn("Transport write failed", "transport_id", t.id, "error", err)
				t.failWrite(err)
				t.cancel()
				return
			}
			if s.handlers.OnSent != nil {
				s.handlers.OnSent(t)
			}
		}
	}
}
