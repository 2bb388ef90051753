// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ashureev/chatwidget/internal/transport"
)

// ErrConnectionReset is the error a dropped fake connection returns from Read.
var ErrConnectionReset = errors.New("connection reset by peer")

// Conn is an in-memory transport.Conn.
type Conn struct {
	SessionID string

	inbound chan string
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	closeErr  error
	writeErr  error
	writeGate chan struct{}
	written   []string
	writes    chan string
}

// NewConn creates an open fake connection.
func NewConn(sessionID string) *Conn {
	return &Conn{
		SessionID: sessionID,
		inbound:   make(chan string, 64),
		closed:    make(chan struct{}),
		writes:    make(chan string, 64),
	}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (string, error) {
	select {
	case text := <-c.inbound:
		return text, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return "", c.closeErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, text string) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	writeErr, gate := c.writeErr, c.writeGate
	c.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}
	if gate != nil {
		select {
		case <-gate:
		case <-c.closed:
			return errors.New("write on closed connection")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	c.written = append(c.written, text)
	c.mu.Unlock()
	select {
	case c.writes <- text:
	default:
	}
	return nil
}

// Close implements transport.Conn with a clean close.
func (c *Conn) Close(_ string) error {
	c.closeWith(io.EOF)
	return nil
}

// FailWrites makes subsequent writes fail with err; nil restores success.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// StallWrites makes subsequent writes block until ResumeWrites is called or
// the connection closes.
func (c *Conn) StallWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeGate == nil {
		c.writeGate = make(chan struct{})
	}
}

// ResumeWrites unblocks stalled writes.
func (c *Conn) ResumeWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeGate != nil {
		close(c.writeGate)
		c.writeGate = nil
	}
}

// Deliver makes text the next frame returned by Read.
func (c *Conn) Deliver(text string) {
	c.inbound <- text
}

// Drop kills the connection uncleanly.
func (c *Conn) Drop() {
	c.closeWith(ErrConnectionReset)
}

// PeerClose closes the connection cleanly from the bot side.
func (c *Conn) PeerClose() {
	c.closeWith(io.EOF)
}

// IsClosed reports whether the connection was closed by either side.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns every frame written so far.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	copy(out, c.written)
	return out
}

// WaitWritten blocks until n frames were written or the timeout elapses.
func (c *Conn) WaitWritten(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := c.Written(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c.Written()
}

func (c *Conn) closeWith(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		close(c.closed)
	})
}

// Dialer is an in-memory transport.Dialer.
type Dialer struct {
	mu      sync.Mutex
	conns   []*Conn
	gate    chan struct{}
	failErr error
	dialed  chan *Conn
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer that connects immediately.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// Hold makes subsequent dials block until Release is called.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release unblocks held dials.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// FailWith makes subsequent dials fail with err; nil restores success.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, sessionID string) (transport.Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	failErr := d.failErr
	d.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	c := NewConn(sessionID)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	select {
	case d.dialed <- c:
	default:
	}
	return c, nil
}

// Conns returns every connection dialed so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// WaitDial returns the next connection dialed, or nil after the timeout.
func (d *Dialer) WaitDial(timeout time.Duration) *Conn {
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(timeout):
		return nil
	}
}
