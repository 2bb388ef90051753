package tui

// defaultScrollback is the number of conversation lines the widget keeps.
const defaultScrollback = 500

// scrollback is a fixed-size ring of conversation lines. When it is full
// the oldest line is overwritten.
type scrollback struct {
	buf  []line
	head int // next write position
	full bool
}

func newScrollback(size int) scrollback {
	if size <= 0 {
		size = defaultScrollback
	}
	return scrollback{buf: make([]line, size)}
}

func (s *scrollback) append(l line) {
	s.buf[s.head] = l
	s.head = (s.head + 1) % len(s.buf)
	if s.head == 0 {
		s.full = true
	}
}

// lines returns the kept lines, oldest first.
func (s *scrollback) lines() []line {
	if !s.full {
		return append([]line(nil), s.buf[:s.head]...)
	}
	out := make([]line, 0, len(s.buf))
	out = append(out, s.buf[s.head:]...)
	return append(out, s.buf[:s.head]...)
}

func (s *scrollback) len() int {
	if s.full {
		return len(s.buf)
	}
	return s.head
}

func (s *scrollback) reset() {
	clear(s.buf)
	s.head = 0
	s.full = false
}
