package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chatwidget/internal/domain"
)

// DefaultQueueSize is the number of entries buffered before the oldest is dropped.
const DefaultQueueSize = 256

// AsyncRecorder writes transcript entries to a Sink from a background
// goroutine so recording never blocks the conversation loop. When the queue
// is full the oldest entry is dropped.
type AsyncRecorder struct {
	sink    Sink
	queue   chan domain.TranscriptEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewAsyncRecorder starts a recorder in front of sink.
func NewAsyncRecorder(sink Sink, queueSize int, logger *slog.Logger) *AsyncRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &AsyncRecorder{
		sink:    sink,
		queue:   make(chan domain.TranscriptEntry, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		timeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go r.process()
	return r
}

// Record queues an entry without blocking.
func (r *AsyncRecorder) Record(entry domain.TranscriptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- entry:
		return
	default:
	}

	// Queue full: drop the oldest entry to make room.
	select {
	case <-r.queue:
		r.dropped++
		r.logger.Warn("Transcript queue full, dropped oldest entry",
			"session_id", entry.SessionID,
			"dropped_total", r.dropped,
		)
	default:
	}
	select {
	case r.queue <- entry:
	default:
		r.dropped++
	}
}

// Dropped returns how many entries were discarded because of backpressure.
func (r *AsyncRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *AsyncRecorder) process() {
	defer r.wg.Done()
	for {
		select {
		case entry, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(entry)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *AsyncRecorder) write(entry domain.TranscriptEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Error("Failed to record transcript entry",
			"session_id", entry.SessionID,
			"kind", string(entry.Kind),
			"error", err,
		)
		return
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		r.logger.Warn("Slow transcript write", "session_id", entry.SessionID, "duration_ms", d.Milliseconds())
	}
}

// Close flushes queued entries, waiting up to ctx's deadline, then closes the sink.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Transcript recorder drained")
	case <-ctx.Done():
		r.cancel()
		<-done
		r.logger.Warn("Transcript recorder shutdown timeout", "remaining", len(r.queue))
	}
	r.cancel()
	return r.sink.Close()
}
