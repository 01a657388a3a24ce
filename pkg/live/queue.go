package live

import (
	"sync"
	"sync/atomic"
)

// OutboundChunk is one queued audio payload with the rate it was
// captured at.
type OutboundChunk struct {
	PCM        []byte
	SampleRate int
}

// SendQueue is a bounded FIFO for outbound audio, shared by the
// bundled providers. Pushes never block: when full, the oldest chunk
// is dropped so the stream stays current with the microphone rather
// than drifting behind it.
type SendQueue struct {
	mu     sync.Mutex
	ch     chan OutboundChunk
	closed bool

	dropped atomic.Int64
}

// NewSendQueue creates a queue holding at most size chunks.
func NewSendQueue(size int) *SendQueue {
	return &SendQueue{ch: make(chan OutboundChunk, size)}
}

// Push enqueues a chunk, evicting the oldest entry if the queue is
// full. Returns ErrClosed after Close.
func (q *SendQueue) Push(pcm []byte, sampleRate int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	c := OutboundChunk{PCM: pcm, SampleRate: sampleRate}

	select {
	case q.ch <- c:
		return nil
	default:
	}

	// Full: make room by discarding the head, then retry once. A
	// concurrent drain can empty the queue between the two selects,
	// in which case the retry just succeeds.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}

	select {
	case q.ch <- c:
		return nil
	default:
		q.dropped.Add(1)
		return nil
	}
}

// C returns the drain channel. It is closed by Close.
func (q *SendQueue) C() <-chan OutboundChunk {
	return q.ch
}

// Dropped reports how many chunks were evicted.
func (q *SendQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Close marks the queue closed and closes the drain channel.
// Idempotent.
func (q *SendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
