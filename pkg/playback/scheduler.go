// Package playback schedules model audio onto a sink without gaps.
//
// Chunks arrive from the network in bursts that are faster than real
// time, so playback cannot just start each chunk on arrival. The
// scheduler keeps a watermark: the moment the last queued chunk will
// finish playing. Each new chunk is scheduled at the watermark when
// playback is ongoing, or immediately when the line has gone idle, and
// the watermark advances by the chunk's duration. Barge-in discards
// everything queued and snaps the watermark back to now.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audioio"
)

// Scheduler owns the playback timeline for one sink.
type Scheduler struct {
	sink   audioio.Sink
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	watermark time.Time
	queued    int64 // chunks accepted since start or last Interrupt
	interrupt int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler writing to sink.
func NewScheduler(sink audioio.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		clock:  SystemClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue schedules a chunk and hands it to the sink. It returns the
// moment the chunk will start playing: the current watermark when
// audio is already queued, otherwise now. Consecutive chunks of a turn
// are therefore played back to back even when they arrived in a burst.
func (s *Scheduler) Enqueue(ctx context.Context, chunk audioio.AudioChunk) (time.Time, error) {
	dur := chunk.Duration()
	if dur <= 0 {
		return time.Time{}, fmt.Errorf("playback: empty chunk")
	}

	s.mu.Lock()
	now := s.clock.Now()
	start := s.watermark
	if start.Before(now) {
		start = now
	}
	s.watermark = start.Add(dur)
	s.queued++
	s.mu.Unlock()

	if err := s.sink.Write(ctx, chunk); err != nil {
		return time.Time{}, fmt.Errorf("playback: write: %w", err)
	}
	return start, nil
}

// Interrupt implements barge-in: everything queued is discarded and
// the timeline snaps back to now, so the next chunk plays immediately.
func (s *Scheduler) Interrupt() error {
	s.mu.Lock()
	pending := s.watermark.Sub(s.clock.Now())
	s.watermark = s.clock.Now()
	s.queued = 0
	s.interrupt++
	s.mu.Unlock()

	if err := s.sink.Clear(); err != nil {
		return fmt.Errorf("playback: clear sink: %w", err)
	}
	if pending > 0 {
		s.logger.Debug("playback interrupted", "discarded", pending.Round(time.Millisecond))
	}
	return nil
}

// Playing reports whether queued audio is still being played.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark.After(s.clock.Now())
}

// Pending returns how much queued audio remains, zero when idle.
func (s *Scheduler) Pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.watermark.Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Queued reports chunks accepted since start or the last interrupt.
func (s *Scheduler) Queued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued
}

// Interruptions reports how many times Interrupt was called.
func (s *Scheduler) Interruptions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupt
}

// Drain blocks until the queued audio has finished playing or the
// context is cancelled, then flushes the sink.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		d := s.Pending()
		if d <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return s.sink.Flush(ctx)
}
