package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audioio"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// chunkOf builds a mono chunk of the given duration at 24kHz.
func chunkOf(d time.Duration) audioio.AudioChunk {
	n := int(d.Seconds() * 24000)
	return audioio.AudioChunk{Samples: make([]int16, n), SampleRate: 24000, Channels: 1}
}

func newTestScheduler(t *testing.T) (*Scheduler, *audioio.MockSink, *fakeClock) {
	t.Helper()

	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start failed: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	clock := newFakeClock()
	return NewScheduler(sink, WithClock(clock)), sink, clock
}

func TestScheduler_BurstPlaysConsecutively(t *testing.T) {
	s, sink, clock := newTestScheduler(t)
	ctx := context.Background()

	// Three half-second chunks arriving in the same instant must be
	// scheduled back to back: starts at 0, 0.5s, 1.0s.
	base := clock.Now()
	for i := 0; i < 3; i++ {
		start, err := s.Enqueue(ctx, chunkOf(500*time.Millisecond))
		if err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		want := base.Add(time.Duration(i) * 500 * time.Millisecond)
		if !start.Equal(want) {
			t.Errorf("Chunk %d start = %v, want %v", i, start.Sub(base), want.Sub(base))
		}
	}

	if got := s.Pending(); got != 1500*time.Millisecond {
		t.Errorf("Pending = %v, want 1.5s", got)
	}
	if !s.Playing() {
		t.Error("Expected Playing during queued audio")
	}
	if got := len(sink.Written()); got != 3 {
		t.Errorf("Sink received %d chunks, want 3", got)
	}
}

func TestScheduler_IdleChunkStartsNow(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, chunkOf(200*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Let playback finish plus an idle gap.
	clock.Advance(1 * time.Second)
	if s.Playing() {
		t.Fatal("Expected idle after advancing past watermark")
	}

	start, err := s.Enqueue(ctx, chunkOf(200*time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !start.Equal(clock.Now()) {
		t.Errorf("Idle chunk start = %v, want now", start)
	}
}

func TestScheduler_Interrupt(t *testing.T) {
	s, sink, clock := newTestScheduler(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.Enqueue(ctx, chunkOf(500*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := s.Interrupt(); err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}

	if s.Pending() != 0 {
		t.Errorf("Pending after interrupt = %v, want 0", s.Pending())
	}
	if sink.Clears() != 1 {
		t.Errorf("Sink clears = %d, want 1", sink.Clears())
	}
	if s.Interruptions() != 1 {
		t.Errorf("Interruptions = %d, want 1", s.Interruptions())
	}

	// The next chunk plays immediately.
	start, err := s.Enqueue(ctx, chunkOf(500*time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue after interrupt failed: %v", err)
	}
	if !start.Equal(clock.Now()) {
		t.Errorf("Post-interrupt start = %v, want now", start)
	}
}

func TestScheduler_EmptyChunkRejected(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	if _, err := s.Enqueue(context.Background(), audioio.AudioChunk{}); err == nil {
		t.Error("Expected error for empty chunk")
	}
}

func TestScheduler_DrainWhenIdle(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Errorf("Drain on idle scheduler failed: %v", err)
	}
}
