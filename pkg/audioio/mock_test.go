package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.BufferSize() * cfg.Channels
	if len(chunk.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(chunk.Samples))
	}

	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
}

func TestMockSource_CoercedRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond
	cfg.SampleRate = 16000

	src := NewMockSource(cfg, nil, WithCoercedRate(44100))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// The chunk must report the coerced device rate, not the request.
	if chunk.SampleRate != 44100 {
		t.Errorf("Expected coerced rate 44100, got %d", chunk.SampleRate)
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Drain any buffered chunks; the channel must eventually report EOF.
	for {
		_, err := src.Read(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("Expected io.EOF, got %v", err)
		}
	}
}

func TestMockSource_StopWhileGenerating(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx := context.Background()

	// Stop must never race the generator into a send on a closed
	// channel, no matter where in its loop it happens to be.
	for i := 0; i < 25; i++ {
		if err := src.Start(ctx); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if _, err := src.Read(ctx); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if err := src.Stop(); err != nil {
			t.Fatalf("Stop %d failed: %v", i, err)
		}
		for {
			if _, err := src.Read(ctx); err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("drain %d: %v", i, err)
			}
		}
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// A sine wave must contain non-zero samples.
	nonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("Expected non-zero samples from sine wave")
	}
}

func TestMockSink_WriteAndClear(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := AudioChunk{Samples: make([]int16, 320), SampleRate: 16000, Channels: 1}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := len(sink.Written()); got != 2 {
		t.Errorf("Expected 2 buffered chunks, got %d", got)
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := len(sink.Written()); got != 0 {
		t.Errorf("Expected empty buffer after Clear, got %d chunks", got)
	}
	if sink.Clears() != 1 {
		t.Errorf("Expected 1 clear, got %d", sink.Clears())
	}
}

func TestMockSink_WriteWhenStopped(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	chunk := AudioChunk{Samples: make([]int16, 10), SampleRate: 16000, Channels: 1}
	if err := sink.Write(context.Background(), chunk); err == nil {
		t.Error("Expected error writing to a sink that was never started")
	}
}

func TestMockSink_CloseIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}
