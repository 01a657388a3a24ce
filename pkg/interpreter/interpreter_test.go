package interpreter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audioio"
	"github.com/voxbridge/voxbridge/pkg/live"
	"github.com/voxbridge/voxbridge/pkg/transcript"
)

// fakeStream implements live.Stream for tests. Sent audio is recorded;
// inbound messages are injected with Emit.
type fakeStream struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	sent      [][]byte
	sentRates []int

	msgs chan live.Message
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan live.Message, 64)}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeStream) SendAudio(pcm []byte, sampleRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.closed {
		return live.ErrNotConnected
	}
	f.sent = append(f.sent, pcm)
	f.sentRates = append(f.sentRates, sampleRate)
	return nil
}

func (f *fakeStream) SendText(string) error { return nil }

func (f *fakeStream) Messages() <-chan live.Message { return f.msgs }

func (f *fakeStream) DroppedOutbound() int64 { return 0 }

func (f *fakeStream) Emit(msg live.Message) { f.msgs <- msg }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.msgs)
	return nil
}

func (f *fakeStream) sentChunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestInterpreter(t *testing.T, stream live.Stream, opts ...func(*Options)) (*Interpreter, *audioio.MockSink) {
	t.Helper()

	cfg := audioio.DefaultConfig()
	cfg.BufferDuration = 5 * time.Millisecond

	source := audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.5))
	sink := audioio.NewMockSink(cfg, nil)

	o := Options{
		Source: source,
		Sink:   sink,
		Stream: stream,
		Clock:  fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, f := range opts {
		f(&o)
	}

	it, err := New(o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = it.Stop()
		_ = source.Close()
		_ = sink.Close()
	})
	return it, sink
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInterpreter_CaptureFlowsToStream(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := it.CurrentState(); got != StateConnected {
		t.Errorf("State = %v, want connected", got)
	}

	waitFor(t, "captured audio to reach the stream", func() bool {
		return stream.sentChunks() >= 3
	})
}

func TestInterpreter_BurstSchedulesConsecutively(t *testing.T) {
	stream := newFakeStream()
	it, sink := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Three half-second chunks at 24kHz arriving at once.
	half := audioio.AudioChunk{Samples: make([]int16, 12000), SampleRate: 24000, Channels: 1}
	for i := 0; i < 3; i++ {
		stream.Emit(live.Message{Kind: live.KindAudio, Audio: half.Bytes(), SampleRate: 24000})
	}

	waitFor(t, "playback writes", func() bool {
		return len(sink.Written()) >= 3
	})

	// With a fixed clock the three chunks occupy a contiguous 1.5s.
	if got := it.Playback().Pending(); got != 1500*time.Millisecond {
		t.Errorf("Pending = %v, want 1.5s", got)
	}
}

func TestInterpreter_InterruptionClearsPlayback(t *testing.T) {
	stream := newFakeStream()
	it, sink := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := audioio.AudioChunk{Samples: make([]int16, 12000), SampleRate: 24000, Channels: 1}
	stream.Emit(live.Message{Kind: live.KindAudio, Audio: chunk.Bytes(), SampleRate: 24000})
	waitFor(t, "audio enqueue", func() bool { return len(sink.Written()) == 1 })

	stream.Emit(live.Message{Kind: live.KindInterrupted})
	waitFor(t, "sink clear", func() bool { return sink.Clears() == 1 })

	if got := it.Playback().Pending(); got != 0 {
		t.Errorf("Pending after interrupt = %v, want 0", got)
	}
}

func TestInterpreter_TranscriptsAccumulate(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream.Emit(live.Message{Kind: live.KindInputTranscript, Text: "good morning", Final: true})
	stream.Emit(live.Message{Kind: live.KindOutputTranscript, Text: "buenos "})
	stream.Emit(live.Message{Kind: live.KindOutputTranscript, Text: "días"})
	stream.Emit(live.Message{Kind: live.KindTurnComplete})

	waitFor(t, "transcript entries", func() bool {
		entries := it.Transcript().Entries()
		return len(entries) == 2 && entries[1].Final
	})

	entries := it.Transcript().Entries()
	if entries[0].Sender != transcript.SenderCaller || entries[0].Text != "good morning" {
		t.Errorf("Caller entry = %+v", entries[0])
	}
	if entries[1].Sender != transcript.SenderTranslator || entries[1].Text != "buenos días" {
		t.Errorf("Translator entry = %+v", entries[1])
	}
}

func TestInterpreter_BadAudioDropped(t *testing.T) {
	stream := newFakeStream()
	it, sink := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Zero rate and sub-sample payloads must be dropped, and the
	// session keeps going.
	stream.Emit(live.Message{Kind: live.KindAudio, Audio: []byte{1, 2}, SampleRate: 0})
	stream.Emit(live.Message{Kind: live.KindAudio, Audio: []byte{1}, SampleRate: 24000})

	good := audioio.AudioChunk{Samples: make([]int16, 240), SampleRate: 24000, Channels: 1}
	stream.Emit(live.Message{Kind: live.KindAudio, Audio: good.Bytes(), SampleRate: 24000})

	waitFor(t, "good chunk playback", func() bool { return len(sink.Written()) == 1 })
}

func TestInterpreter_StopIdempotent(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream)

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := it.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := it.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	if got := it.CurrentState(); got != StateDisconnected {
		t.Errorf("State after Stop = %v, want disconnected", got)
	}

	// Start after Stop is rejected; sessions are single-use.
	if err := it.Start(context.Background()); err == nil {
		t.Error("Expected error starting a stopped interpreter")
	}
}

func TestInterpreter_StopWithoutStart(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream)

	if err := it.Stop(); err != nil {
		t.Fatalf("Stop on unstarted interpreter failed: %v", err)
	}
}

func TestInterpreter_StateSubscription(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream)

	ch, cancel := it.SubscribeState(8)
	defer cancel()

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := []State{StateConnecting, StateConnected}
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("State update = %v, want %v", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for state %v", w)
		}
	}
}

func TestInterpreter_ResamplesForFixedRateProviders(t *testing.T) {
	stream := newFakeStream()
	it, _ := newTestInterpreter(t, stream, func(o *Options) {
		o.SendRate = 24000
	})

	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "resampled chunks", func() bool { return stream.sentChunks() >= 1 })

	stream.mu.Lock()
	defer stream.mu.Unlock()
	for i, r := range stream.sentRates {
		if r != 24000 {
			t.Fatalf("Chunk %d sent at rate %d, want 24000", i, r)
		}
	}
}
