// Package interpreter wires the pipeline together: microphone capture
// flows into the live translation session, translated audio flows out
// through the playback scheduler, and transcripts land in the log.
//
// The Interpreter owns the session lifecycle. Start spins up the
// capture and message pumps; Stop is idempotent and tears everything
// down in dependency order.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/pkg/audioio"
	"github.com/voxbridge/voxbridge/pkg/live"
	"github.com/voxbridge/voxbridge/pkg/playback"
	"github.com/voxbridge/voxbridge/pkg/spectrum"
	"github.com/voxbridge/voxbridge/pkg/transcript"
)

// State is the session connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var stateGaugeValue = map[State]float64{
	StateDisconnected: 0,
	StateConnecting:   1,
	StateConnected:    2,
	StateError:        3,
}

// ErrAlreadyStarted is returned by Start on a running interpreter.
var ErrAlreadyStarted = errors.New("interpreter: already started")

// Options configures an Interpreter. Source, Sink, and Stream are
// required; the rest default sensibly.
type Options struct {
	Source audioio.Source
	Sink   audioio.Sink
	Stream live.Stream

	// SendRate, when non-zero, resamples captured chunks to this rate
	// before sending. Providers with a fixed ingest rate need it;
	// leave zero for providers that accept per-chunk rates.
	SendRate int

	// Transcript receives conversation entries. A fresh log is created
	// when nil.
	Transcript *transcript.Log

	// Analyzer receives capture and playback samples for the level
	// visualization. Created when nil.
	Analyzer *spectrum.Analyzer

	// Metrics instruments the pipeline. Created unregistered when nil.
	Metrics *metrics.Metrics

	Logger *slog.Logger

	// Clock substitutes the playback clock, for tests.
	Clock playback.Clock
}

// Interpreter is one live translation session over a mic and a
// speaker.
type Interpreter struct {
	source audioio.Source
	sink   audioio.Sink
	stream live.Stream

	sched    *playback.Scheduler
	log      *transcript.Log
	analyzer *spectrum.Analyzer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sendRate int

	mu       sync.Mutex
	state    State
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	subs     map[int]chan State
	nextSub  int
	lastDrop int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New creates an interpreter from opts.
func New(opts Options) (*Interpreter, error) {
	if opts.Source == nil || opts.Sink == nil || opts.Stream == nil {
		return nil, fmt.Errorf("interpreter: source, sink, and stream are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tlog := opts.Transcript
	if tlog == nil {
		tlog = transcript.NewLog()
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = spectrum.NewAnalyzer()
	}
	m := opts.Metrics
	if m == nil {
		// Private registry: counts still work, nothing is exported.
		m = metrics.New(prometheus.NewRegistry())
	}

	schedOpts := []playback.Option{playback.WithLogger(logger)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, playback.WithClock(opts.Clock))
	}

	return &Interpreter{
		source:   opts.Source,
		sink:     opts.Sink,
		stream:   opts.Stream,
		sched:    playback.NewScheduler(opts.Sink, schedOpts...),
		log:      tlog,
		analyzer: analyzer,
		metrics:  m,
		logger:   logger,
		sendRate: opts.SendRate,
		state:    StateDisconnected,
		subs:     make(map[int]chan State),
	}, nil
}

// Start connects the session and begins streaming. It fails on a
// running or already-stopped interpreter.
func (it *Interpreter) Start(ctx context.Context) error {
	it.mu.Lock()
	if it.started || it.stopped {
		it.mu.Unlock()
		return ErrAlreadyStarted
	}
	it.started = true
	it.mu.Unlock()

	it.setState(StateConnecting)

	if err := it.stream.Connect(ctx); err != nil {
		it.setState(StateError)
		return fmt.Errorf("interpreter: connect: %w", err)
	}
	if err := it.sink.Start(ctx); err != nil {
		_ = it.stream.Close()
		it.setState(StateError)
		return fmt.Errorf("interpreter: start sink: %w", err)
	}
	if err := it.source.Start(ctx); err != nil {
		_ = it.stream.Close()
		_ = it.sink.Stop()
		it.setState(StateError)
		return fmt.Errorf("interpreter: start source: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	it.mu.Lock()
	it.cancel = cancel
	it.mu.Unlock()

	it.wg.Add(2)
	go it.capturePump(runCtx)
	go it.messagePump()

	it.setState(StateConnected)
	it.logger.Info("interpreter started")
	return nil
}

// capturePump reads microphone chunks and forwards them to the
// session.
func (it *Interpreter) capturePump(ctx context.Context) {
	defer it.wg.Done()

	for {
		chunk, err := it.source.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				it.logger.Debug("capture ended", "error", err)
			}
			return
		}
		if len(chunk.Samples) == 0 {
			continue
		}

		it.analyzer.Push(chunk.Samples)

		rate := chunk.SampleRate
		samples := chunk.Samples
		if it.sendRate != 0 && rate != it.sendRate {
			samples = audioio.Resample(samples, rate, it.sendRate)
			rate = it.sendRate
		}

		out := audioio.AudioChunk{Samples: samples, SampleRate: rate, Channels: chunk.Channels}
		data := out.Bytes()
		if err := it.stream.SendAudio(data, rate); err != nil {
			if ctx.Err() == nil {
				it.logger.Warn("send audio failed", "error", err)
			}
			return
		}

		it.metrics.ChunksSent.Inc()
		it.metrics.BytesSent.Add(float64(len(data)))
		if d := it.stream.DroppedOutbound(); d > it.lastDrop {
			it.metrics.OutboundDropped.Add(float64(d - it.lastDrop))
			it.lastDrop = d
		}
	}
}

// messagePump dispatches inbound session messages until the stream
// closes.
func (it *Interpreter) messagePump() {
	defer it.wg.Done()

	ctx := context.Background()
	for msg := range it.stream.Messages() {
		switch msg.Kind {
		case live.KindSetupComplete:
			it.logger.Debug("session ready")

		case live.KindAudio:
			it.handleAudio(ctx, msg)

		case live.KindInputTranscript:
			it.appendTranscript(transcript.SenderCaller, msg)

		case live.KindOutputTranscript:
			it.appendTranscript(transcript.SenderTranslator, msg)

		case live.KindTurnComplete:
			it.log.Finalize(transcript.SenderTranslator)
			it.log.Finalize(transcript.SenderCaller)

		case live.KindInterrupted:
			if err := it.sched.Interrupt(); err != nil {
				it.logger.Warn("interrupt playback failed", "error", err)
			}
			it.metrics.Interruptions.Inc()
			it.log.Finalize(transcript.SenderTranslator)

		case live.KindError:
			it.logger.Error("session error", "error", msg.Err)
			it.setState(StateError)
		}
	}

	it.mu.Lock()
	stopped := it.stopped
	it.mu.Unlock()
	if !stopped && it.CurrentState() != StateError {
		it.setState(StateDisconnected)
	}
}

func (it *Interpreter) handleAudio(ctx context.Context, msg live.Message) {
	if len(msg.Audio) < 2 || msg.SampleRate <= 0 {
		it.metrics.DecodeFailures.Inc()
		return
	}

	var chunk audioio.AudioChunk
	chunk.FromBytes(msg.Audio, msg.SampleRate, 1)
	if len(chunk.Samples) == 0 {
		it.metrics.DecodeFailures.Inc()
		return
	}

	it.analyzer.Push(chunk.Samples)

	if _, err := it.sched.Enqueue(ctx, chunk); err != nil {
		it.logger.Warn("enqueue playback failed", "error", err)
		return
	}
	it.metrics.ChunksReceived.Inc()
	it.metrics.BytesReceived.Add(float64(len(msg.Audio)))
	it.metrics.ActiveSegments.Set(float64(it.sched.Queued()))
}

func (it *Interpreter) appendTranscript(sender transcript.Sender, msg live.Message) {
	if msg.Text == "" {
		return
	}
	if msg.Final {
		it.log.AppendFinal(sender, msg.Text)
	} else {
		it.log.Append(sender, msg.Text)
	}
	it.metrics.TranscriptItems.WithLabelValues(string(sender)).Inc()
}

// Stop tears the session down. Safe to call multiple times and from
// multiple goroutines.
func (it *Interpreter) Stop() error {
	it.stopOnce.Do(func() {
		it.mu.Lock()
		it.stopped = true
		cancel := it.cancel
		started := it.started
		it.mu.Unlock()

		if !started {
			it.setState(StateDisconnected)
			return
		}

		if cancel != nil {
			cancel()
		}
		if err := it.source.Stop(); err != nil {
			it.stopErr = errors.Join(it.stopErr, err)
		}
		if err := it.stream.Close(); err != nil {
			it.stopErr = errors.Join(it.stopErr, err)
		}

		it.wg.Wait()

		if err := it.sink.Stop(); err != nil {
			it.stopErr = errors.Join(it.stopErr, err)
		}

		it.setState(StateDisconnected)
		it.logger.Info("interpreter stopped")
	})
	return it.stopErr
}

// CurrentState returns the connection state.
func (it *Interpreter) CurrentState() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// SubscribeState registers for state changes. Slow subscribers lose
// updates. The cancel function closes the channel.
func (it *Interpreter) SubscribeState(buffer int) (<-chan State, func()) {
	it.mu.Lock()
	defer it.mu.Unlock()

	id := it.nextSub
	it.nextSub++
	ch := make(chan State, buffer)
	it.subs[id] = ch

	cancel := func() {
		it.mu.Lock()
		defer it.mu.Unlock()
		if c, ok := it.subs[id]; ok {
			delete(it.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (it *Interpreter) setState(s State) {
	it.mu.Lock()
	if it.state == s {
		it.mu.Unlock()
		return
	}
	it.state = s
	for _, ch := range it.subs {
		select {
		case ch <- s:
		default:
		}
	}
	it.mu.Unlock()

	it.metrics.SessionState.Set(stateGaugeValue[s])
}

// Transcript returns the conversation log.
func (it *Interpreter) Transcript() *transcript.Log {
	return it.log
}

// Spectrum returns the current visualization bars.
func (it *Interpreter) Spectrum(bars int) []float64 {
	return it.analyzer.Snapshot(bars)
}

// Playback returns the playback scheduler, for pending-duration
// queries.
func (it *Interpreter) Playback() *playback.Scheduler {
	return it.sched
}
