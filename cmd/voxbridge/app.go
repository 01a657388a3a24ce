package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/pkg/audioio"
	"github.com/voxbridge/voxbridge/pkg/interpreter"
	"github.com/voxbridge/voxbridge/pkg/live"
	"github.com/voxbridge/voxbridge/pkg/spectrum"
	"github.com/voxbridge/voxbridge/pkg/transcript"
	"github.com/voxbridge/voxbridge/pkg/web"
)

// App owns the current translation session and implements the
// dashboard's Controller surface. Sessions are single-use; starting a
// new one builds a fresh interpreter over fresh audio endpoints.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// analyzer and tlog outlive individual sessions so the dashboard
	// keeps its history across restarts.
	analyzer *spectrum.Analyzer
	tlog     *transcript.Log

	mu      sync.Mutex
	current *interpreter.Interpreter
	source  audioio.Source
	sink    audioio.Sink
	cancels []func()

	// OnEntry is invoked for every transcript update. Optional.
	OnEntry func(transcript.Entry)

	// OnState is invoked on connection state changes. Optional.
	OnState func(interpreter.State)
}

// NewApp builds the session manager.
func NewApp(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		analyzer: spectrum.NewAnalyzer(),
		tlog:     transcript.NewLog(),
	}
}

// StartSession builds and starts a new interpreter session.
func (a *App) StartSession(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && a.current.CurrentState() == interpreter.StateConnected {
		return fmt.Errorf("session already running")
	}
	a.teardownLocked()

	sourceCfg := audioio.DefaultConfig()
	sourceCfg.Backend = audioio.Backend(a.cfg.Audio.Backend)
	sourceCfg.SampleRate = a.cfg.Audio.CaptureRate
	sourceCfg.BufferDuration = a.cfg.Audio.ChunkDuration
	sourceCfg.Device = a.cfg.Audio.Device

	sinkCfg := sourceCfg
	sinkCfg.SampleRate = a.cfg.Audio.PlaybackRate

	source, err := audioio.NewSource(sourceCfg, a.logger)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	sink, err := audioio.NewSink(sinkCfg, a.logger)
	if err != nil {
		_ = source.Close()
		return fmt.Errorf("create sink: %w", err)
	}

	stream, err := live.New(a.liveConfig())
	if err != nil {
		_ = source.Close()
		_ = sink.Close()
		return fmt.Errorf("create stream: %w", err)
	}

	it, err := interpreter.New(interpreter.Options{
		Source:     source,
		Sink:       sink,
		Stream:     stream,
		SendRate:   a.sendRate(),
		Transcript: a.tlog,
		Analyzer:   a.analyzer,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	if err != nil {
		_ = source.Close()
		_ = sink.Close()
		_ = stream.Close()
		return fmt.Errorf("create interpreter: %w", err)
	}

	if err := it.Start(ctx); err != nil {
		_ = source.Close()
		_ = sink.Close()
		return err
	}

	a.current = it
	a.source = source
	a.sink = sink
	a.watchLocked(it)
	return nil
}

// liveConfig maps application configuration onto a session config.
func (a *App) liveConfig() live.Config {
	return live.Config{
		Provider: a.cfg.Session.Provider,
		APIKey:   a.cfg.Session.APIKey,
		Model:    a.cfg.Session.Model,
		Voice:    a.cfg.Session.Voice,
		SystemInstruction: live.TranslationInstruction(
			a.cfg.Session.SourceLanguage,
			a.cfg.Session.TargetLanguage,
		),
		InputSampleRate:     a.cfg.Audio.CaptureRate,
		OutputSampleRate:    a.cfg.Audio.PlaybackRate,
		InputTranscription:  true,
		OutputTranscription: true,
		OutboundQueueSize:   a.cfg.Session.OutboundQueueSize,
		Logger:              a.logger,
	}
}

// sendRate resolves the fixed ingest rate for providers that need one.
func (a *App) sendRate() int {
	if a.cfg.Session.Provider == "openai" {
		return 24000
	}
	return 0
}

// watchLocked forwards transcript and state updates to the callbacks.
// Called with a.mu held.
func (a *App) watchLocked(it *interpreter.Interpreter) {
	entries, cancelEntries := a.tlog.Subscribe(64)
	states, cancelStates := it.SubscribeState(16)
	a.cancels = []func(){cancelEntries, cancelStates}

	go func() {
		for e := range entries {
			if a.OnEntry != nil {
				a.OnEntry(e)
			}
		}
	}()
	go func() {
		for s := range states {
			if a.OnState != nil {
				a.OnState(s)
			}
		}
	}()
}

// StopSession ends the running session. Safe when nothing runs.
func (a *App) StopSession() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return nil
	}
	err := a.current.Stop()
	a.teardownLocked()
	return err
}

// teardownLocked releases session resources. Called with a.mu held.
func (a *App) teardownLocked() {
	if a.current != nil {
		_ = a.current.Stop()
		a.current = nil
	}
	if a.source != nil {
		_ = a.source.Close()
		a.source = nil
	}
	if a.sink != nil {
		_ = a.sink.Close()
		a.sink = nil
	}
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
}

// State implements web.Controller.
func (a *App) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return string(interpreter.StateDisconnected)
	}
	return string(a.current.CurrentState())
}

// Transcript implements web.Controller.
func (a *App) Transcript() []transcript.Entry {
	return a.tlog.Entries()
}

// Spectrum implements web.Controller.
func (a *App) Spectrum(bars int) []float64 {
	return a.analyzer.Snapshot(bars)
}

// Close stops any session.
func (a *App) Close() error {
	return a.StopSession()
}

var _ web.Controller = (*App)(nil)
