package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// FFmpegSource captures microphone audio by piping ffmpeg's s16le output.
// ffmpeg handles device access, mono downmix, and rate conversion, so the
// delivered chunks always carry the requested sample rate.
type FFmpegSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	cmd      *exec.Cmd
	stdout   io.ReadCloser

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewFFmpegSource creates a new ffmpeg-backed audio source.
func NewFFmpegSource(cfg Config, logger *slog.Logger) (*FFmpegSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("audioio: ffmpeg not found in PATH: %w", err)
	}

	return &FFmpegSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 10),
	}, nil
}

// captureArgs builds the ffmpeg argument list for the current platform.
func (s *FFmpegSource) captureArgs() []string {
	device := s.cfg.Device
	var input []string
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		input = []string{"-f", "avfoundation", "-i", device}
	default:
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "alsa", "-i", device}
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)

	// Capture pre-processing. Acoustic echo cancellation needs a
	// far-end reference signal that a single capture stream cannot
	// provide, so only noise suppression and gain control map to
	// filters here.
	var filters []string
	if s.cfg.Processing.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn=nf=-25")
	}
	if s.cfg.Processing.AutoGainControl {
		filters = append(filters, "dynaudnorm=f=150:g=15")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	args = append(args,
		"-ac", fmt.Sprintf("%d", s.cfg.Channels),
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	return args
}

// Start launches ffmpeg and begins reading chunks.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", s.captureArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audioio: ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioio: start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.streamCh = make(chan AudioChunk, 10)

	go s.readLoop(stdout)

	s.logger.Info("ffmpeg audio source started",
		"sample_rate", s.cfg.SampleRate,
		"buffer_ms", s.cfg.BufferDuration.Milliseconds(),
	)

	return nil
}

func (s *FFmpegSource) readLoop(r io.Reader) {
	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			s.mu.Lock()
			ch := s.streamCh
			wasRunning := s.running
			s.running = false
			s.mu.Unlock()
			if wasRunning {
				close(ch)
			}
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)

		select {
		case s.streamCh <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and reaps the ffmpeg process.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil

	s.logger.Info("ffmpeg audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *FFmpegSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-s.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *FFmpegSource) Stream() <-chan AudioChunk {
	return s.streamCh
}

// Config returns the audio configuration.
func (s *FFmpegSource) Config() Config {
	return s.cfg
}

// Name returns "ffmpeg".
func (s *FFmpegSource) Name() string {
	return "ffmpeg"
}

// Close releases resources.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *FFmpegSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "ffmpeg",
	}
}

var _ SourceWithStats = (*FFmpegSource)(nil)
