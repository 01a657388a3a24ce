package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FFplaySink plays audio by piping s16le PCM into ffplay's stdin.
// Clear restarts the process, which is the only reliable way to drop
// audio ffplay has already buffered.
type FFplaySink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64

	// lastWrite tracks when audio was last fed, for Flush estimation.
	lastWrite    time.Time
	pendingBytes int64
}

// NewFFplaySink creates a new ffplay-backed audio sink.
func NewFFplaySink(cfg Config, logger *slog.Logger) (*FFplaySink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("audioio: ffplay not found in PATH: %w", err)
	}

	return &FFplaySink{cfg: cfg, logger: logger}, nil
}

// Start launches the ffplay process.
func (s *FFplaySink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	s.running = true

	s.logger.Info("ffplay audio sink started", "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *FFplaySink) startLocked() error {
	// ffplay does not accept ffmpeg-style `-ac`; use `-ch_layout`.
	chLayout := "mono"
	if s.cfg.Channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-i", "-",
	}
	cmd := exec.Command("ffplay", args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a dummy audio backend on macOS; prefer CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audioio: ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("audioio: start ffplay: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.pendingBytes = 0

	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)

	return nil
}

// Stop halts playback.
func (s *FFplaySink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.stopProcessLocked()

	s.logger.Info("ffplay audio sink stopped")
	return nil
}

func (s *FFplaySink) stopProcessLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
	s.pendingBytes = 0
}

// Write feeds a chunk to ffplay. Chunks at a different rate than the
// sink's configured rate are resampled first.
func (s *FFplaySink) Write(ctx context.Context, chunk AudioChunk) error {
	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}
	data := (&AudioChunk{Samples: samples}).Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if s.stdin == nil {
		// Process died; bring it back.
		if err := s.startLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(data); err != nil {
		s.stopProcessLocked()
		return fmt.Errorf("audioio: write to ffplay: %w", err)
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	s.pendingBytes += int64(len(data))
	s.lastWrite = time.Now()

	return nil
}

// Flush waits for an estimate of the buffered audio to drain.
func (s *FFplaySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pendingBytes
	s.pendingBytes = 0
	s.mu.Unlock()

	bytesPerSecond := s.cfg.SampleRate * s.cfg.Channels * 2
	if bytesPerSecond <= 0 || pending <= 0 {
		return nil
	}
	wait := time.Duration(float64(pending) / float64(bytesPerSecond) * float64(time.Second))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Clear discards buffered audio by restarting the ffplay process.
func (s *FFplaySink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return nil
	}

	s.stopProcessLocked()
	return s.startLocked()
}

// Config returns the audio configuration.
func (s *FFplaySink) Config() Config {
	return s.cfg
}

// Name returns "ffplay".
func (s *FFplaySink) Name() string {
	return "ffplay"
}

// Close releases resources.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns sink statistics.
func (s *FFplaySink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := s.pendingBytes / 2
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Running:         running,
		Backend:         "ffplay",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*FFplaySink)(nil)
