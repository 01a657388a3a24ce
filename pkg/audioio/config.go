// Package audioio provides audio capture and playback for the
// translation pipeline.
//
// This package supports multiple backends:
//   - ffmpeg/ffplay - Default capture and playback via external processes
//   - RTP           - Opus-over-RTP transport to a remote audio device
//   - Mock          - CI/testing without hardware
//
// The backend is selected automatically based on platform, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendFFmpeg captures via ffmpeg and plays via ffplay.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendRTP streams Opus-over-RTP to and from a remote device.
	BackendRTP Backend = "rtp"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Processing describes the capture pre-processing requested from the
// backend. Backends apply what they can and ignore the rest; the
// resulting stream is always mono.
type Processing struct {
	// EchoCancellation requests acoustic echo cancellation.
	EchoCancellation bool `yaml:"echo_cancellation" json:"echo_cancellation"`

	// NoiseSuppression requests broadband noise reduction.
	NoiseSuppression bool `yaml:"noise_suppression" json:"noise_suppression"`

	// AutoGainControl requests automatic input level normalization.
	AutoGainControl bool `yaml:"auto_gain_control" json:"auto_gain_control"`
}

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the requested sample rate in Hz. The platform may
	// coerce this; chunks report the rate they were actually captured
	// at. Default: 16000 (session input requirement)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels. Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms (320 samples at 16kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the backend-specific device identifier.
	// Examples:
	//   - ffmpeg: ALSA device ("default", "hw:1,0") or avfoundation index
	//   - rtp: UDP address ("127.0.0.1:5004")
	//   - mock: ignored
	Device string `yaml:"device" json:"device"`

	// Processing is the capture pre-processing request.
	Processing Processing `yaml:"processing" json:"processing"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		Device:         "",
		Processing: Processing{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
