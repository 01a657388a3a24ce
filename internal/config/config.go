// Package config loads voxbridge configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Web     WebConfig     `yaml:"web"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig configures the live translation session.
type SessionConfig struct {
	// Provider selects the live session backend ("gemini" or "openai").
	Provider string `yaml:"provider"`

	// Model is the provider model identifier. Empty selects the
	// provider default.
	Model string `yaml:"model"`

	// Voice selects the synthesized output voice.
	Voice string `yaml:"voice"`

	// SourceLanguage and TargetLanguage form the translation pair.
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// APIKey authenticates against the provider. Read from
	// GOOGLE_API_KEY or OPENAI_API_KEY when empty.
	APIKey string `yaml:"api_key"`

	// OutboundQueueSize bounds the number of unsent audio chunks held
	// while the websocket is slow. Oldest chunks drop when exceeded.
	OutboundQueueSize int `yaml:"outbound_queue_size"`
}

// AudioConfig configures capture and playback.
type AudioConfig struct {
	// Backend selects the audio backend ("auto", "ffmpeg", "rtp",
	// "mock").
	Backend string `yaml:"backend"`

	// Device is the platform-specific capture device identifier.
	Device string `yaml:"device"`

	// CaptureRate is the requested capture sample rate in Hz. The
	// platform may coerce it; the coerced rate is reported per chunk.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the playback sample rate in Hz.
	PlaybackRate int `yaml:"playback_rate"`

	// ChunkDuration is the size of capture buffers.
	ChunkDuration time.Duration `yaml:"chunk_duration"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Session: SessionConfig{
			Provider:          "gemini",
			SourceLanguage:    "English",
			TargetLanguage:    "Spanish",
			OutboundQueueSize: 64,
		},
		Audio: AudioConfig{
			Backend:       "auto",
			CaptureRate:   16000,
			PlaybackRate:  24000,
			ChunkDuration: 20 * time.Millisecond,
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    ":8088",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9092",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VOXBRIDGE_PROVIDER"); v != "" {
		c.Session.Provider = v
	}
	if v := os.Getenv("VOXBRIDGE_MODEL"); v != "" {
		c.Session.Model = v
	}
	if v := os.Getenv("VOXBRIDGE_VOICE"); v != "" {
		c.Session.Voice = v
	}
	if v := os.Getenv("VOXBRIDGE_SOURCE_LANG"); v != "" {
		c.Session.SourceLanguage = v
	}
	if v := os.Getenv("VOXBRIDGE_TARGET_LANG"); v != "" {
		c.Session.TargetLanguage = v
	}
	if v := os.Getenv("VOXBRIDGE_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = v
	}
	if v := os.Getenv("VOXBRIDGE_AUDIO_DEVICE"); v != "" {
		c.Audio.Device = v
	}
	if v := os.Getenv("VOXBRIDGE_WEB_ADDR"); v != "" {
		c.Web.Addr = v
	}
	if v := os.Getenv("VOXBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VOXBRIDGE_CAPTURE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil {
			c.Audio.CaptureRate = rate
		}
	}

	if c.Session.APIKey == "" {
		switch c.Session.Provider {
		case "openai":
			c.Session.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.Session.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
}

// Validate checks the configuration. The credential check runs here so a
// missing key fails before any device or network resource is acquired.
func (c *Config) Validate() error {
	switch c.Session.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Session.Provider)
	}
	if c.Session.SourceLanguage == "" || c.Session.TargetLanguage == "" {
		return fmt.Errorf("config: source and target languages are required")
	}
	if c.Session.OutboundQueueSize <= 0 {
		return fmt.Errorf("config: outbound_queue_size must be positive, got %d", c.Session.OutboundQueueSize)
	}
	if c.Audio.CaptureRate <= 0 {
		return fmt.Errorf("config: capture_rate must be positive, got %d", c.Audio.CaptureRate)
	}
	if c.Audio.PlaybackRate <= 0 {
		return fmt.Errorf("config: playback_rate must be positive, got %d", c.Audio.PlaybackRate)
	}
	if c.Audio.ChunkDuration <= 0 {
		return fmt.Errorf("config: chunk_duration must be positive, got %v", c.Audio.ChunkDuration)
	}
	return nil
}

// RequireCredential returns an error when no API key is configured for
// the selected provider.
func (c *Config) RequireCredential() error {
	if c.Session.APIKey == "" {
		return fmt.Errorf("config: missing API key for provider %q", c.Session.Provider)
	}
	return nil
}
