package live

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
)

// Provider names for the bundled implementations.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultOutboundQueueSize bounds the outbound audio queue. At 20ms
// chunks this is four seconds of backlog before chunks are dropped.
const DefaultOutboundQueueSize = 200

// Config describes a live translation session.
type Config struct {
	// Provider selects the registered implementation ("gemini",
	// "openai").
	Provider string

	// APIKey authenticates the session. For Gemini a TokenSource may
	// be supplied instead.
	APIKey string

	// TokenSource, when set, supplies OAuth2 bearer tokens in place of
	// the API key. Used for Vertex-style service account auth.
	TokenSource oauth2.TokenSource

	// Model is the provider's model identifier. Empty selects the
	// provider default.
	Model string

	// Voice names the synthesis voice. Empty selects the provider
	// default.
	Voice string

	// SystemInstruction steers the model. For translation sessions
	// build it with TranslationInstruction.
	SystemInstruction string

	// InputSampleRate is the nominal capture rate in Hz. Individual
	// chunks may be sent at a different rate when the device coerced
	// capture; SendAudio's per-chunk rate wins.
	InputSampleRate int

	// OutputSampleRate is the synthesis rate the provider is asked
	// for, in Hz.
	OutputSampleRate int

	// InputTranscription requests transcripts of the local speaker.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool

	// OutboundQueueSize bounds the send queue. Zero means
	// DefaultOutboundQueueSize.
	OutboundQueueSize int

	// Logger receives session lifecycle and protocol logs. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("live: provider is required")
	}
	if c.APIKey == "" && c.TokenSource == nil {
		return ErrMissingAPIKey
	}
	if c.InputSampleRate < 0 || c.OutputSampleRate < 0 {
		return fmt.Errorf("live: sample rates must be non-negative")
	}
	if c.OutboundQueueSize < 0 {
		return fmt.Errorf("live: outbound queue size must be non-negative")
	}
	return nil
}

// QueueSize resolves the effective outbound queue bound.
func (c Config) QueueSize() int {
	if c.OutboundQueueSize > 0 {
		return c.OutboundQueueSize
	}
	return DefaultOutboundQueueSize
}

// Log resolves the effective logger, tagged with the provider name.
func (c Config) Log() *slog.Logger {
	l := c.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("provider", c.Provider)
}

// TranslationInstruction builds a system instruction that turns a
// speech model into a speech-to-speech interpreter between two
// languages.
func TranslationInstruction(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional simultaneous interpreter. The user speaks %s. "+
			"Translate everything they say into %s and speak only the translation. "+
			"Do not answer questions, add commentary, or explain; only translate. "+
			"Preserve the speaker's tone and intent. If the speech is unintelligible, stay silent.",
		sourceLang, targetLang)
}
