package live

// Kind identifies what a Message carries.
type Kind string

const (
	// KindSetupComplete signals the provider accepted the session
	// configuration and is ready for audio.
	KindSetupComplete Kind = "setup_complete"

	// KindAudio carries a chunk of synthesized PCM16 audio.
	KindAudio Kind = "audio"

	// KindInputTranscript carries recognized text of what the local
	// speaker said.
	KindInputTranscript Kind = "input_transcript"

	// KindOutputTranscript carries the text of the model's spoken
	// response.
	KindOutputTranscript Kind = "output_transcript"

	// KindTurnComplete signals the model finished its current response.
	KindTurnComplete Kind = "turn_complete"

	// KindInterrupted signals the model's response was cut off because
	// the local speaker started talking over it. Any queued playback
	// for the current turn should be discarded.
	KindInterrupted Kind = "interrupted"

	// KindError carries a terminal session error. The message channel
	// closes after it.
	KindError Kind = "error"
)

// Message is one event from the remote session. Exactly one payload
// field group is meaningful depending on Kind.
type Message struct {
	Kind Kind

	// Text is the transcript fragment for the transcript kinds.
	Text string

	// Final reports whether Text completes its utterance rather than
	// being a partial update.
	Final bool

	// Audio is raw PCM16 little-endian bytes for KindAudio.
	Audio []byte

	// SampleRate is the rate of Audio in Hz, parsed from the chunk's
	// MIME type. Zero when the provider did not state a rate.
	SampleRate int

	// Err is set for KindError.
	Err error
}
