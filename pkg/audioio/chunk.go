package audioio

import (
	"time"

	"github.com/voxbridge/voxbridge/pkg/pcm"
)

// AudioChunk represents a chunk of captured or playable audio.
type AudioChunk struct {
	// Samples contains PCM16 audio samples (little-endian order on
	// the wire).
	Samples []int16

	// SampleRate is the rate this chunk was actually captured at.
	// It may differ from the requested rate when the platform coerces
	// the device configuration.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the chunk as little-endian PCM16 bytes.
func (c *AudioChunk) Bytes() []byte {
	return pcm.Int16ToBytes(c.Samples)
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = pcm.BytesToInt16(data)
}

// Duration returns the playback duration of this chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(float64(frames) / float64(c.SampleRate) * float64(time.Second))
}
