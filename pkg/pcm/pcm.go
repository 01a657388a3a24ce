// Package pcm converts between normalized float samples, little-endian
// 16-bit PCM bytes, and the base64 payloads used on the session wire.
//
// All functions are pure and stateless. Float samples are expected in
// [-1, 1]; out-of-range values are clamped before conversion so they can
// never wrap around the int16 range.
package pcm

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// BytesPerSample is the size of one PCM16 sample on the wire.
	BytesPerSample = 2

	// maxInt16 is the scale factor between normalized floats and int16.
	maxInt16 = 32767
)

// Clamp limits a normalized sample to [-1, 1].
func Clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// FloatsToInt16 converts normalized float samples to int16 samples,
// clamping each value to [-1, 1] first.
func FloatsToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = int16(Clamp(v) * maxInt16)
	}
	return out
}

// Int16ToFloats converts int16 samples back to normalized floats.
func Int16ToFloats(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / maxInt16
	}
	return out
}

// Int16ToBytes packs int16 samples into little-endian PCM16 bytes.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// BytesToInt16 unpacks little-endian PCM16 bytes into int16 samples.
// A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// Encode converts normalized float samples to little-endian PCM16 bytes,
// clamping out-of-range values.
func Encode(samples []float32) []byte {
	return Int16ToBytes(FloatsToInt16(samples))
}

// Decode converts little-endian PCM16 bytes to normalized float samples.
func Decode(data []byte) []float32 {
	return Int16ToFloats(BytesToInt16(data))
}

// EncodeBase64 converts normalized float samples to the base64 transport
// encoding used for outbound media payloads.
func EncodeBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Encode(samples))
}

// DecodeBase64 converts a base64 transport payload back to PCM16 bytes.
func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode base64: %w", err)
	}
	return data, nil
}

// MimeType formats the media MIME type for a PCM stream at the given
// sample rate, e.g. "audio/pcm;rate=16000". The capture layer may coerce
// the requested rate, so the actual per-chunk rate goes here.
func MimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// ParseMimeType extracts the sample rate from a PCM MIME type. It accepts
// both bare "audio/pcm" (rate 0) and "audio/pcm;rate=N" forms.
func ParseMimeType(mime string) (sampleRate int, ok bool) {
	base, params, _ := strings.Cut(mime, ";")
	if strings.TrimSpace(base) != "audio/pcm" {
		return 0, false
	}
	for _, p := range strings.Split(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if found && k == "rate" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return 0, false
			}
			return rate, true
		}
	}
	return 0, true
}

// Duration returns the playback duration of PCM16 bytes at the given
// sample rate for mono audio.
func Duration(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 || numBytes <= 0 {
		return 0
	}
	samples := numBytes / BytesPerSample
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
