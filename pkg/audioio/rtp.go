package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

// opusPayloadType is the dynamic RTP payload type used for Opus.
const opusPayloadType = 96

// maxOpusFrame is the largest decoded Opus frame we accept
// (120ms at 48kHz).
const maxOpusFrame = 5760

// RTPSource receives Opus-over-RTP audio on a UDP port and decodes it
// into PCM chunks. This lets the microphone live on a remote device
// (a satellite box or a phone) while translation runs here.
type RTPSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	conn     *net.UDPConn
	streamCh chan AudioChunk

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
	decodeErrs  atomic.Int64
}

// NewRTPSource creates an RTP audio source listening on cfg.Device
// (a UDP address like "0.0.0.0:5004").
func NewRTPSource(cfg Config, logger *slog.Logger) (*RTPSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("audioio: rtp source requires a listen address in device")
	}
	return &RTPSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 10),
	}, nil
}

// Start binds the UDP socket and begins decoding packets.
func (s *RTPSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", s.cfg.Device)
	if err != nil {
		return fmt.Errorf("audioio: resolve %s: %w", s.cfg.Device, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("audioio: listen %s: %w", s.cfg.Device, err)
	}

	decoder, err := opus.NewDecoder(s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("audioio: opus decoder: %w", err)
	}

	s.conn = conn
	s.running = true
	s.streamCh = make(chan AudioChunk, 10)

	go s.receiveLoop(conn, decoder)

	s.logger.Info("rtp audio source started",
		"listen", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

func (s *RTPSource) receiveLoop(conn *net.UDPConn, decoder *opus.Decoder) {
	buf := make([]byte, 1500)
	frame := make([]int16, maxOpusFrame)

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
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

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.decodeErrs.Add(1)
			continue
		}
		if pkt.PayloadType != opusPayloadType {
			continue
		}

		decoded, err := decoder.Decode(pkt.Payload, frame)
		if err != nil {
			s.decodeErrs.Add(1)
			continue
		}

		samples := make([]int16, decoded*s.cfg.Channels)
		copy(samples, frame[:decoded*s.cfg.Channels])

		chunk := AudioChunk{
			Samples:    samples,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		}

		select {
		case s.streamCh <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts reception.
func (s *RTPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.logger.Info("rtp audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *RTPSource) Read(ctx context.Context) (AudioChunk, error) {
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
func (s *RTPSource) Stream() <-chan AudioChunk {
	return s.streamCh
}

// Config returns the audio configuration.
func (s *RTPSource) Config() Config {
	return s.cfg
}

// Name returns "rtp".
func (s *RTPSource) Name() string {
	return "rtp"
}

// Close releases resources.
func (s *RTPSource) Close() error {
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
func (s *RTPSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "rtp",
	}
}

var _ SourceWithStats = (*RTPSource)(nil)

// RTPSink encodes PCM chunks to Opus and sends them as RTP packets to a
// remote UDP address.
type RTPSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	conn    *net.UDPConn
	encoder *opus.Encoder

	seq       uint16
	timestamp uint32
	ssrc      uint32

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewRTPSink creates an RTP audio sink targeting cfg.Device
// (a UDP address like "192.168.1.20:5004").
func NewRTPSink(cfg Config, logger *slog.Logger) (*RTPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("audioio: rtp sink requires a target address in device")
	}
	return &RTPSink{
		cfg:    cfg,
		logger: logger,
		ssrc:   rand.Uint32(),
	}, nil
}

// Start dials the remote endpoint and prepares the encoder.
func (s *RTPSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", s.cfg.Device)
	if err != nil {
		return fmt.Errorf("audioio: resolve %s: %w", s.cfg.Device, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("audioio: dial %s: %w", s.cfg.Device, err)
	}

	encoder, err := opus.NewEncoder(s.cfg.SampleRate, s.cfg.Channels, opus.AppVoIP)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("audioio: opus encoder: %w", err)
	}

	s.conn = conn
	s.encoder = encoder
	s.running = true

	s.logger.Info("rtp audio sink started",
		"target", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

// Write encodes the chunk and sends one RTP packet per configured
// buffer-duration frame.
func (s *RTPSink) Write(ctx context.Context, chunk AudioChunk) error {
	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}

	frameSamples := s.cfg.BufferSize() * s.cfg.Channels
	payload := make([]byte, 1400)

	for off := 0; off < len(samples); off += frameSamples {
		// Opus requires full frames; pad the tail with silence in a
		// scratch buffer so the caller's samples are never touched.
		frame := frameAt(samples, off, frameSamples)

		n, err := s.encoder.Encode(frame, payload)
		if err != nil {
			return fmt.Errorf("audioio: opus encode: %w", err)
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload[:n],
		}
		data, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("audioio: marshal rtp: %w", err)
		}
		if _, err := s.conn.Write(data); err != nil {
			return fmt.Errorf("audioio: send rtp: %w", err)
		}

		s.seq++
		s.timestamp += uint32(frameSamples / s.cfg.Channels)
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// frameAt returns the frame of size frameSamples starting at off. A
// short tail is copied into a fresh zero-padded buffer; full frames
// alias samples directly.
func frameAt(samples []int16, off, frameSamples int) []int16 {
	if off+frameSamples <= len(samples) {
		return samples[off : off+frameSamples]
	}
	padded := make([]int16, frameSamples)
	copy(padded, samples[off:])
	return padded
}

// Flush is a no-op; RTP has no local buffer.
func (s *RTPSink) Flush(ctx context.Context) error {
	return nil
}

// Clear is a no-op; packets already sent cannot be recalled. The
// receiving side handles barge-in by dropping its jitter buffer.
func (s *RTPSink) Clear() error {
	return nil
}

// Stop halts transmission.
func (s *RTPSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.logger.Info("rtp audio sink stopped")
	return nil
}

// Config returns the audio configuration.
func (s *RTPSink) Config() Config {
	return s.cfg
}

// Name returns "rtp".
func (s *RTPSink) Name() string {
	return "rtp"
}

// Close releases resources.
func (s *RTPSink) Close() error {
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
func (s *RTPSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        "rtp",
	}
}

var _ SinkWithStats = (*RTPSink)(nil)
