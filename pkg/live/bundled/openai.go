package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/live"
)

const (
	openaiRealtimeURL  = "wss://api.openai.com/v1/realtime"
	openaiDefaultModel = "gpt-4o-realtime-preview"
	openaiDefaultVoice = "alloy"

	// The Realtime API streams PCM16 at a fixed 24kHz in both
	// directions.
	openaiSampleRate = 24000

	openaiHandshakeTimeout = 10 * time.Second
	openaiPingInterval     = 20 * time.Second
	openaiReadTimeout      = 60 * time.Second
)

// OpenAI implements live.Stream over the OpenAI Realtime API. Unlike
// Gemini it runs at a fixed 24kHz, so chunks captured at other rates
// are resampled by the caller before SendAudio.
type OpenAI struct {
	cfg    live.Config
	logger *slog.Logger

	url string // overridable in tests

	ws   *websocket.Conn
	wsMu sync.Mutex

	queue *live.SendQueue
	msgs  chan live.Message

	mu        sync.Mutex
	connected bool
	closed    bool
	cancel    context.CancelFunc
}

// NewOpenAI creates an OpenAI Realtime stream.
func NewOpenAI(cfg live.Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	return &OpenAI{
		cfg:    cfg,
		logger: cfg.Log(),
		url:    openaiRealtimeURL,
		queue:  live.NewSendQueue(cfg.QueueSize()),
		msgs:   make(chan live.Message, 64),
	}, nil
}

// Connect dials the Realtime endpoint, configures the session, and
// starts the pumps.
func (o *OpenAI) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return live.ErrClosed
	}
	if o.connected {
		o.mu.Unlock()
		return live.ErrAlreadyOpen
	}
	o.mu.Unlock()

	model := o.cfg.Model
	if model == "" {
		model = openaiDefaultModel
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: openaiHandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?model=%s", o.url, model), header)
	if err != nil {
		return fmt.Errorf("openai: connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.ws = ws
	o.connected = true
	o.cancel = cancel
	o.mu.Unlock()

	if err := o.sendSessionUpdate(); err != nil {
		_ = o.Close()
		return fmt.Errorf("openai: configure session: %w", err)
	}

	go o.readLoop()
	go o.writeLoop(runCtx)
	go o.pingLoop(runCtx)

	o.logger.Info("openai realtime connected", "model", model)
	return nil
}

func (o *OpenAI) sendSessionUpdate() error {
	voice := o.cfg.Voice
	if voice == "" {
		voice = openaiDefaultVoice
	}

	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"voice":               voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"turn_detection": map[string]any{
			"type": "server_vad",
		},
	}
	if o.cfg.SystemInstruction != "" {
		session["instructions"] = o.cfg.SystemInstruction
	}
	if o.cfg.InputTranscription {
		session["input_audio_transcription"] = map[string]any{
			"model": "whisper-1",
		}
	}

	return o.sendJSON(map[string]any{
		"type":    "session.update",
		"session": session,
	})
}

// SendAudio queues a PCM16 chunk. The Realtime API has no per-chunk
// rate field; chunks at a rate other than 24kHz are rejected so the
// caller resamples rather than feeding the model chipmunk audio.
func (o *OpenAI) SendAudio(pcm []byte, sampleRate int) error {
	o.mu.Lock()
	connected := o.connected && !o.closed
	o.mu.Unlock()
	if !connected {
		return live.ErrNotConnected
	}
	if sampleRate != 0 && sampleRate != openaiSampleRate {
		return fmt.Errorf("openai: chunk rate %d unsupported, need %d", sampleRate, openaiSampleRate)
	}
	return o.queue.Push(pcm, openaiSampleRate)
}

// SendText injects a text turn and requests a spoken response.
func (o *OpenAI) SendText(text string) error {
	o.mu.Lock()
	connected := o.connected && !o.closed
	o.mu.Unlock()
	if !connected {
		return live.ErrNotConnected
	}

	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
	if err := o.sendJSON(item); err != nil {
		return err
	}
	return o.sendJSON(map[string]any{"type": "response.create"})
}

func (o *OpenAI) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-o.queue.C():
			if !ok {
				return
			}
			msg := map[string]any{
				"type":  "input_audio_buffer.append",
				"audio": base64.StdEncoding.EncodeToString(chunk.PCM),
			}
			if err := o.sendJSON(msg); err != nil {
				o.logger.Warn("openai send failed", "error", err)
				return
			}
		}
	}
}

func (o *OpenAI) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(openaiPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.wsMu.Lock()
			err := o.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			o.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// openaiEvent covers the Realtime server events we act on.
type openaiEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAI) readLoop() {
	defer close(o.msgs)

	_ = o.ws.SetReadDeadline(time.Now().Add(openaiReadTimeout))
	o.ws.SetPongHandler(func(string) error {
		return o.ws.SetReadDeadline(time.Now().Add(openaiReadTimeout))
	})

	for {
		_, data, err := o.ws.ReadMessage()
		if err != nil {
			o.mu.Lock()
			closed := o.closed
			o.mu.Unlock()
			if !closed {
				o.emit(live.Message{Kind: live.KindError, Err: fmt.Errorf("openai: read: %w", err)})
			}
			return
		}
		_ = o.ws.SetReadDeadline(time.Now().Add(openaiReadTimeout))

		var ev openaiEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			o.logger.Debug("openai: unparseable event", "error", err)
			continue
		}
		o.dispatch(ev)
	}
}

func (o *OpenAI) dispatch(ev openaiEvent) {
	switch ev.Type {
	case "session.created", "session.updated":
		o.emit(live.Message{Kind: live.KindSetupComplete})

	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			o.logger.Warn("openai: dropping undecodable audio delta", "error", err)
			return
		}
		if len(audio) > 0 {
			o.emit(live.Message{Kind: live.KindAudio, Audio: audio, SampleRate: openaiSampleRate})
		}

	case "response.audio_transcript.delta":
		if ev.Delta != "" {
			o.emit(live.Message{Kind: live.KindOutputTranscript, Text: ev.Delta})
		}

	case "response.audio_transcript.done":
		if ev.Transcript != "" {
			o.emit(live.Message{Kind: live.KindOutputTranscript, Text: ev.Transcript, Final: true})
		}

	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" {
			o.emit(live.Message{Kind: live.KindInputTranscript, Text: ev.Transcript, Final: true})
		}

	case "input_audio_buffer.speech_started":
		// The user talked over the model; treat it like Gemini's
		// interrupted flag so playback is cut immediately.
		o.emit(live.Message{Kind: live.KindInterrupted})

	case "response.done":
		o.emit(live.Message{Kind: live.KindTurnComplete})

	case "error":
		msg := "unknown error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		o.emit(live.Message{Kind: live.KindError, Err: fmt.Errorf("openai: %s", msg)})
	}
}

// emit blocks when the consumer stalls; inbound audio is never
// dropped.
func (o *OpenAI) emit(msg live.Message) {
	o.msgs <- msg
}

// Messages returns the inbound message channel.
func (o *OpenAI) Messages() <-chan live.Message {
	return o.msgs
}

// DroppedOutbound reports outbound chunks evicted from the send queue.
func (o *OpenAI) DroppedOutbound() int64 {
	return o.queue.Dropped()
}

// Close tears down the session. Idempotent.
func (o *OpenAI) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.connected = false
	cancel := o.cancel
	ws := o.ws
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.queue.Close()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

func (o *OpenAI) sendJSON(v any) error {
	o.wsMu.Lock()
	defer o.wsMu.Unlock()

	if o.ws == nil {
		return live.ErrNotConnected
	}
	return o.ws.WriteJSON(v)
}

var _ live.Stream = (*OpenAI)(nil)

func init() {
	live.Register(live.ProviderOpenAI, func(cfg live.Config) (live.Stream, error) {
		return NewOpenAI(cfg)
	})
}
