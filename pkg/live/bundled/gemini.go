// Package bundled contains the live providers shipped with voxbridge:
// Gemini Live and the OpenAI Realtime API. Importing it registers both
// with the live package registry.
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
	"github.com/voxbridge/voxbridge/pkg/pcm"
)

const (
	// Gemini Live API WebSocket endpoint.
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	geminiDefaultModel = "models/gemini-2.0-flash-exp"
	geminiDefaultVoice = "Puck"

	// Rate Gemini synthesizes at when no explicit rate is requested.
	geminiOutputRate = 24000

	geminiHandshakeTimeout = 10 * time.Second
)

// Gemini implements live.Stream over the Gemini Live BidiGenerateContent
// WebSocket protocol. A single model handles VAD, recognition,
// translation, and synthesis in one stream, which keeps latency low.
type Gemini struct {
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

// NewGemini creates a Gemini Live stream. Authentication uses the API
// key, or the OAuth2 token source when one is configured.
func NewGemini(cfg live.Config) (*Gemini, error) {
	if cfg.APIKey == "" && cfg.TokenSource == nil {
		return nil, live.ErrMissingAPIKey
	}
	return &Gemini{
		cfg:    cfg,
		logger: cfg.Log(),
		url:    geminiLiveURL,
		queue:  live.NewSendQueue(cfg.QueueSize()),
		msgs:   make(chan live.Message, 64),
	}, nil
}

// Connect dials the Live endpoint, sends the setup payload, and starts
// the read and write pumps.
func (g *Gemini) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return live.ErrClosed
	}
	if g.connected {
		g.mu.Unlock()
		return live.ErrAlreadyOpen
	}
	g.mu.Unlock()

	url := g.url
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	if g.cfg.TokenSource != nil {
		tok, err := g.cfg.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("gemini: fetch token: %w", err)
		}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
	} else {
		url = fmt.Sprintf("%s?key=%s", url, g.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: geminiHandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("gemini: connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	g.ws = ws
	g.connected = true
	g.cancel = cancel
	g.mu.Unlock()

	if err := g.sendSetup(); err != nil {
		_ = g.Close()
		return fmt.Errorf("gemini: configure session: %w", err)
	}

	go g.readLoop()
	go g.writeLoop(runCtx)

	g.logger.Info("gemini live connected", "model", g.model())
	return nil
}

func (g *Gemini) model() string {
	if g.cfg.Model != "" {
		return g.cfg.Model
	}
	return geminiDefaultModel
}

// geminiSetup is the session configuration payload.
type geminiSetup struct {
	Setup geminiSetupBody `json:"setup"`
}

type geminiSetupBody struct {
	Model            string          `json:"model"`
	GenerationConfig geminiGenConfig `json:"generation_config"`
	SystemInstr      *geminiContent  `json:"system_instruction,omitempty"`
	InputTranscript  *struct{}       `json:"input_audio_transcription,omitempty"`
	OutputTranscript *struct{}       `json:"output_audio_transcription,omitempty"`
}

type geminiGenConfig struct {
	ResponseModalities []string           `json:"response_modalities"`
	SpeechConfig       geminiSpeechConfig `json:"speech_config"`
}

type geminiSpeechConfig struct {
	VoiceConfig struct {
		Prebuilt struct {
			VoiceName string `json:"voice_name"`
		} `json:"prebuilt_voice_config"`
	} `json:"voice_config"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (g *Gemini) sendSetup() error {
	voice := g.cfg.Voice
	if voice == "" {
		voice = geminiDefaultVoice
	}

	setup := geminiSetup{}
	setup.Setup.Model = g.model()
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.Prebuilt.VoiceName = voice

	if g.cfg.SystemInstruction != "" {
		setup.Setup.SystemInstr = &geminiContent{
			Parts: []geminiPart{{Text: g.cfg.SystemInstruction}},
		}
	}
	if g.cfg.InputTranscription {
		setup.Setup.InputTranscript = &struct{}{}
	}
	if g.cfg.OutputTranscription {
		setup.Setup.OutputTranscript = &struct{}{}
	}

	return g.sendJSON(setup)
}

// SendAudio queues a PCM16 chunk. The chunk's own sample rate is
// reported in the MIME type, so rate-coerced capture devices work
// without resampling on this side.
func (g *Gemini) SendAudio(pcmBytes []byte, sampleRate int) error {
	g.mu.Lock()
	connected := g.connected && !g.closed
	g.mu.Unlock()
	if !connected {
		return live.ErrNotConnected
	}
	return g.queue.Push(pcmBytes, sampleRate)
}

// SendText injects a text turn into the conversation.
func (g *Gemini) SendText(text string) error {
	g.mu.Lock()
	connected := g.connected && !g.closed
	g.mu.Unlock()
	if !connected {
		return live.ErrNotConnected
	}

	msg := map[string]any{
		"client_content": map[string]any{
			"turns": []map[string]any{
				{
					"role":  "user",
					"parts": []map[string]any{{"text": text}},
				},
			},
			"turn_complete": true,
		},
	}
	return g.sendJSON(msg)
}

// writeLoop drains the outbound queue onto the socket.
func (g *Gemini) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-g.queue.C():
			if !ok {
				return
			}

			rate := chunk.SampleRate
			if rate == 0 {
				rate = g.cfg.InputSampleRate
			}

			msg := map[string]any{
				"realtime_input": map[string]any{
					"media_chunks": []map[string]any{
						{
							"data":      base64.StdEncoding.EncodeToString(chunk.PCM),
							"mime_type": pcm.MimeType(rate),
						},
					},
				},
			}
			if err := g.sendJSON(msg); err != nil {
				g.logger.Warn("gemini send failed", "error", err)
				return
			}
		}
	}
}

func (g *Gemini) readLoop() {
	defer close(g.msgs)

	for {
		_, data, err := g.ws.ReadMessage()
		if err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if !closed {
				g.emit(live.Message{Kind: live.KindError, Err: fmt.Errorf("gemini: read: %w", err)})
			}
			return
		}

		var msg geminiServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Debug("gemini: unparseable message", "error", err)
			continue
		}
		g.dispatch(msg)
	}
}

// geminiServerMessage covers the server message shapes we act on.
type geminiServerMessage struct {
	SetupComplete *struct{}            `json:"setupComplete"`
	ServerContent *geminiServerContent `json:"serverContent"`
}

type geminiServerContent struct {
	ModelTurn           *geminiContent    `json:"modelTurn"`
	TurnComplete        bool              `json:"turnComplete"`
	Interrupted         bool              `json:"interrupted"`
	InputTranscription  *geminiTranscript `json:"inputTranscription"`
	OutputTranscription *geminiTranscript `json:"outputTranscription"`
}

type geminiTranscript struct {
	Text string `json:"text"`
}

func (g *Gemini) dispatch(msg geminiServerMessage) {
	if msg.SetupComplete != nil {
		g.logger.Debug("gemini live session ready")
		g.emit(live.Message{Kind: live.KindSetupComplete})
		return
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		g.emit(live.Message{Kind: live.KindInterrupted})
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil {
				g.emitAudio(part.InlineData)
			}
			if part.Text != "" {
				g.emit(live.Message{Kind: live.KindOutputTranscript, Text: part.Text})
			}
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		g.emit(live.Message{
			Kind:  live.KindInputTranscript,
			Text:  sc.InputTranscription.Text,
			Final: true,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		g.emit(live.Message{
			Kind:  live.KindOutputTranscript,
			Text:  sc.OutputTranscription.Text,
			Final: true,
		})
	}

	if sc.TurnComplete {
		g.emit(live.Message{Kind: live.KindTurnComplete})
	}
}

func (g *Gemini) emitAudio(data *geminiInlineData) {
	rate, ok := pcm.ParseMimeType(data.MimeType)
	if !ok || rate == 0 {
		// Bare "audio/pcm" parses with rate 0. Rate defaulting keeps
		// playback going when the server omits the rate suffix.
		rate = geminiOutputRate
	}

	audio, err := base64.StdEncoding.DecodeString(data.Data)
	if err != nil {
		g.logger.Warn("gemini: dropping undecodable audio chunk", "error", err)
		return
	}
	if len(audio) == 0 {
		return
	}

	g.emit(live.Message{Kind: live.KindAudio, Audio: audio, SampleRate: rate})
}

// emit blocks when the consumer stalls. Dropping inbound audio would
// corrupt playback, so backpressure propagates to the socket instead.
func (g *Gemini) emit(msg live.Message) {
	g.msgs <- msg
}

// Messages returns the inbound message channel.
func (g *Gemini) Messages() <-chan live.Message {
	return g.msgs
}

// DroppedOutbound reports outbound chunks evicted from the send queue.
func (g *Gemini) DroppedOutbound() int64 {
	return g.queue.Dropped()
}

// Close tears down the session. Idempotent.
func (g *Gemini) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.connected = false
	cancel := g.cancel
	ws := g.ws
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.queue.Close()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

func (g *Gemini) sendJSON(v any) error {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	if g.ws == nil {
		return live.ErrNotConnected
	}
	return g.ws.WriteJSON(v)
}

var _ live.Stream = (*Gemini)(nil)

func init() {
	live.Register(live.ProviderGemini, func(cfg live.Config) (live.Stream, error) {
		return NewGemini(cfg)
	})
}
