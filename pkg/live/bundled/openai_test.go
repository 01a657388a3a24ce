package bundled

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/live"
)

// fakeRealtimeServer accepts one websocket session, captures the
// session.update event and appended audio, and plays back scripted
// events.
type fakeRealtimeServer struct {
	t *testing.T

	sessionCh chan map[string]any
	appendCh  chan map[string]any
	script    []string
}

func (f *fakeRealtimeServer) handler(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
		f.t.Errorf("Authorization header = %q", got)
	}
	if got := r.Header.Get("OpenAI-Beta"); got != "realtime=v1" {
		f.t.Errorf("OpenAI-Beta header = %q", got)
	}

	ws, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	var update map[string]any
	if err := ws.ReadJSON(&update); err != nil {
		f.t.Errorf("read session.update: %v", err)
		return
	}
	f.sessionCh <- update

	for _, raw := range f.script {
		if err := ws.WriteMessage(1, []byte(raw)); err != nil {
			return
		}
	}

	for {
		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg["type"] == "input_audio_buffer.append" {
			f.appendCh <- msg
		}
	}
}

func newOpenAITest(t *testing.T, script []string, cfg live.Config) (*OpenAI, *fakeRealtimeServer, func()) {
	t.Helper()

	fake := &fakeRealtimeServer{
		t:         t,
		sessionCh: make(chan map[string]any, 1),
		appendCh:  make(chan map[string]any, 16),
		script:    script,
	}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))

	o, err := NewOpenAI(cfg)
	if err != nil {
		srv.Close()
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	o.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	return o, fake, func() {
		_ = o.Close()
		srv.Close()
	}
}

func TestOpenAI_SessionUpdate(t *testing.T) {
	cfg := live.Config{
		Provider:           live.ProviderOpenAI,
		APIKey:             "test-key",
		Voice:              "verse",
		SystemInstruction:  live.TranslationInstruction("French", "English"),
		InputTranscription: true,
	}
	o, fake, cleanup := newOpenAITest(t, nil, cfg)
	defer cleanup()

	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	update := <-fake.sessionCh
	if update["type"] != "session.update" {
		t.Fatalf("first event type = %v", update["type"])
	}
	session := update["session"].(map[string]any)

	if session["voice"] != "verse" {
		t.Errorf("voice = %v", session["voice"])
	}
	if session["input_audio_format"] != "pcm16" || session["output_audio_format"] != "pcm16" {
		t.Errorf("audio formats = %v / %v", session["input_audio_format"], session["output_audio_format"])
	}
	td := session["turn_detection"].(map[string]any)
	if td["type"] != "server_vad" {
		t.Errorf("turn_detection = %v", td)
	}
	tr, _ := session["input_audio_transcription"].(map[string]any)
	if tr == nil || tr["model"] != "whisper-1" {
		t.Errorf("input_audio_transcription = %v", session["input_audio_transcription"])
	}
	instr, _ := session["instructions"].(string)
	if !strings.Contains(instr, "English") {
		t.Errorf("instructions = %q", instr)
	}
}

func TestOpenAI_InboundDispatch(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0, 1, 0, 2})
	script := []string{
		`{"type":"session.created"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","transcript":"bonjour"}`,
		`{"type":"response.audio.delta","delta":"` + audio + `"}`,
		`{"type":"response.audio_transcript.delta","delta":"hel"}`,
		`{"type":"response.audio_transcript.done","transcript":"hello"}`,
		`{"type":"response.done"}`,
		`{"type":"input_audio_buffer.speech_started"}`,
	}

	cfg := live.Config{Provider: live.ProviderOpenAI, APIKey: "test-key"}
	o, _, cleanup := newOpenAITest(t, script, cfg)
	defer cleanup()

	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msgs := collectMessages(t, o, 7)

	want := []live.Kind{
		live.KindSetupComplete,
		live.KindInputTranscript,
		live.KindAudio,
		live.KindOutputTranscript,
		live.KindOutputTranscript,
		live.KindTurnComplete,
		live.KindInterrupted,
	}
	for i, k := range want {
		if msgs[i].Kind != k {
			t.Errorf("message %d kind = %v, want %v", i, msgs[i].Kind, k)
		}
	}

	if msgs[1].Text != "bonjour" || !msgs[1].Final {
		t.Errorf("input transcript = %+v", msgs[1])
	}
	if msgs[2].SampleRate != openaiSampleRate {
		t.Errorf("audio rate = %d, want %d", msgs[2].SampleRate, openaiSampleRate)
	}
	if msgs[3].Final || msgs[3].Text != "hel" {
		t.Errorf("partial transcript = %+v", msgs[3])
	}
	if !msgs[4].Final || msgs[4].Text != "hello" {
		t.Errorf("final transcript = %+v", msgs[4])
	}
}

func TestOpenAI_SendAudio(t *testing.T) {
	cfg := live.Config{Provider: live.ProviderOpenAI, APIKey: "test-key"}
	o, fake, cleanup := newOpenAITest(t, nil, cfg)
	defer cleanup()

	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-fake.sessionCh

	if err := o.SendAudio([]byte{1, 2}, openaiSampleRate); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	select {
	case msg := <-fake.appendCh:
		data, err := base64.StdEncoding.DecodeString(msg["audio"].(string))
		if err != nil || len(data) != 2 {
			t.Errorf("append payload: %v, %d bytes", err, len(data))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received audio")
	}

	// Mismatched rates are rejected, not silently mangled.
	if err := o.SendAudio([]byte{1, 2}, 16000); err == nil {
		t.Error("Expected error for non-24kHz chunk")
	}
}

func TestOpenAI_ErrorEvent(t *testing.T) {
	script := []string{
		`{"type":"session.created"}`,
		`{"type":"error","error":{"message":"rate limited","code":"rate_limit"}}`,
	}

	cfg := live.Config{Provider: live.ProviderOpenAI, APIKey: "test-key"}
	o, _, cleanup := newOpenAITest(t, script, cfg)
	defer cleanup()

	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msgs := collectMessages(t, o, 2)
	if msgs[1].Kind != live.KindError {
		t.Fatalf("kind = %v, want error", msgs[1].Kind)
	}
	if !strings.Contains(msgs[1].Err.Error(), "rate limited") {
		t.Errorf("error = %v", msgs[1].Err)
	}
}
