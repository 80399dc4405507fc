package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// fakeServer records the messages it receives and answers the flush with the
// scripted replies.
type fakeServer struct {
	mu       sync.Mutex
	path     string
	query    string
	messages []map[string]any
	replies  []audioResponse
}

func (f *fakeServer) start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		f.mu.Lock()
		f.path, f.query = r.URL.Path, r.URL.RawQuery
		f.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("unmarshal client message: %v", err)
				return
			}
			f.mu.Lock()
			f.messages = append(f.messages, msg)
			f.mu.Unlock()
			if msg["text"] == "" {
				break
			}
		}
		for _, rep := range f.replies {
			data, _ := json.Marshal(rep)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func pcmChunk(samples ...int16) string {
	return base64.StdEncoding.EncodeToString(audio.SamplesToPCM(samples))
}

// ── Synthesize ────────────────────────────────────────────────────────────────

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	f := &fakeServer{replies: []audioResponse{
		{Audio: pcmChunk(1, 2)},
		{Audio: pcmChunk(3)},
		{IsFinal: true},
	}}
	base := f.start(t)
	s, err := New("key", "voice-1", WithBaseURL(base))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := s.Synthesize(context.Background(), "Hello there. How are you?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := clip.Samples; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("samples = %v, want [1 2 3]", got)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %d/%d, want 16000/1", clip.SampleRate, clip.Channels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path != "/v1/text-to-speech/voice-1/stream-input" {
		t.Errorf("path = %q", f.path)
	}
	if f.query != "model_id=eleven_flash_v2_5" {
		t.Errorf("query = %q", f.query)
	}
	// BOI, two sentences, flush.
	if len(f.messages) != 4 {
		t.Fatalf("messages = %d, want 4: %v", len(f.messages), f.messages)
	}
	if f.messages[0]["xi_api_key"] != "key" || f.messages[0]["output_format"] != "pcm_16000" {
		t.Errorf("BOI = %v", f.messages[0])
	}
	if f.messages[1]["text"] != "Hello there. " {
		t.Errorf("first fragment = %q", f.messages[1]["text"])
	}
	if _, ok := f.messages[1]["voice_settings"]; !ok {
		t.Error("first fragment should carry voice_settings")
	}
	if _, ok := f.messages[2]["voice_settings"]; ok {
		t.Error("second fragment should not carry voice_settings")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	f := &fakeServer{replies: []audioResponse{{Error: "quota_exceeded", Message: "out of credits"}}}
	s, err := New("key", "voice-1", WithBaseURL(f.start(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = s.Synthesize(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want quota_exceeded", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	s, err := New("key", "voice-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_DialFailure(t *testing.T) {
	t.Parallel()

	s, err := New("key", "voice-1", WithBaseURL("ws://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected dial error")
	}
}

// ── Helpers under test ────────────────────────────────────────────────────────

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	t.Parallel()

	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("flush = %s, want {\"text\":\"\"}", data)
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"Pi is 3.14 roughly. Yes.", []string{"Pi is 3.14 roughly.", "Yes."}},
		{"  trailing   ", []string{"trailing"}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Options(t *testing.T) {
	t.Parallel()

	if _, err := New("", "v"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty voice")
	}
	if _, err := New("k", "v", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
	s, err := New("k", "v", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.model != "eleven_multilingual_v2" {
		t.Errorf("model = %q, want eleven_multilingual_v2", s.model)
	}
	if s.sampleRate != 24000 {
		t.Errorf("sample rate = %d, want 24000", s.sampleRate)
	}
	if got := buildURLForVoice(defaultBaseURL, "abc", "m"); got != "wss://api.elevenlabs.io/v1/text-to-speech/abc/stream-input?model_id=m" {
		t.Errorf("url = %q", got)
	}
}
