// Package elevenlabs provides an ElevenLabs-backed synthesizer using the
// ElevenLabs streaming WebSocket API. It implements [tts.Synthesizer].
//
// The reply is split into sentences which are written to the socket one by
// one, followed by the empty flush message. PCM chunks arriving on the socket
// are collected into a single [audio.Clip].
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/coder/websocket"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "%s/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring the ElevenLabs Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		s.model = model
	}
}

// WithOutputFormat sets the audio output format. Only the raw PCM formats
// ("pcm_16000", "pcm_22050", "pcm_24000", "pcm_44100") are accepted.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) {
		s.outputFormat = format
	}
}

// WithBaseURL overrides the WebSocket origin, e.g. "ws://127.0.0.1:1234".
func WithBaseURL(base string) Option {
	return func(s *Synthesizer) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithVoiceSettings sets the stability and similarity boost sent with the
// first fragment.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(s *Synthesizer) {
		s.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Synthesizer struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	sampleRate   int
	baseURL      string
	settings     voiceSettings
}

// New creates a new ElevenLabs Synthesizer speaking with voiceID. apiKey and
// voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(s)
	}
	rate, err := pcmRate(s.outputFormat)
	if err != nil {
		return nil, err
	}
	s.sampleRate = rate
	return s, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	fragments := splitSentences(text)
	if len(fragments) == 0 {
		return audio.Clip{}, tts.ErrEmptyText
	}

	chunks, errc, err := s.stream(ctx, fragments)
	if err != nil {
		return audio.Clip{}, err
	}

	var pcm []byte
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errc; err != nil {
					return audio.Clip{}, err
				}
				return audio.Clip{
					Samples:    audio.PCMToSamples(pcm),
					SampleRate: s.sampleRate,
					Channels:   1,
				}, nil
			}
			pcm = append(pcm, chunk...)
		case <-ctx.Done():
			go audio.Drain(chunks)
			return audio.Clip{}, ctx.Err()
		}
	}
}

// stream opens a WebSocket to ElevenLabs, writes fragments and returns a
// channel emitting raw PCM chunks. The chunk channel is closed when the final
// message arrives, the socket fails or ctx is cancelled; errc then yields the
// stream's terminal error (nil on success) exactly once.
func (s *Synthesizer) stream(ctx context.Context, fragments []string) (<-chan []byte, <-chan error, error) {
	conn, _, err := websocket.Dial(ctx, buildURLForVoice(s.baseURL, s.voiceID, s.model), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: &s.settings,
		XiAPIKey:      s.apiKey,
		OutputFormat:  s.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(audioCh)

		readErr := make(chan error, 1)
		go func() {
			readErr <- s.read(ctx, conn, audioCh)
		}()

		if err := s.write(ctx, conn, fragments); err != nil {
			conn.Close(websocket.StatusInternalError, "write failed")
			<-readErr
			errc <- err
			return
		}
		err := <-readErr
		conn.Close(websocket.StatusNormalClosure, "done")
		errc <- err
	}()

	return audioCh, errc, nil
}

// write sends every fragment followed by the flush message.
func (s *Synthesizer) write(ctx context.Context, conn *websocket.Conn, fragments []string) error {
	vs := &s.settings
	for _, fragment := range fragments {
		msgBytes, _ := buildWSMessage(fragment+" ", vs)
		// Only the first fragment carries voice settings.
		vs = nil
		if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
			return fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}
	flushBytes, _ := buildWSMessage("", nil)
	if err := conn.Write(ctx, websocket.MessageText, flushBytes); err != nil {
		return fmt.Errorf("elevenlabs: send flush: %w", err)
	}
	return nil
}

// read forwards decoded PCM until the final message arrives.
func (s *Synthesizer) read(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if resp.IsFinal {
			return nil
		}
	}
}

// ---- helpers ----

// buildWSMessage constructs the JSON text payload for a single text fragment.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// buildURLForVoice constructs the WebSocket URL for a given voice and model.
func buildURLForVoice(base, voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, base, voiceID, model)
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	r, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(r)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has no valid sample rate", format)
	}
	return rate, nil
}

// splitSentences splits text after sentence-ending punctuation followed by
// whitespace. Blank fragments are dropped.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
