// Package azure provides a text-to-speech synthesizer backed by the Azure
// Speech REST API.
//
// The reply is wrapped in SSML with the configured neural voice and speaking
// style, and the service is asked for headerless 16kHz mono 16-bit PCM so the
// response body can be played without decoding.
package azure

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/azure"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

const (
	defaultVoice  = "en-US-DavisNeural"
	outputFormat  = "raw-16khz-16bit-mono-pcm"
	outputRate    = 16000
	userAgent     = "chippy"
	maxAudioBytes = 32 << 20
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements [tts.Synthesizer] against Azure Speech.
type Synthesizer struct {
	tokens   *azure.TokenSource
	endpoint string
	voice    string
	style    string
	rate     string
	pitch    string
	client   *http.Client
}

// Option is a functional option for [New].
type Option func(*Synthesizer)

// WithVoice sets the neural voice name. Defaults to "en-US-DavisNeural".
func WithVoice(name string) Option {
	return func(s *Synthesizer) { s.voice = name }
}

// WithStyle sets the mstts:express-as speaking style, e.g. "cheerful".
// Empty disables the element.
func WithStyle(style string) Option {
	return func(s *Synthesizer) { s.style = style }
}

// WithProsody sets the prosody rate and pitch, e.g. "1.05" and "+10%".
func WithProsody(rate, pitch string) Option {
	return func(s *Synthesizer) { s.rate, s.pitch = rate, pitch }
}

// WithEndpoint overrides the synthesis endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(s *Synthesizer) { s.endpoint = endpoint }
}

// WithTokenSource shares an existing token cache.
func WithTokenSource(ts *azure.TokenSource) Option {
	return func(s *Synthesizer) { s.tokens = ts }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.client = c }
}

// New creates a Synthesizer for the subscription key in region.
func New(key, region string, opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		voice:  defaultVoice,
		style:  "cheerful",
		rate:   "1.05",
		pitch:  "+10%",
		client: &http.Client{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.tokens == nil {
		ts, err := azure.NewTokenSource(key, region)
		if err != nil {
			return nil, fmt.Errorf("azure tts: %w", err)
		}
		s.tokens = ts
	}
	if s.endpoint == "" {
		if region == "" {
			return nil, errors.New("azure tts: region must not be empty")
		}
		s.endpoint = azure.SynthesisURL(region)
	}
	return s, nil
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}
	ssml, err := s.ssml(text)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("azure tts: build ssml: %w", err)
	}

	for try := 0; ; try++ {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("azure tts: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(ssml))
		if err != nil {
			return audio.Clip{}, fmt.Errorf("azure tts: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/ssml+xml")
		req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
		req.Header.Set("User-Agent", userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("azure tts: %w", err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
		resp.Body.Close()
		if err != nil {
			return audio.Clip{}, fmt.Errorf("azure tts: read audio: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && try == 0 {
			s.tokens.Invalidate()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return audio.Clip{}, fmt.Errorf("azure tts: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return audio.Clip{
			Samples:    audio.PCMToSamples(body),
			SampleRate: outputRate,
			Channels:   1,
		}, nil
	}
}

// ssml renders the request document. text is XML-escaped.
func (s *Synthesizer) ssml(text string) ([]byte, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return nil, err
	}
	lang := "en-US"
	if i := strings.Index(s.voice, "-"); i > 0 {
		if j := strings.Index(s.voice[i+1:], "-"); j > 0 {
			lang = s.voice[:i+1+j]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="http://www.w3.org/2001/mstts" xml:lang="%s">`, lang)
	fmt.Fprintf(&b, `<voice name="%s">`, s.voice)
	inner := escaped.String()
	if s.style != "" {
		inner = fmt.Sprintf(`<mstts:express-as style="%s">%s</mstts:express-as>`, s.style, inner)
	}
	if s.rate != "" || s.pitch != "" {
		attrs := ""
		if s.rate != "" {
			attrs += fmt.Sprintf(` rate="%s"`, s.rate)
		}
		if s.pitch != "" {
			attrs += fmt.Sprintf(` pitch="%s"`, s.pitch)
		}
		inner = fmt.Sprintf(`<prosody%s>%s</prosody>`, attrs, inner)
	}
	b.WriteString(inner)
	b.WriteString(`</voice></speak>`)
	return []byte(b.String()), nil
}
