// Package whisper provides speech-to-text recognizers backed by whisper.cpp.
//
// [Recognizer] talks to a running whisper-server binary, which exposes
// POST /inference and accepts a WAV upload as multipart/form-data.
// [NativeRecognizer] links whisper.cpp directly through its CGO bindings and
// needs no server at all.
//
// whisper.cpp is a batch engine, which suits the one-shot recognition model:
// the sealed utterance is uploaded whole and the complete transcript comes
// back in one response.
//
// Usage:
//
//	r, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := r.Recognize(ctx, stt.Request{Audio: pcm, SampleRate: 16000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

const (
	providerName    = "whisper"
	defaultLanguage = "en"

	// whisper.cpp decodes 16 kHz mono only.
	modelSampleRate = 16000
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

// WithLanguage sets the language sent to the server when the request has
// none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithHTTPClient sets the HTTP client. The default times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) { r.httpClient = c }
}

// Recognizer implements [stt.Recognizer] backed by a whisper.cpp HTTP
// server.
type Recognizer struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Recognizer for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	wav, err := audio.EncodeWAV(audio.PCMToSamples(req.Audio), req.SampleRate, req.Channels)
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindMalformed, Provider: providerName, Err: err}
	}

	body, contentType, err := r.buildForm(wav, languageCode(req.Language, r.language))
	if err != nil {
		return stt.Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/inference", body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}
		return stt.Result{}, stt.Transient(providerName, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, stt.StatusError(providerName, resp.StatusCode, string(data))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("parse JSON response: %w", err))
	}

	text := cleanTranscript(result.Text)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text, Provider: providerName}, nil
}

// buildForm writes the multipart body for /inference.
func (r *Recognizer) buildForm(wav []byte, language string) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := [][2]string{
		{"response_format", "json"},
		{"language", language},
		{"model", r.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// languageCode reduces a BCP-47 tag such as "en-US" to the two-letter code
// whisper.cpp expects, falling back to def when tag is empty.
func languageCode(tag, def string) string {
	if tag == "" {
		tag = def
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// cleanTranscript trims whitespace and drops whisper's non-speech markers
// such as "[BLANK_AUDIO]" and "(silence)".
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	switch strings.ToUpper(strings.Trim(text, "[]() ")) {
	case "", "BLANK_AUDIO", "SILENCE", "NO SPEECH", "INAUDIBLE":
		return ""
	}
	return text
}
