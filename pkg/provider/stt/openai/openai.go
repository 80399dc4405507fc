// Package openai provides a speech-to-text recognizer backed by the OpenAI
// audio transcription API, or any server that implements the same
// endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

const providerName = "openai"

// DefaultModel is used when no model is configured.
const DefaultModel = oai.AudioModelWhisper1

var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements [stt.Recognizer] using audio transcriptions.
type Recognizer struct {
	client oai.Client
	model  oai.AudioModel
	prompt string
}

type config struct {
	baseURL string
	timeout time.Duration
	prompt  string
	extra   []option.RequestOption
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPrompt sets a transcription prompt, typically vocabulary the model
// should prefer such as the assistant's name.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

// New constructs a Recognizer. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	m := oai.AudioModel(model)
	if model == "" {
		m = DefaultModel
	}
	return &Recognizer{client: oai.NewClient(reqOpts...), model: m, prompt: cfg.prompt}, nil
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	wav, err := audio.EncodeWAV(audio.PCMToSamples(req.Audio), req.SampleRate, req.Channels)
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindMalformed, Provider: providerName, Err: err}
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: r.model,
	}
	if lang := isoLanguage(req.Language); lang != "" {
		params.Language = oai.String(lang)
	}
	if r.prompt != "" {
		params.Prompt = oai.String(r.prompt)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, classify(ctx, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text, Provider: providerName}, nil
}

// classify maps SDK errors onto the recognizer taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &stt.Error{
			Kind:       stt.KindForStatus(apiErr.StatusCode),
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Err:        fmt.Errorf("transcription: %w", err),
		}
	}
	return stt.Transient(providerName, err)
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code the API accepts.
func isoLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
