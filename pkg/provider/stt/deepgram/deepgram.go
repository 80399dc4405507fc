// Package deepgram provides a speech-to-text recognizer backed by the
// Deepgram pre-recorded audio API.
//
// The utterance is sent as raw linear16 PCM in the request body; encoding,
// sample rate and channel count travel as query parameters so no container
// is needed.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

const (
	providerName     = "deepgram"
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring the Deepgram Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

// WithLanguage sets the language used when the request has none.
func WithLanguage(language string) Option {
	return func(r *Recognizer) { r.language = language }
}

// WithKeyterms biases recognition towards the given terms, e.g. the
// assistant's name.
func WithKeyterms(terms ...string) Option {
	return func(r *Recognizer) { r.keyterms = append(r.keyterms, terms...) }
}

// WithEndpoint overrides the API endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) { r.client = c }
}

// Recognizer implements [stt.Recognizer] backed by Deepgram.
type Recognizer struct {
	apiKey   string
	model    string
	language string
	keyterms []string
	endpoint string
	client   *http.Client
}

// New creates a new Deepgram Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// listenResponse is the subset of the pre-recorded response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	if req.SampleRate <= 0 || req.Channels <= 0 {
		return stt.Result{}, &stt.Error{
			Kind:     stt.KindMalformed,
			Provider: providerName,
			Err:      fmt.Errorf("invalid format %dHz/%dch", req.SampleRate, req.Channels),
		}
	}
	u, err := r.buildURL(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.Audio))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+r.apiKey)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}
		return stt.Result{}, stt.Transient(providerName, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, stt.StatusError(providerName, resp.StatusCode, string(data))
	}

	var out listenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}
	alt := out.Results.Channels[0].Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text, Confidence: alt.Confidence, Provider: providerName}, nil
}

// buildURL constructs the listen URL for req.
func (r *Recognizer) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}
	lang := req.Language
	if lang == "" {
		lang = r.language
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(req.SampleRate))
	q.Set("channels", strconv.Itoa(req.Channels))
	q.Set("smart_format", "true")
	for _, term := range r.keyterms {
		q.Add("keyterm", term)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
