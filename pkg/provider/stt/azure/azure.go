// Package azure provides a speech-to-text recognizer backed by the Azure
// Speech short-audio REST API.
//
// Each call encodes the utterance as a WAV file and POSTs it to the regional
// recognition endpoint with a bearer token from [azure.TokenSource]. A 401
// response invalidates the token and the request is repeated once with a
// fresh one inside the same call.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/azure"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

const providerName = "azure"

var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements [stt.Recognizer] against Azure Speech.
type Recognizer struct {
	tokens    *azure.TokenSource
	endpoint  string
	language  string
	profanity string
	client    *http.Client
}

// Option is a functional option for [New].
type Option func(*Recognizer)

// WithEndpoint overrides the recognition endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// WithTokenSource shares an existing token cache, e.g. with the Azure
// synthesizer.
func WithTokenSource(ts *azure.TokenSource) Option {
	return func(r *Recognizer) { r.tokens = ts }
}

// WithLanguage sets the default recognition language. Defaults to "en-US".
// A language set on the request takes precedence.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithProfanity sets the profanity mode ("masked", "removed" or "raw").
// Defaults to "masked".
func WithProfanity(mode string) Option {
	return func(r *Recognizer) { r.profanity = mode }
}

// WithHTTPClient sets the HTTP client used for recognition calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) { r.client = c }
}

// New creates a Recognizer for the subscription key in region. When a token
// source is supplied with [WithTokenSource], key may be empty.
func New(key, region string, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{
		language:  "en-US",
		profanity: "masked",
		client:    &http.Client{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.tokens == nil {
		ts, err := azure.NewTokenSource(key, region)
		if err != nil {
			return nil, fmt.Errorf("azure stt: %w", err)
		}
		r.tokens = ts
	}
	if r.endpoint == "" {
		if region == "" {
			return nil, errors.New("azure stt: region must not be empty")
		}
		r.endpoint = azure.RecognitionURL(region)
	}
	return r, nil
}

// recognitionResponse is the detailed-format response body.
type recognitionResponse struct {
	RecognitionStatus string  `json:"RecognitionStatus"`
	DisplayText       string  `json:"DisplayText"`
	Offset            int64   `json:"Offset"`
	Duration          int64   `json:"Duration"`
	NBest             []nbest `json:"NBest"`
}

type nbest struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	Display    string  `json:"Display"`
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	wav, err := audio.EncodeWAV(audio.PCMToSamples(req.Audio), req.SampleRate, req.Channels)
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindMalformed, Provider: providerName, Err: err}
	}
	target, err := r.requestURL(req.Language)
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindMalformed, Provider: providerName, Err: err}
	}

	for try := 0; ; try++ {
		token, err := r.tokens.Token(ctx)
		if err != nil {
			return stt.Result{}, tokenError(ctx, err)
		}

		resp, err := r.post(ctx, target, token, req.SampleRate, wav)
		if err != nil {
			if ctx.Err() != nil {
				return stt.Result{}, ctx.Err()
			}
			return stt.Result{}, stt.Transient(providerName, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return stt.Result{}, stt.Transient(providerName, fmt.Errorf("read body: %w", readErr))
		}

		if resp.StatusCode == http.StatusUnauthorized && try == 0 {
			r.tokens.Invalidate()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return stt.Result{}, stt.StatusError(providerName, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return parseResponse(body)
	}
}

func (r *Recognizer) requestURL(lang string) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if lang == "" {
		lang = r.language
	}
	q := u.Query()
	q.Set("language", lang)
	q.Set("format", "detailed")
	q.Set("profanity", r.profanity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Recognizer) post(ctx context.Context, target, token string, rate int, wav []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wav))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", rate))
	httpReq.Header.Set("Accept", "application/json")
	return r.client.Do(httpReq)
}

func parseResponse(body []byte) (stt.Result, error) {
	var rr recognitionResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("decode response: %w", err))
	}

	switch rr.RecognitionStatus {
	case "Success":
		text := strings.TrimSpace(rr.DisplayText)
		conf := 0.0
		if len(rr.NBest) > 0 {
			best := rr.NBest[0]
			for _, n := range rr.NBest[1:] {
				if n.Confidence > best.Confidence {
					best = n
				}
			}
			conf = best.Confidence
			if text == "" {
				text = strings.TrimSpace(best.Display)
			}
		}
		if text == "" {
			return stt.Result{}, stt.ErrNoSpeech
		}
		return stt.Result{Text: text, Confidence: conf, Provider: providerName}, nil

	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return stt.Result{}, stt.ErrNoSpeech

	default:
		return stt.Result{}, stt.Transient(providerName, fmt.Errorf("recognition status %q", rr.RecognitionStatus))
	}
}

// tokenError classifies a token endpoint failure.
func tokenError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se *azure.StatusError
	if errors.As(err, &se) {
		return stt.StatusError(providerName, se.StatusCode, se.Body)
	}
	return stt.Transient(providerName, err)
}
