// Package openai provides a Responder backed by the OpenAI chat completions
// API, or any server that speaks the same protocol.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

var _ responder.Responder = (*Responder)(nil)

// Responder implements [responder.Responder] with a single-turn chat
// completion under the tutor system prompt.
type Responder struct {
	client oai.Client
	model  string
	cfg    config
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	systemPrompt string
	maxTokens    int
	temperature  float64
	extra        []option.RequestOption
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithSystemPrompt replaces [responder.DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.systemPrompt = prompt }
}

// WithMaxTokens caps the reply length. Defaults to 200.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Defaults to 0.7.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

// New constructs a Responder. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Responder, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := config{
		systemPrompt: responder.DefaultSystemPrompt,
		maxTokens:    200,
		temperature:  0.7,
	}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &Responder{client: oai.NewClient(reqOpts...), model: model, cfg: cfg}, nil
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, req responder.Request) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, r.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("openai: empty reply")
	}
	return reply, nil
}

// buildParams converts a learner turn into OpenAI SDK params.
func (r *Responder) buildParams(req responder.Request) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if r.cfg.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(r.cfg.systemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.Text))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.model),
		Messages: messages,
	}
	if r.cfg.temperature != 0 {
		params.Temperature = param.NewOpt(r.cfg.temperature)
	}
	if r.cfg.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(r.cfg.maxTokens))
	}
	if req.SessionID != "" {
		params.User = param.NewOpt(req.SessionID)
	}
	return params
}
