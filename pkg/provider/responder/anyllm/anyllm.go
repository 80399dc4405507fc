// Package anyllm provides a Responder backed by any-llm-go, which puts
// several chat-model vendors behind one completion API.
//
// Usage:
//
//	r, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", nil, anyllmlib.WithAPIKey("sk-ant-..."))
//	r, err := anyllm.New("ollama", "llama3.2", nil, anyllmlib.WithBaseURL("http://localhost:11434"))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

// Supported lists the backend names accepted by [New].
var Supported = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

var _ responder.Responder = (*Responder)(nil)

// Settings shapes the completion request. The zero value uses
// [responder.DefaultSystemPrompt], 200 tokens and temperature 0.7.
type Settings struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Responder implements [responder.Responder] on top of an any-llm-go
// backend.
type Responder struct {
	backend  anyllmlib.Provider
	model    string
	settings Settings
}

// New creates a Responder for the named backend. settings may be nil. opts
// are any-llm-go options such as anyllmlib.WithAPIKey and
// anyllmlib.WithBaseURL.
func New(providerName, model string, settings *Settings, opts ...anyllmlib.Option) (*Responder, error) {
	if providerName == "" {
		return nil, errors.New("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Responder{backend: backend, model: model, settings: withDefaults(settings)}, nil
}

func withDefaults(s *Settings) Settings {
	out := Settings{
		SystemPrompt: responder.DefaultSystemPrompt,
		MaxTokens:    200,
		Temperature:  0.7,
	}
	if s == nil {
		return out
	}
	if s.SystemPrompt != "" {
		out.SystemPrompt = s.SystemPrompt
	}
	if s.MaxTokens > 0 {
		out.MaxTokens = s.MaxTokens
	}
	if s.Temperature > 0 {
		out.Temperature = s.Temperature
	}
	return out
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", providerName, strings.Join(Supported, ", "))
	}
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, req responder.Request) (string, error) {
	resp, err := r.backend.Completion(ctx, r.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("anyllm: empty choices in response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if reply == "" {
		return "", errors.New("anyllm: empty reply")
	}
	return reply, nil
}

func (r *Responder) buildParams(req responder.Request) anyllmlib.CompletionParams {
	messages := []anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: r.settings.SystemPrompt},
		{Role: "user", Content: req.Text},
	}
	temp := r.settings.Temperature
	maxTokens := r.settings.MaxTokens
	return anyllmlib.CompletionParams{
		Model:       r.model,
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}
