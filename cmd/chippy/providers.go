package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/chippy-tutor/chippy/internal/app"
	"github.com/chippy-tutor/chippy/internal/config"
	"github.com/chippy-tutor/chippy/internal/resilience"
	"github.com/chippy-tutor/chippy/pkg/audio/portaudio"
	"github.com/chippy-tutor/chippy/pkg/provider/responder"
	"github.com/chippy-tutor/chippy/pkg/provider/responder/anyllm"
	"github.com/chippy-tutor/chippy/pkg/provider/responder/echo"
	"github.com/chippy-tutor/chippy/pkg/provider/responder/flow"
	respopenai "github.com/chippy-tutor/chippy/pkg/provider/responder/openai"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
	sttazure "github.com/chippy-tutor/chippy/pkg/provider/stt/azure"
	"github.com/chippy-tutor/chippy/pkg/provider/stt/deepgram"
	sttopenai "github.com/chippy-tutor/chippy/pkg/provider/stt/openai"
	"github.com/chippy-tutor/chippy/pkg/provider/stt/whisper"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
	ttsazure "github.com/chippy-tutor/chippy/pkg/provider/tts/azure"
	"github.com/chippy-tutor/chippy/pkg/provider/tts/elevenlabs"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from its implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("azure", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []sttazure.Option
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, sttazure.WithLanguage(lang))
		}
		if mode := entry.OptString("profanity"); mode != "" {
			opts = append(opts, sttazure.WithProfanity(mode))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttazure.WithEndpoint(entry.BaseURL))
		}
		return sttazure.New(entry.APIKey, entry.OptString("region"), opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if terms := entry.OptStrings("keyterms"); len(terms) > 0 {
			opts = append(opts, deepgram.WithKeyterms(terms...))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if prompt := entry.OptString("prompt"); prompt != "" {
			opts = append(opts, sttopenai.WithPrompt(prompt))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Responder ─────────────────────────────────────────────────────────────

	reg.RegisterResponder("flow", func(entry config.ProviderEntry) (responder.Responder, error) {
		var opts []flow.Option
		if id := entry.OptString("learner_id"); id != "" {
			opts = append(opts, flow.WithLearnerID(id))
		}
		return flow.New(entry.BaseURL, entry.APIKey, opts...)
	})

	reg.RegisterResponder("openai", func(entry config.ProviderEntry) (responder.Responder, error) {
		var opts []respopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, respopenai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, respopenai.WithOrganization(org))
		}
		if prompt := entry.OptString("system_prompt"); prompt != "" {
			opts = append(opts, respopenai.WithSystemPrompt(prompt))
		}
		if n, ok := entry.OptFloat("max_tokens"); ok {
			opts = append(opts, respopenai.WithMaxTokens(int(n)))
		}
		if t, ok := entry.OptFloat("temperature"); ok {
			opts = append(opts, respopenai.WithTemperature(t))
		}
		return respopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterResponder("echo", func(config.ProviderEntry) (responder.Responder, error) {
		return echo.Responder{}, nil
	})

	// Every other chat backend shares the same shape: optional APIKey and
	// optional BaseURL. openai is served by the dedicated adapter above.
	for _, providerName := range anyllm.Supported {
		if providerName == "openai" {
			continue
		}
		reg.RegisterResponder(providerName, func(entry config.ProviderEntry) (responder.Responder, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			settings := &anyllm.Settings{SystemPrompt: entry.OptString("system_prompt")}
			if n, ok := entry.OptFloat("max_tokens"); ok {
				settings.MaxTokens = int(n)
			}
			if t, ok := entry.OptFloat("temperature"); ok {
				settings.Temperature = t
			}
			return anyllm.New(providerName, entry.Model, settings, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("azure", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []ttsazure.Option
		if voice := entry.OptString("voice"); voice != "" {
			opts = append(opts, ttsazure.WithVoice(voice))
		}
		if style := entry.OptString("style"); style != "" {
			opts = append(opts, ttsazure.WithStyle(style))
		}
		rate, pitch := entry.OptString("rate"), entry.OptString("pitch")
		if rate != "" || pitch != "" {
			opts = append(opts, ttsazure.WithProsody(rate, pitch))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsazure.WithEndpoint(entry.BaseURL))
		}
		return ttsazure.New(entry.APIKey, entry.OptString("region"), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, entry.OptString("voice_id"), opts...)
	})
}

// buildProviders instantiates the configured providers. Recognizer
// fallbacks are chained behind the primary with a circuit breaker each.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	p := &app.Providers{}

	if cfg.Providers.STT.Name == "" {
		return nil, errors.New("providers.stt.name is required")
	}
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	p.STT, p.STTName = primary, cfg.Providers.STT.Name

	if len(cfg.Providers.STTFallbacks) > 0 {
		breaker := resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second}
		fb := resilience.NewRecognizerFallback(primary, cfg.Providers.STT.Name, breaker)
		for _, entry := range cfg.Providers.STTFallbacks {
			r, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("stt fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, r)
		}
		p.STT = fb
		slog.Info("stt fallbacks enabled", "primary", cfg.Providers.STT.Name, "fallbacks", len(cfg.Providers.STTFallbacks))
	}

	if cfg.Providers.Responder.Name != "" {
		r, err := reg.CreateResponder(cfg.Providers.Responder)
		if err != nil {
			return nil, fmt.Errorf("responder: %w", err)
		}
		p.Responder = r
	}

	if cfg.Providers.TTS.Name != "" {
		s, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("tts: %w", err)
		}
		p.TTS = s
		p.Player = portaudio.NewPlayer(outputDevice(cfg.Providers.TTS))
	}

	return p, nil
}

// outputDevice reads the optional output_device index from the TTS options.
func outputDevice(entry config.ProviderEntry) int {
	if n, ok := entry.OptFloat("output_device"); ok {
		return int(n)
	}
	return portaudio.DefaultDevice
}
