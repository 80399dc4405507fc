package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"azure", "whisper", "whisper-native", "openai", "deepgram"},
	"responder": {"flow", "openai", "echo", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":       {"azure", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], expands
// environment references in API keys and validates the result. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(&cfg.Providers)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets replaces ${VAR} and $VAR references in api_key fields with
// the environment value.
func expandSecrets(p *ProvidersConfig) {
	p.STT.APIKey = os.ExpandEnv(p.STT.APIKey)
	p.Responder.APIKey = os.ExpandEnv(p.Responder.APIKey)
	p.TTS.APIKey = os.ExpandEnv(p.TTS.APIKey)
	for i := range p.STTFallbacks {
		p.STTFallbacks[i].APIKey = os.ExpandEnv(p.STTFallbacks[i].APIKey)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	a := cfg.Audio
	if a.DeviceIndex < -1 {
		errs = append(errs, fmt.Errorf("audio.device_index %d is invalid; use -1 for the default device", a.DeviceIndex))
	}
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", a.SampleRate))
	}
	if a.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", a.Channels))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", a.FrameSize))
	}
	if a.QueueFrames < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_frames must not be negative, got %d", a.QueueFrames))
	}

	// Wake word
	if s := cfg.WakeWord.Sensitivity; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("wake_word.sensitivity %.2f is out of range [0, 1]", s))
	}
	if strings.TrimSpace(cfg.WakeWord.Phrase) == "" {
		slog.Warn("wake_word.phrase is empty; recognized text will not be stripped")
	}

	// VAD
	v := cfg.VAD
	if v.SilenceThreshold < 0 || v.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.3f is out of range [0, 1]", v.SilenceThreshold))
	}
	if v.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_duration must be positive, got %s", v.SilenceDuration))
	}
	for name, d := range map[string]int64{
		"min_speech_duration": int64(v.MinSpeechDuration),
		"pre_roll":            int64(v.PreRoll),
		"max_duration":        int64(v.MaxDuration),
		"arm_timeout":         int64(v.ArmTimeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("vad.%s must not be negative", name))
		}
	}
	if v.MaxDuration > 0 && v.MaxDuration < v.MinSpeechDuration {
		errs = append(errs, fmt.Errorf("vad.max_duration %s is shorter than vad.min_speech_duration %s", v.MaxDuration, v.MinSpeechDuration))
	}

	// Dispatch
	d := cfg.Dispatch
	if d.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("dispatch.max_attempts must be at least 1, got %d", d.MaxAttempts))
	}
	if d.BaseDelay < 0 || d.MaxDelay < 0 || d.AttemptTimeout < 0 {
		errs = append(errs, errors.New("dispatch delays must not be negative"))
	}
	if d.MaxDelay > 0 && d.BaseDelay > d.MaxDelay {
		errs = append(errs, fmt.Errorf("dispatch.base_delay %s exceeds dispatch.max_delay %s", d.BaseDelay, d.MaxDelay))
	}
	if d.Jitter < 0 || d.Jitter > 1 {
		errs = append(errs, fmt.Errorf("dispatch.jitter %.2f is out of range [0, 1]", d.Jitter))
	}

	// Session
	if cfg.Session.ShutdownGrace < 0 || cfg.Session.HandoffTimeout < 0 {
		errs = append(errs, errors.New("session timeouts must not be negative"))
	}

	// Providers. A missing providers.stt is reported by the pipeline, so
	// device and microphone checks can run without one.
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("responder", cfg.Providers.Responder.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will be logged but not spoken")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
