// Package config provides the configuration schema, loader, and provider
// registry for the chippy voice front end.
//
// A [Config] is built once at startup by [Load] and is never mutated
// afterwards. Components receive the section they need by value through
// their constructors.
package config

import (
	"time"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	WakeWord  WakeWordConfig  `yaml:"wake_word"`
	VAD       VADConfig       `yaml:"vad"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds the diagnostics HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}

// AudioConfig selects the capture device and frame format.
type AudioConfig struct {
	// DeviceIndex selects the input device; -1 uses the host default.
	DeviceIndex int `yaml:"device_index"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the number of samples per channel in one frame.
	FrameSize int `yaml:"frame_size"`

	// QueueFrames bounds the capture hand-off queue. Frames beyond it are
	// dropped.
	QueueFrames int `yaml:"queue_frames"`
}

// Format returns the frame format described by the section.
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, Channels: a.Channels, FrameSize: a.FrameSize}
}

// WakeWordConfig configures the local keyword spotter.
type WakeWordConfig struct {
	// Sensitivity in [0, 1]. Higher values accept more triggers, including
	// false ones.
	Sensitivity float64 `yaml:"sensitivity"`

	// Phrase is the activation phrase. It is also stripped from the front of
	// recognized text.
	Phrase string `yaml:"phrase"`

	Model WakeWordModel `yaml:"model"`
}

// WakeWordModel lists the sherpa-onnx keyword spotter assets.
type WakeWordModel struct {
	Encoder      string `yaml:"encoder"`
	Decoder      string `yaml:"decoder"`
	Joiner       string `yaml:"joiner"`
	Tokens       string `yaml:"tokens"`
	KeywordsFile string `yaml:"keywords_file"`
	NumThreads   int    `yaml:"num_threads"`
	Provider     string `yaml:"provider"`
}

// VADConfig configures speech segmentation.
type VADConfig struct {
	// SilenceThreshold is the normalised RMS at or below which a frame is
	// silent.
	SilenceThreshold  float64       `yaml:"silence_threshold"`
	SilenceDuration   time.Duration `yaml:"silence_duration"`
	MinSpeechDuration time.Duration `yaml:"min_speech_duration"`
	PreRoll           time.Duration `yaml:"pre_roll"`
	MaxDuration       time.Duration `yaml:"max_duration"`

	// ArmTimeout is how long to wait for speech after the wake word.
	ArmTimeout time.Duration `yaml:"arm_timeout"`
}

// DispatchConfig is the recognition retry policy.
type DispatchConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Jitter         float64       `yaml:"jitter"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// Language is the BCP-47 tag sent to the recognizer.
	Language string `yaml:"language"`
}

// SessionConfig holds per-activation settings.
type SessionConfig struct {
	IDPrefix       string        `yaml:"id_prefix"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	HandoffTimeout time.Duration `yaml:"handoff_timeout"`

	// CaptureDir, when set, receives every sealed utterance as
	// <session_id>.wav.
	CaptureDir string `yaml:"capture_dir"`

	// FallbackReply is spoken when response generation fails.
	FallbackReply string `yaml:"fallback_reply"`

	LearnerID string `yaml:"learner_id"`
}

// ProvidersConfig declares which provider implementation to use for each
// stage. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when STT fails with a transient error
	// or its circuit breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Responder generates the tutor reply. Empty uses the echo responder.
	Responder ProviderEntry `yaml:"responder"`

	// TTS synthesizes the reply. Empty runs text-only.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "azure", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3", "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., "region", "voice", "language").
	Options map[string]any `yaml:"options"`
}

// OptString returns the string option key, or "" if it is absent or not a
// string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option key and whether it was present.
func (e ProviderEntry) OptFloat(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// OptStrings returns a list option such as deepgram keyterms. A single
// string is returned as a one-element list.
func (e ProviderEntry) OptStrings(key string) []string {
	switch v := e.Options[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Default returns the configuration used for any key the YAML file leaves
// out.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			DeviceIndex: -1,
			SampleRate:  16000,
			Channels:    1,
			FrameSize:   1024,
			QueueFrames: 32,
		},
		WakeWord: WakeWordConfig{
			Sensitivity: 0.5,
			Phrase:      "hello chippy",
			Model:       WakeWordModel{NumThreads: 1, Provider: "cpu"},
		},
		VAD: VADConfig{
			SilenceThreshold:  0.015,
			SilenceDuration:   2 * time.Second,
			MinSpeechDuration: 500 * time.Millisecond,
			PreRoll:           300 * time.Millisecond,
			MaxDuration:       15 * time.Second,
			ArmTimeout:        8 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:    3,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       4 * time.Second,
			Jitter:         0.2,
			AttemptTimeout: 15 * time.Second,
			Language:       "en-US",
		},
		Session: SessionConfig{
			IDPrefix:       "CHIPPY_",
			ShutdownGrace:  3 * time.Second,
			HandoffTimeout: 30 * time.Second,
			FallbackReply:  "Sorry, I had trouble thinking of an answer. Could you ask me again?",
			LearnerID:      "pi_student",
		},
	}
}
