// Package sherpa provides a [wakeword.Scorer] backed by the sherpa-onnx
// keyword spotter (CGO). The model files (a streaming transducer encoder,
// decoder, joiner and tokens table) and a keywords file listing the wake
// phrase in token form must be present on disk.
package sherpa

import (
	"errors"
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/chippy-tutor/chippy/internal/wakeword"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

var _ wakeword.Scorer = (*Scorer)(nil)

// featureDim is the fbank feature dimension used by the published
// sherpa-onnx keyword spotting models.
const featureDim = 80

// ModelConfig locates the keyword spotting model on disk.
type ModelConfig struct {
	Encoder      string
	Decoder      string
	Joiner       string
	Tokens       string
	KeywordsFile string

	// NumThreads for onnxruntime inference. Defaults to 1.
	NumThreads int

	// Provider is the onnxruntime execution provider ("cpu", "cuda", ...).
	// Defaults to "cpu".
	Provider string
}

func (c ModelConfig) check() error {
	var errs []error
	for name, path := range map[string]string{
		"encoder":       c.Encoder,
		"decoder":       c.Decoder,
		"joiner":        c.Joiner,
		"tokens":        c.Tokens,
		"keywords_file": c.KeywordsFile,
	} {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s path is empty", name))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Scorer runs the sherpa-onnx keyword spotter frame by frame. It scores 1.0
// on the frame where the spotter reports a keyword and 0 otherwise; the
// spotter's own keyword threshold is derived from the detector sensitivity.
type Scorer struct {
	mu      sync.Mutex
	spotter *sherpa.KeywordSpotter
	stream  *sherpa.OnlineStream
	closed  bool

	// keyword is the last spotted keyword, kept for logging.
	keyword string
}

// KeywordsThreshold maps a detector sensitivity in [0, 1] onto the spotter's
// keywords_threshold, where lower values trigger more readily. Sensitivity
// 0.5 maps to the spotter default of 0.25.
func KeywordsThreshold(sensitivity float64) float32 {
	t := 0.5 * (1 - sensitivity)
	return float32(min(max(t, 0.05), 0.95))
}

// New loads the keyword spotting model. Any failure wraps
// [wakeword.ErrModelLoad].
func New(sampleRate int, sensitivity float64, mc ModelConfig) (*Scorer, error) {
	if err := mc.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", wakeword.ErrModelLoad, err)
	}
	if mc.NumThreads <= 0 {
		mc.NumThreads = 1
	}
	if mc.Provider == "" {
		mc.Provider = "cpu"
	}

	cfg := sherpa.KeywordSpotterConfig{}
	cfg.FeatConfig.SampleRate = sampleRate
	cfg.FeatConfig.FeatureDim = featureDim
	cfg.ModelConfig.Transducer.Encoder = mc.Encoder
	cfg.ModelConfig.Transducer.Decoder = mc.Decoder
	cfg.ModelConfig.Transducer.Joiner = mc.Joiner
	cfg.ModelConfig.Tokens = mc.Tokens
	cfg.ModelConfig.NumThreads = mc.NumThreads
	cfg.ModelConfig.Provider = mc.Provider
	cfg.KeywordsFile = mc.KeywordsFile
	cfg.KeywordsThreshold = KeywordsThreshold(sensitivity)
	cfg.KeywordsScore = 1.0

	spotter := sherpa.NewKeywordSpotter(&cfg)
	if spotter == nil {
		return nil, fmt.Errorf("%w: sherpa-onnx rejected model %q", wakeword.ErrModelLoad, mc.Encoder)
	}
	stream := sherpa.NewKeywordStream(spotter)
	if stream == nil {
		sherpa.DeleteKeywordSpotter(spotter)
		return nil, fmt.Errorf("%w: create keyword stream", wakeword.ErrModelLoad)
	}
	return &Scorer{spotter: spotter, stream: stream}, nil
}

// Score implements [wakeword.Scorer].
func (s *Scorer) Score(f audio.Frame) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	samples := f.Samples
	if f.Channels > 1 {
		samples = audio.DownmixToMono(samples, f.Channels)
	}
	s.stream.AcceptWaveform(f.SampleRate, audio.ToFloat32(samples))

	var score float64
	for s.spotter.IsReady(s.stream) {
		s.spotter.Decode(s.stream)
		if kw := s.spotter.GetResult(s.stream).Keyword; kw != "" {
			s.keyword = kw
			score = 1
			s.spotter.Reset(s.stream)
		}
	}
	return score
}

// Keyword returns the most recently spotted keyword.
func (s *Scorer) Keyword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyword
}

// Reset implements [wakeword.Scorer].
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.spotter.Reset(s.stream)
}

// Close releases the native spotter and stream. Safe to call more than once.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sherpa.DeleteOnlineStream(s.stream)
	sherpa.DeleteKeywordSpotter(s.spotter)
	return nil
}
