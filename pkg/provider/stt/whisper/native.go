// This file contains the NativeRecognizer implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

var _ stt.Recognizer = (*NativeRecognizer)(nil)

// NativeRecognizer implements [stt.Recognizer] using whisper.cpp Go bindings
// (CGO). The model is loaded once; every call gets its own whisper context.
type NativeRecognizer struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeRecognizer.
type NativeOption func(*NativeRecognizer)

// WithNativeLanguage sets the language used when the request has none.
// Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(r *NativeRecognizer) { r.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the recognizer is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeRecognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	r := &NativeRecognizer{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *NativeRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize implements [stt.Recognizer]. Inference is not interruptible;
// ctx is checked before and after it.
func (r *NativeRecognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	if req.SampleRate <= 0 || req.Channels <= 0 {
		return stt.Result{}, &stt.Error{
			Kind:     stt.KindMalformed,
			Provider: providerName,
			Err:      fmt.Errorf("invalid format %dHz/%dch", req.SampleRate, req.Channels),
		}
	}

	text, err := r.infer(modelInput(req), languageCode(req.Language, r.language))
	if err != nil {
		return stt.Result{}, stt.Transient(providerName, err)
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	text = cleanTranscript(text)
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text, Provider: providerName}, nil
}

// modelInput reshapes the request to 16 kHz mono float32.
func modelInput(req stt.Request) []float32 {
	samples := audio.PCMToSamples(req.Audio)
	samples = audio.DownmixToMono(samples, req.Channels)
	samples = audio.ResampleMono(samples, req.SampleRate, modelSampleRate)
	return audio.ToFloat32(samples)
}

// infer runs whisper.cpp on samples using a fresh context and returns the
// concatenated segment text.
func (r *NativeRecognizer) infer(samples []float32, language string) (string, error) {
	// Contexts are not thread-safe; the model is.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
