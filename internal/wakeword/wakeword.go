// Package wakeword implements the wake-word detector that gates the rest of
// the pipeline.
//
// A [Detector] feeds every captured frame to a [Scorer] (an acoustic keyword
// model such as the sherpa-onnx keyword spotter in the sherpa sub-package)
// and emits a [event.WakeWordTriggered] when the score reaches the threshold
// derived from the configured sensitivity. Detection is purely local: no
// network calls are made.
package wakeword

import (
	"errors"
	"fmt"
	"io"

	"github.com/chippy-tutor/chippy/internal/event"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

// ErrModelLoad is returned when the acoustic model cannot be initialised.
// It is always fatal: the pipeline must not run without a working wake path.
var ErrModelLoad = errors.New("wakeword: model failed to load")

// Scorer runs a keyword model over one frame at a time and returns the
// detection score for that frame in [0, 1]. Scorers keep whatever rolling
// state (feature history, decoder paths) the model needs between calls.
//
// Scorer implementations are driven from a single goroutine and need not be
// safe for concurrent use.
type Scorer interface {
	// Score consumes f and returns the current detection score.
	Score(f audio.Frame) float64

	// Reset discards the rolling state so the next call starts fresh.
	Reset()
}

// Detector turns per-frame scores into trigger events.
type Detector struct {
	scorer    Scorer
	threshold float64
}

// New creates a Detector around scorer. sensitivity must be in [0, 1];
// higher values trigger more readily. The trigger threshold is
// 1 - sensitivity, and a score of zero never triggers.
func New(scorer Scorer, sensitivity float64) (*Detector, error) {
	if scorer == nil {
		return nil, errors.New("wakeword: scorer must not be nil")
	}
	if sensitivity < 0 || sensitivity > 1 {
		return nil, fmt.Errorf("wakeword: sensitivity %.2f out of range [0, 1]", sensitivity)
	}
	return &Detector{scorer: scorer, threshold: 1 - sensitivity}, nil
}

// Threshold returns the score at or above which a frame triggers.
func (d *Detector) Threshold() float64 { return d.threshold }

// Observe feeds f to the scorer and reports a trigger when the score reaches
// the threshold.
func (d *Detector) Observe(f audio.Frame) (event.Event, bool) {
	score := d.scorer.Score(f)
	if score <= 0 || score < d.threshold {
		return event.Event{}, false
	}
	return event.Triggered(score), true
}

// Reset re-arms the detector after a full interaction cycle.
func (d *Detector) Reset() {
	d.scorer.Reset()
}

// Close releases the scorer if it holds native resources.
func (d *Detector) Close() error {
	if c, ok := d.scorer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
