// Package meter measures microphone input for the microphone test: the
// level of each frame against the silence threshold and its dominant
// frequency.
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"strings"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Reading is the measurement of one frame.
type Reading struct {
	// RMS is the normalised level in [0, 1].
	RMS float64

	// Peak is the largest absolute sample, normalised.
	Peak float64

	// Frequency is the dominant frequency in Hz, 0 for silence.
	Frequency float64

	// Speech reports whether RMS exceeds the silence threshold.
	Speech bool
}

// Meter measures frames against a silence threshold.
type Meter struct {
	threshold float64
}

// New returns a Meter for the given normalised silence threshold.
func New(threshold float64) *Meter {
	return &Meter{threshold: threshold}
}

// Measure analyses one frame.
func (m *Meter) Measure(f audio.Frame) Reading {
	mono := audio.DownmixToMono(f.Samples, f.Channels)
	r := Reading{RMS: audio.RMS(mono)}
	for _, s := range mono {
		if v := math.Abs(float64(s)) / 32768; v > r.Peak {
			r.Peak = v
		}
	}
	r.Speech = r.RMS > m.threshold
	if r.RMS > 0 {
		r.Frequency = dominantFrequency(mono, f.SampleRate)
	}
	return r
}

// dominantFrequency returns the centre of the strongest FFT bin after a Hann
// window, ignoring DC.
func dominantFrequency(samples []int16, sampleRate int) float64 {
	n := len(samples)
	if n < 2 || sampleRate <= 0 {
		return 0
	}
	x := make([]float64, n)
	for i, s := range samples {
		x[i] = float64(s) / 32768
	}
	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)

	best, bestMag := 0, 0.0
	for k := 1; k <= n/2; k++ {
		if mag := cmplx.Abs(spectrum[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}
	return float64(best) * float64(sampleRate) / float64(n)
}

// Render formats r as a single console line with a level bar width cells
// wide. A full bar is full-scale RMS.
func (r Reading) Render(width int) string {
	filled := min(width, int(r.RMS*float64(width)))
	status := "SILENCE"
	if r.Speech {
		status = "SPEECH "
	}
	return fmt.Sprintf("%s | %-*s | RMS: %.4f | %6.0f Hz",
		status, width, strings.Repeat("█", filled), r.RMS, r.Frequency)
}

// Summary aggregates a test run.
type Summary struct {
	Frames       int
	SpeechFrames int
	MaxRMS       float64
	MeanRMS      float64
}

// Run reads frames from src for d of capture time, writing one rendered line
// per frame to w (carriage-return separated, for a live display). It stops
// early when src ends or ctx is done, returning what it measured so far.
func (m *Meter) Run(ctx context.Context, src audio.Source, d time.Duration, w io.Writer) (Summary, error) {
	var (
		sum   Summary
		total float64
		start time.Duration
	)
	for {
		f, err := src.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, audio.ErrSourceClosed) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			return finish(sum, total), fmt.Errorf("meter: read frame: %w", err)
		}
		if sum.Frames == 0 {
			start = f.Timestamp
		}

		r := m.Measure(f)
		sum.Frames++
		total += r.RMS
		sum.MaxRMS = max(sum.MaxRMS, r.RMS)
		if r.Speech {
			sum.SpeechFrames++
		}
		if w != nil {
			fmt.Fprintf(w, "\r%s", r.Render(50))
		}

		if f.Timestamp+f.Duration()-start >= d {
			break
		}
	}
	if w != nil && sum.Frames > 0 {
		fmt.Fprintln(w)
	}
	return finish(sum, total), ctx.Err()
}

func finish(s Summary, total float64) Summary {
	if s.Frames > 0 {
		s.MeanRMS = total / float64(s.Frames)
	}
	return s
}
