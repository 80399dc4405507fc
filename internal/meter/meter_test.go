package meter_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/chippy-tutor/chippy/internal/meter"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/audio/mock"
)

var format = audio.Format{SampleRate: 16000, Channels: 1, FrameSize: 1024}

func sine(freq, amp float64, n, rate int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestMeasure_DominantFrequency(t *testing.T) {
	t.Parallel()

	m := meter.New(0.015)
	// 1000 Hz falls exactly on bin 64 of a 1024-point FFT at 16 kHz.
	f := audio.Frame{Samples: sine(1000, 0.5, 1024, 16000), SampleRate: 16000, Channels: 1}
	r := m.Measure(f)

	if r.Frequency != 1000 {
		t.Errorf("Frequency = %v, want 1000", r.Frequency)
	}
	if math.Abs(r.RMS-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("RMS = %v, want ~%v", r.RMS, 0.5/math.Sqrt2)
	}
	if math.Abs(r.Peak-0.5) > 0.01 {
		t.Errorf("Peak = %v, want ~0.5", r.Peak)
	}
	if !r.Speech {
		t.Error("Speech = false, want true")
	}
}

func TestMeasure_Silence(t *testing.T) {
	t.Parallel()

	r := meter.New(0.015).Measure(mock.Frame(format, 0))
	if r.RMS != 0 || r.Frequency != 0 || r.Speech {
		t.Errorf("Measure(silence) = %+v, want zero reading", r)
	}
}

func TestMeasure_StereoIsDownmixed(t *testing.T) {
	t.Parallel()

	mono := sine(500, 0.4, 1024, 16000)
	stereo := make([]int16, 0, 2*len(mono))
	for _, s := range mono {
		stereo = append(stereo, s, s)
	}
	r := meter.New(0.015).Measure(audio.Frame{Samples: stereo, SampleRate: 16000, Channels: 2})
	if r.Frequency != 500 {
		t.Errorf("Frequency = %v, want 500", r.Frequency)
	}
}

func TestReading_Render(t *testing.T) {
	t.Parallel()

	line := meter.Reading{RMS: 0.35, Frequency: 440, Speech: true}.Render(10)
	if !strings.HasPrefix(line, "SPEECH ") {
		t.Errorf("line %q does not start with SPEECH", line)
	}
	if got := strings.Count(line, "█"); got != 3 {
		t.Errorf("bar cells = %d, want 3", got)
	}
	if !strings.Contains(line, "RMS: 0.3500") || !strings.Contains(line, "440 Hz") {
		t.Errorf("line %q missing level or frequency", line)
	}

	quiet := meter.Reading{RMS: 0.001}.Render(10)
	if !strings.HasPrefix(quiet, "SILENCE") {
		t.Errorf("line %q does not start with SILENCE", quiet)
	}
}

func TestRun_StopsAfterDuration(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Frames: mock.Frames(format, mock.Repeat(0.2, 20)...)}
	var out bytes.Buffer

	// 64 ms frames: the 16th frame ends at 1.024 s.
	sum, err := meter.New(0.015).Run(context.Background(), src, time.Second, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Frames != 16 {
		t.Errorf("Frames = %d, want 16", sum.Frames)
	}
	if sum.SpeechFrames != 16 {
		t.Errorf("SpeechFrames = %d, want 16", sum.SpeechFrames)
	}
	if math.Abs(sum.MaxRMS-0.2) > 0.001 || math.Abs(sum.MeanRMS-0.2) > 0.001 {
		t.Errorf("MaxRMS = %v, MeanRMS = %v, want ~0.2", sum.MaxRMS, sum.MeanRMS)
	}
	if got := strings.Count(out.String(), "\r"); got != 16 {
		t.Errorf("rendered lines = %d, want 16", got)
	}
}

func TestRun_EndOfSource(t *testing.T) {
	t.Parallel()

	levels := append(mock.Repeat(0, 3), mock.Repeat(0.2, 2)...)
	src := &mock.Source{Frames: mock.Frames(format, levels...)}
	sum, err := meter.New(0.015).Run(context.Background(), src, time.Minute, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Frames != 5 || sum.SpeechFrames != 2 {
		t.Errorf("summary = %+v, want 5 frames with 2 speech", sum)
	}
}
