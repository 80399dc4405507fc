package wakeword_test

import (
	"math/rand/v2"
	"testing"

	"github.com/chippy-tutor/chippy/internal/event"
	"github.com/chippy-tutor/chippy/internal/wakeword"
	"github.com/chippy-tutor/chippy/internal/wakeword/mock"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := wakeword.New(nil, 0.5); err == nil {
		t.Error("expected error for nil scorer")
	}
	for _, s := range []float64{-0.1, 1.1} {
		if _, err := wakeword.New(&mock.Scorer{}, s); err == nil {
			t.Errorf("expected error for sensitivity %v", s)
		}
	}
}

func TestDetector_Threshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sensitivity float64
		want        float64
	}{
		{sensitivity: 0.5, want: 0.5},
		{sensitivity: 0.8, want: 0.2},
		{sensitivity: 0, want: 1},
	}
	for _, tt := range tests {
		d, err := wakeword.New(&mock.Scorer{}, tt.sensitivity)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		got := d.Threshold()
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("Threshold(%v) = %v, want %v", tt.sensitivity, got, tt.want)
		}
	}
}

func TestDetector_NoEventBelowThreshold(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	scores := make(map[uint64]float64, 500)
	for i := range uint64(500) {
		// Strictly below the 0.5 threshold.
		scores[i] = rng.Float64() * 0.499
	}
	d, err := wakeword.New(&mock.Scorer{Scores: scores}, 0.5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range uint64(500) {
		if ev, ok := d.Observe(audio.Frame{Seq: i}); ok {
			t.Fatalf("frame %d: unexpected event %v", i, ev)
		}
	}
}

func TestDetector_Triggers(t *testing.T) {
	t.Parallel()
	d, err := wakeword.New(&mock.Scorer{Scores: map[uint64]float64{3: 0.9}}, 0.5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var got []event.Event
	for i := range uint64(6) {
		if ev, ok := d.Observe(audio.Frame{Seq: i}); ok {
			got = append(got, ev)
		}
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Kind != event.WakeWordTriggered || got[0].Confidence != 0.9 {
		t.Errorf("event = %v, want wake_word_triggered(0.90)", got[0])
	}
}

func TestDetector_ZeroScoreNeverTriggers(t *testing.T) {
	t.Parallel()
	d, err := wakeword.New(&mock.Scorer{}, 1.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := d.Observe(audio.Frame{}); ok {
		t.Error("zero score must not trigger even at full sensitivity")
	}
}

func TestDetector_ResetAndClose(t *testing.T) {
	t.Parallel()
	s := &mock.Scorer{}
	d, err := wakeword.New(s, 0.5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Reset()
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.CallCountReset != 1 || s.CallCountClose != 1 {
		t.Errorf("reset/close calls = %d/%d, want 1/1", s.CallCountReset, s.CallCountClose)
	}
}
