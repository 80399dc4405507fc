// Package mock provides a scripted [wakeword.Scorer] for tests.
package mock

import (
	"sync"

	"github.com/chippy-tutor/chippy/internal/wakeword"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

var _ wakeword.Scorer = (*Scorer)(nil)

// Scorer returns scores from a script keyed by frame sequence number.
type Scorer struct {
	mu sync.Mutex

	// Scores maps a frame's Seq to the score returned for it. Frames not in
	// the map score Default.
	Scores map[uint64]float64

	// Default is returned for frames absent from Scores.
	Default float64

	// CallCountScore records how many frames were scored.
	CallCountScore int

	// CallCountReset records how many times Reset was called.
	CallCountReset int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Score implements [wakeword.Scorer].
func (s *Scorer) Score(f audio.Frame) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountScore++
	if v, ok := s.Scores[f.Seq]; ok {
		return v
	}
	return s.Default
}

// Reset implements [wakeword.Scorer].
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountReset++
}

// Close records the call.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// Scored returns CallCountScore under the lock.
func (s *Scorer) Scored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountScore
}

// Resets returns CallCountReset under the lock.
func (s *Scorer) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountReset
}

// TriggerAt returns a Scorer that scores 1.0 on each listed frame sequence
// number and 0 elsewhere.
func TriggerAt(seqs ...uint64) *Scorer {
	m := make(map[uint64]float64, len(seqs))
	for _, q := range seqs {
		m[q] = 1
	}
	return &Scorer{Scores: m}
}
