// Package mock provides a test double for the [tts.Synthesizer] interface.
//
// Example:
//
//	s := &mock.Synthesizer{Clip: audio.Clip{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}}
//	clip, _ := s.Synthesize(ctx, "hello")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer is a mock implementation of [tts.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by every successful call.
	Clip audio.Clip

	// Err, if non-nil, is returned instead of Clip.
	Err error

	// Delay makes Synthesize wait for the given duration or until ctx is
	// done.
	Delay time.Duration

	// Texts records the text of every call, in order.
	Texts []string
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	clip, err, delay := s.Clip, s.Err, s.Delay
	s.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return audio.Clip{}, err
	}
	return clip, nil
}

// Calls returns a copy of the recorded texts.
func (s *Synthesizer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Texts...)
}
