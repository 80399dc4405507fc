// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// Both mocks are safe for concurrent use. They record every call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control behaviour.
//
// Typical usage:
//
//	src := &mock.Source{Frames: mock.Frames(audio.Format{SampleRate: 16000, Channels: 1, FrameSize: 1024}, 0, 0.2, 0.2, 0)}
//	player := &mock.Player{}
//	err := orch.Run(ctx, src)
package mock

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a scripted [audio.Source]. It hands out Frames in order, then
// either returns io.EOF or, when Hold is set, blocks until ctx is cancelled
// or the source is closed.
type Source struct {
	mu sync.Mutex

	// Frames is the scripted frame sequence.
	Frames []audio.Frame

	// Hold keeps the source open after the last frame instead of returning
	// io.EOF.
	Hold bool

	// FrameErr, if non-nil, is returned instead of io.EOF once Frames is
	// exhausted.
	FrameErr error

	// OnFrame, if set, is called with the index of every frame just before
	// it is returned. Tests use it to cancel contexts at an exact position.
	OnFrame func(i int)

	// CloseError is returned by [Source.Close].
	CloseError error

	// CallCountNextFrame records how many frames were handed out.
	CallCountNextFrame int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next   int
	closed chan struct{}
}

// NextFrame implements [audio.Source].
func (s *Source) NextFrame(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	closed := s.closedLocked()
	select {
	case <-closed:
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrSourceClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	if s.next < len(s.Frames) {
		i := s.next
		f := s.Frames[i]
		s.next++
		s.CallCountNextFrame++
		hook := s.OnFrame
		s.mu.Unlock()
		if hook != nil {
			hook(i)
		}
		return f, nil
	}
	hold, ferr := s.Hold, s.FrameErr
	s.mu.Unlock()

	if ferr != nil {
		return audio.Frame{}, ferr
	}
	if !hold {
		return audio.Frame{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-closed:
		return audio.Frame{}, audio.ErrSourceClosed
	}
}

// Close implements [audio.Source]. Returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	ch := s.closedLocked()
	select {
	case <-ch:
	default:
		close(ch)
	}
	return s.CloseError
}

// Closed reports whether Close has been called at least once.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// Delivered returns how many frames have been handed out so far.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountNextFrame
}

func (s *Source) closedLocked() chan struct{} {
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	return s.closed
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by every Play call.
	PlayError error

	// PlayDelay makes Play block for the given duration (or until ctx is
	// done) before returning.
	PlayDelay time.Duration

	// Clips records every clip passed to Play, in call order.
	Clips []audio.Clip
}

// Play implements [audio.Player]. Records the clip and returns PlayError.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.Clips = append(p.Clips, clip)
	delay, err := p.PlayDelay, p.PlayError
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// PlayCount returns the number of Play calls so far.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Clips)
}

// ─── Frame builders ───────────────────────────────────────────────────────────

// Frames builds one frame per level. Each level is the target normalised RMS
// of a frame: 0 produces digital silence, anything else a constant-amplitude
// square wave whose RMS equals the level. Seq and Timestamp are filled in
// sequentially.
func Frames(f audio.Format, levels ...float64) []audio.Frame {
	out := make([]audio.Frame, len(levels))
	period := f.FramePeriod()
	for i, lvl := range levels {
		out[i] = Frame(f, lvl)
		out[i].Seq = uint64(i)
		out[i].Timestamp = time.Duration(i) * period
	}
	return out
}

// Repeat returns level repeated n times, for building [Frames] arguments.
func Repeat(level float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level
	}
	return out
}

// Frame builds a single frame at the given normalised RMS level.
func Frame(f audio.Format, level float64) audio.Frame {
	n := f.FrameSize * max(f.Channels, 1)
	samples := make([]int16, n)
	amp := int16(math.Min(level, 1) * 32767)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.Frame{Samples: samples, SampleRate: f.SampleRate, Channels: f.Channels}
}
