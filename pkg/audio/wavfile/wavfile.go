// Package wavfile replays a WAV file as an [audio.Source], so the pipeline
// can run without microphone hardware.
package wavfile

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Option configures a [Source].
type Option func(*Source)

// WithRealtime paces frames at the capture cadence instead of handing them
// out as fast as the consumer reads.
func WithRealtime() Option {
	return func(s *Source) { s.realtime = true }
}

// WithTrailingSilence appends d of silence after the file's last sample, so
// an utterance that runs to the end of the file still sees end of speech.
func WithTrailingSilence(d time.Duration) Option {
	return func(s *Source) { s.trailing = d }
}

var _ audio.Source = (*Source)(nil)

// Source hands out fixed-size frames from a decoded WAV file, converted to
// the requested format. It returns [io.EOF] after the last frame.
type Source struct {
	format   audio.Format
	samples  []int16
	framer   *audio.Framer
	realtime bool
	trailing time.Duration

	mu     sync.Mutex
	pos    int
	closed bool
	start  time.Time
	sent   int
}

// Open decodes path from fs and prepares it for replay in format f. Stereo
// files are downmixed and resampled when f is mono; upmixing is not
// supported.
func Open(fs afero.Fs, path string, f audio.Format, opts ...Option) (*Source, error) {
	if fs == nil {
		return nil, fmt.Errorf("wavfile: filesystem must not be nil")
	}
	if f.SampleRate <= 0 || f.Channels <= 0 || f.FrameSize <= 0 {
		return nil, fmt.Errorf("wavfile: invalid format %+v", f)
	}
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %s: %w", path, err)
	}
	defer file.Close()

	clip, err := audio.DecodeWAV(file)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %s: %w", path, err)
	}
	if clip.Channels != f.Channels && f.Channels != 1 {
		return nil, fmt.Errorf("wavfile: %s has %d channels, cannot convert to %d",
			path, clip.Channels, f.Channels)
	}

	conv := &audio.Converter{SampleRate: f.SampleRate, Channels: f.Channels}
	s := &Source{
		format:  f,
		samples: conv.Convert(clip.Samples, clip.SampleRate, clip.Channels),
		framer:  audio.NewFramer(f),
	}
	for _, o := range opts {
		o(s)
	}
	if s.trailing > 0 {
		pad := f.FramesCeil(s.trailing) * f.FrameSize * f.Channels
		s.samples = append(s.samples, make([]int16, pad)...)
	}
	return s, nil
}

// Duration is the total replay time including trailing silence.
func (s *Source) Duration() time.Duration {
	perChannel := len(s.samples) / s.format.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(s.format.SampleRate)
}

// NextFrame implements [audio.Source]. The last frame is zero-padded to the
// full frame size.
func (s *Source) NextFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrSourceClosed
	}
	if s.pos >= len(s.samples) {
		s.mu.Unlock()
		return audio.Frame{}, io.EOF
	}
	n := s.format.FrameSize * s.format.Channels
	block := make([]int16, n)
	copy(block, s.samples[s.pos:])
	s.pos += n
	frame := s.framer.Next(block)
	if s.start.IsZero() {
		s.start = time.Now()
	}
	due := s.start.Add(time.Duration(s.sent) * s.format.FramePeriod())
	s.sent++
	s.mu.Unlock()

	if s.realtime {
		if wait := time.Until(due); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return audio.Frame{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	return frame, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
