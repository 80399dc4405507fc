// Package audio defines the frame, utterance and device types shared by every
// stage of the chippy voice front end, together with the narrow interfaces
// that hardware adapters implement.
//
// The two primary abstractions are:
//
//   - [Source]: a continuous producer of fixed-size capture frames.
//   - [Player]: a sink that renders a finished [Clip] to a speaker.
//
// Adapters live in sub-packages (audio/portaudio for real devices,
// audio/wavfile for file replay, audio/mock for tests). The interfaces are
// intentionally narrow so that the detectors and the orchestrator can be
// exercised with synthetic frame sequences and no hardware.
package audio

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by [Source.NextFrame] after the source has
// been closed.
var ErrSourceClosed = errors.New("audio: source closed")

// Source produces capture frames in strict arrival order.
//
// NextFrame blocks until the next frame is available, ctx is done, or the
// source ends. A finite source returns io.EOF once exhausted. Implementations
// must never block the capture device on a slow consumer: if frames are not
// collected in time they are dropped at the source (visible as a gap in
// [Frame.Seq]).
//
// Close releases the underlying device. It is safe to call more than once.
type Source interface {
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Player renders a clip and blocks until playback finishes or ctx is done.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// Device describes one enumerable input device.
type Device struct {
	// Index is the position used to select the device on the command line.
	Index int

	// Name is the host-reported device name.
	Name string

	// MaxInputChannels is the number of capture channels the device offers.
	MaxInputChannels int

	// DefaultSampleRate is the device's preferred rate in Hz.
	DefaultSampleRate float64

	// Default is true for the system default input device.
	Default bool
}
