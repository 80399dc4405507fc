// Package portaudio adapts PortAudio capture and playback devices to the
// [audio.Source] and [audio.Player] interfaces.
//
// Capture runs a blocking read loop on its own goroutine. Frames are handed
// to the consumer through a bounded queue; when the consumer falls behind,
// new frames are dropped and their sequence numbers skipped rather than
// stalling the device.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// DefaultDevice selects the host's default input or output device.
const DefaultDevice = -1

// Config describes a capture stream.
type Config struct {
	// DeviceIndex selects the input device; [DefaultDevice] for the host
	// default.
	DeviceIndex int

	// Format is the capture format. FrameSize is the PortAudio buffer size.
	Format audio.Format

	// QueueFrames bounds the hand-off queue. Default 32.
	QueueFrames int
}

var _ audio.Source = (*Source)(nil)

// Source captures frames from a PortAudio input device.
type Source struct {
	stream *portaudio.Stream
	buf    []int16
	framer *audio.Framer

	frames  chan audio.Frame
	errc    chan error
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Open initialises PortAudio, opens the configured input device and starts
// capturing.
func Open(cfg Config) (*Source, error) {
	f := cfg.Format
	if f.SampleRate <= 0 || f.Channels <= 0 || f.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid format %+v", f)
	}
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = 32
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	dev, err := inputDevice(cfg.DeviceIndex)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if dev.MaxInputChannels < f.Channels {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: device %q has %d input channels, need %d",
			dev.Name, dev.MaxInputChannels, f.Channels)
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = f.Channels
	params.SampleRate = float64(f.SampleRate)
	params.FramesPerBuffer = f.FrameSize

	s := &Source{
		buf:    make([]int16, f.FrameSize*f.Channels),
		framer: audio.NewFramer(f),
		frames: make(chan audio.Frame, cfg.QueueFrames),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	s.stream = stream

	slog.Info("microphone opened", "device", dev.Name, "index", cfg.DeviceIndex,
		"sample_rate", f.SampleRate, "channels", f.Channels, "frame_size", f.FrameSize)

	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *Source) readLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// The host dropped samples; the frame we got is still usable.
				slog.Debug("portaudio: input overflowed")
			} else {
				select {
				case <-s.done:
				case s.errc <- fmt.Errorf("portaudio: read: %w", err):
				}
				return
			}
		}

		select {
		case s.frames <- s.framer.Next(s.buf):
		default:
			s.framer.Skip()
			s.dropped.Add(1)
		}
	}
}

// NextFrame implements [audio.Source].
func (s *Source) NextFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errc:
		return audio.Frame{}, err
	case <-s.done:
		return audio.Frame{}, audio.ErrSourceClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Dropped returns the number of frames discarded because the queue was
// full.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Close stops capture and releases the device. It is safe to call more than
// once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		// Stop waits for pending buffers, which unblocks the reader.
		stopErr := s.stream.Stop()
		s.wg.Wait()
		s.closeErr = errors.Join(stopErr, s.stream.Close(), portaudio.Terminate())
		if s.closeErr != nil {
			s.closeErr = fmt.Errorf("portaudio: close: %w", s.closeErr)
		}
	})
	return s.closeErr
}

// inputDevice resolves an index to a device, [DefaultDevice] meaning the
// host default.
func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default input device: %w", err)
		}
		return dev, nil
	}
	return deviceAt(index)
}

// deviceAt returns the device at a host device index. PortAudio indexes
// devices by their position in the device list.
func deviceAt(index int) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("portaudio: no device with index %d (have %d)", index, len(devs))
	}
	return devs[index], nil
}
