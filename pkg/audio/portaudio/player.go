package portaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// playBuffer is the PortAudio output buffer size in frames.
const playBuffer = 1024

var _ audio.Player = (*Player)(nil)

// Player renders clips on a PortAudio output device. Each Play opens and
// closes its own stream, so the device is free between replies.
type Player struct {
	deviceIndex int
}

// NewPlayer returns a Player for the given output device index, or
// [DefaultDevice].
func NewPlayer(deviceIndex int) *Player {
	return &Player{deviceIndex: deviceIndex}
}

// Play implements [audio.Player]. It blocks until the clip has been written
// or ctx is done.
func (p *Player) Play(ctx context.Context, clip audio.Clip) (err error) {
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return fmt.Errorf("portaudio: play: invalid clip format %dHz/%dch", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) == 0 {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer func() { err = errors.Join(err, portaudio.Terminate()) }()

	dev, err := p.outputDevice()
	if err != nil {
		return err
	}
	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = clip.Channels
	params.SampleRate = float64(clip.SampleRate)
	params.FramesPerBuffer = playBuffer

	buf := make([]int16, playBuffer*clip.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output on %q: %w", dev.Name, err)
	}
	defer func() { err = errors.Join(err, stream.Close()) }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	for _, chunk := range chunks(clip.Samples, len(buf)) {
		if ctx.Err() != nil {
			_ = stream.Abort()
			return ctx.Err()
		}
		n := copy(buf, chunk)
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			_ = stream.Abort()
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output: %w", err)
	}
	return nil
}

func (p *Player) outputDevice() (*portaudio.DeviceInfo, error) {
	if p.deviceIndex == DefaultDevice {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default output device: %w", err)
		}
		return dev, nil
	}
	return deviceAt(p.deviceIndex)
}

// chunks splits samples into consecutive slices of at most size samples.
func chunks(samples []int16, size int) [][]int16 {
	if size <= 0 {
		return nil
	}
	out := make([][]int16, 0, (len(samples)+size-1)/size)
	for len(samples) > 0 {
		n := min(size, len(samples))
		out = append(out, samples[:n])
		samples = samples[n:]
	}
	return out
}
