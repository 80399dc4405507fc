package portaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Devices lists the host's input devices.
func Devices() ([]audio.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	// A host without input devices has no default; that is not an error here.
	def, _ := portaudio.DefaultInputDevice()
	return inputDevices(devs, def), nil
}

// inputDevices converts PortAudio device info to [audio.Device], keeping
// only devices that can capture. The index is the position in devs, which is
// what [Open] accepts.
func inputDevices(devs []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) []audio.Device {
	out := make([]audio.Device, 0, len(devs))
	for i, d := range devs {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, audio.Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           isDefault(d, def),
		})
	}
	return out
}

func isDefault(d, def *portaudio.DeviceInfo) bool {
	if def == nil {
		return false
	}
	return d == def || (d.Name == def.Name && d.HostApi == def.HostApi)
}
