package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Converter reshapes sample blocks to a target rate and channel count. It
// logs a warning on the first mismatch it sees. Create one per stream; it is
// not designed for shared use across goroutines.
type Converter struct {
	SampleRate int
	Channels   int

	warnedMismatch sync.Once
}

// Convert converts samples recorded at rate/channels to the converter's
// target. If the source already matches, samples are returned unchanged.
// Conversion order: downmix first, then resample.
func (c *Converter) Convert(samples []int16, rate, channels int) []int16 {
	if rate == c.SampleRate && channels == c.Channels {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(rate, channels),
			"to", formatString(c.SampleRate, c.Channels),
		)
	})

	out := samples
	if channels > 1 && c.Channels == 1 {
		out = DownmixToMono(out, channels)
		channels = 1
	}
	if rate != c.SampleRate && channels == 1 {
		out = ResampleMono(out, rate, c.SampleRate)
	}
	return out
}

// PCMToSamples decodes 16-bit little-endian PCM bytes. A trailing odd byte is
// ignored.
func PCMToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToPCM encodes samples as 16-bit little-endian PCM bytes.
func SamplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToFloat32 converts samples to float32 normalised to [-1.0, 1.0), the input
// format expected by the keyword spotter and whisper.cpp.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// DownmixToMono averages interleaved channels into a mono signal. Uses int32
// arithmetic to prevent overflow and clamps to the int16 range.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]int16, n)
	for i := range n {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i] = int16(avg)
	}
	return out
}

// ResampleMono resamples a mono signal from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate the input is returned unchanged.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 1 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
