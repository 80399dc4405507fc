package audio

import (
	"math"
	"time"
)

// Format describes the sample rate, channel count and frame size of a
// capture stream. Frame size is expressed in samples per channel.
type Format struct {
	SampleRate int
	Channels   int
	FrameSize  int
}

// FramePeriod returns the wall-clock duration covered by one frame, e.g.
// 64ms for 16kHz / 1024 samples. Returns 0 for an invalid format.
func (f Format) FramePeriod() time.Duration {
	if f.SampleRate <= 0 || f.FrameSize <= 0 {
		return 0
	}
	return time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)
}

// FramesRounded converts d into a whole number of frames, rounding to the
// nearest frame.
func (f Format) FramesRounded(d time.Duration) int {
	p := f.FramePeriod()
	if p <= 0 || d <= 0 {
		return 0
	}
	return int(math.Round(float64(d) / float64(p)))
}

// FramesCeil converts d into the smallest number of whole frames that covers
// at least d.
func (f Format) FramesCeil(d time.Duration) int {
	p := f.FramePeriod()
	if p <= 0 || d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(p)))
}

// Frame is a single fixed-length block of captured audio. Frames are the
// atomic unit flowing through the pipeline: captured by a [Source], scored by
// the wake-word detector, segmented by VAD and finally copied into an
// [Utterance].
//
// A Frame is immutable once captured. Stages that retain a frame keep the
// value and must never write to Samples.
type Frame struct {
	// Samples holds interleaved signed 16-bit PCM.
	Samples []int16

	// SampleRate in Hz (16000 for the recognition path).
	SampleRate int

	// Channels is 1 for mono capture.
	Channels int

	// Seq increases by one for every frame produced by a source, including
	// frames the source had to drop.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the length of audio held by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square energy of the frame normalised to the
// range [0, 1] (full-scale int16 is 1.0). Returns 0 for an empty frame.
func (f Frame) RMS() float64 {
	return RMS(f.Samples)
}

// PCM returns the frame as 16-bit little-endian bytes.
func (f Frame) PCM() []byte {
	return SamplesToPCM(f.Samples)
}

// Clip is a finished block of audio, typically synthesized speech on its way
// to a [Player].
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return Frame{Samples: c.Samples, SampleRate: c.SampleRate, Channels: c.Channels}.Duration()
}

// RMS returns the normalised root-mean-square energy of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
