package audio

import "time"

// Utterance is a sealed span of captured speech ready for recognition. It is
// built by the VAD stage from the pre-roll window plus every frame between
// speech onset and the last voiced frame, and handed to the dispatcher by
// value once sealed. Nothing mutates an Utterance after it is sealed.
type Utterance struct {
	// Frames in capture order, pre-roll first.
	Frames []Frame

	// Start is the timestamp of the first frame (including pre-roll).
	Start time.Duration

	// Duration is the total audio length held in Frames.
	Duration time.Duration

	// Speech is the span from speech onset to the last voiced frame,
	// excluding pre-roll. Used for the minimum-duration check.
	Speech time.Duration
}

// SampleRate returns the sample rate of the utterance, taken from its first
// frame. Returns 0 for an empty utterance.
func (u *Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// Channels returns the channel count of the utterance.
func (u *Utterance) Channels() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].Channels
}

// Samples concatenates all frames into one sample slice.
func (u *Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// PCM returns the utterance as contiguous 16-bit little-endian bytes.
func (u *Utterance) PCM() []byte {
	return SamplesToPCM(u.Samples())
}

// WAV returns the utterance encoded as a 16-bit PCM WAV file.
func (u *Utterance) WAV() ([]byte, error) {
	return EncodeWAV(u.Samples(), u.SampleRate(), u.Channels())
}
