package stt

import "time"

// Request is a single recognition call.
type Request struct {
	// Audio holds raw 16-bit little-endian PCM.
	Audio []byte

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels in Audio.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en-US"). Empty lets the
	// provider auto-detect, if supported.
	Language string
}

// Duration returns the length of audio held in the request.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	samples := len(r.Audio) / 2 / r.Channels
	return time.Duration(samples) * time.Second / time.Duration(r.SampleRate)
}

// Result is a completed transcript.
type Result struct {
	// Text is the recognised speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Provider names the backend that produced the result.
	Provider string
}
