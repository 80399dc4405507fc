// Package event defines the detection events exchanged between the per-frame
// detectors and the session orchestrator.
//
// An [Event] is a tagged value: [Event.Kind] says which variant it is and
// only the fields relevant to that variant are populated. The orchestrator
// consumes events through a single switch over Kind, so every valid
// transition is visible in one place.
package event

import (
	"fmt"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Kind enumerates detection event variants.
type Kind int

const (
	// WakeWordTriggered is emitted by the wake-word detector when the
	// activation phrase was recognised. Confidence is set.
	WakeWordTriggered Kind = iota + 1

	// SpeechStart is emitted by the segmenter on speech onset.
	SpeechStart

	// SpeechEnd is emitted by the segmenter when an utterance ends. Reason
	// says why; Utterance is set when the utterance was sealed and nil when
	// it was discarded.
	SpeechEnd

	// SilenceTimeout is emitted by the segmenter when no speech onset was
	// observed within the armed window after a wake trigger.
	SilenceTimeout
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case WakeWordTriggered:
		return "wake_word_triggered"
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	case SilenceTimeout:
		return "silence_timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reason qualifies a [SpeechEnd] event.
type Reason string

const (
	// ReasonSilence means sustained silence sealed the utterance.
	ReasonSilence Reason = "silence"

	// ReasonMaxDuration means the hard recording cap sealed the utterance.
	ReasonMaxDuration Reason = "max_duration"

	// ReasonTooShort means the utterance was discarded as noise.
	ReasonTooShort Reason = "too_short"
)

// Event is a single detection event.
type Event struct {
	Kind Kind

	// Confidence is the detector score in [0, 1] for WakeWordTriggered.
	Confidence float64

	// Reason is set for SpeechEnd.
	Reason Reason

	// Utterance is the sealed utterance for a SpeechEnd that was not
	// discarded. Ownership passes to the receiver.
	Utterance *audio.Utterance
}

// Sealed reports whether e carries an utterance ready for recognition.
func (e Event) Sealed() bool {
	return e.Kind == SpeechEnd && e.Utterance != nil
}

// Triggered builds a WakeWordTriggered event.
func Triggered(confidence float64) Event {
	return Event{Kind: WakeWordTriggered, Confidence: confidence}
}

// String implements [fmt.Stringer] for log output.
func (e Event) String() string {
	switch e.Kind {
	case WakeWordTriggered:
		return fmt.Sprintf("%s(%.2f)", e.Kind, e.Confidence)
	case SpeechEnd:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	default:
		return e.Kind.String()
	}
}
