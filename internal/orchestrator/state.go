package orchestrator

import (
	"fmt"
	"time"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// State is the orchestrator's position in the interaction cycle.
type State int32

const (
	// Idle listens for the wake word only.
	Idle State = iota

	// Armed waits for speech onset after a wake trigger, buffering pre-roll.
	Armed

	// Recording accumulates an open utterance.
	Recording

	// Dispatching has a recognition call outstanding. Captured frames are
	// discarded in this state.
	Dispatching

	// Handoff passes recognised text to the downstream collaborators.
	Handoff
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	case Dispatching:
		return "dispatching"
	case Handoff:
		return "handoff"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome describes how a session ended.
type Outcome string

const (
	// OutcomeCompleted means the recognised text was handed off successfully.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFalseWake means no speech followed the wake trigger.
	OutcomeFalseWake Outcome = "false_wake"

	// OutcomeTooShort means only noise bursts followed the wake trigger
	// before the arm timeout.
	OutcomeTooShort Outcome = "too_short"

	// OutcomeNoSpeech means the recogniser heard nothing intelligible, or
	// nothing was left after the wake phrase was removed.
	OutcomeNoSpeech Outcome = "no_speech"

	// OutcomeExhausted means every recognition attempt failed transiently.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeRejected means the recogniser refused the request with a
	// non-retriable error.
	OutcomeRejected Outcome = "rejected"

	// OutcomeHandoffFailed means a downstream collaborator failed.
	OutcomeHandoffFailed Outcome = "handoff_failed"

	// OutcomeCancelled means the pipeline shut down mid-session.
	OutcomeCancelled Outcome = "cancelled"
)

// Session is one activation, from wake trigger back to Idle. The
// orchestrator owns it; hooks receive copies.
type Session struct {
	// ID is the prefixed session identifier, e.g. "CHIPPY_1a2b3c4d".
	ID string

	// Started is the timestamp of the frame that triggered the wake word.
	Started time.Duration

	// Confidence is the wake-word score that opened the session.
	Confidence float64

	// Discarded counts bursts dropped as too short while waiting for the
	// question.
	Discarded int

	// Utterance is the sealed utterance, once there is one.
	Utterance *audio.Utterance

	// Text is the recognised text after wake-phrase removal.
	Text string

	// Attempts counts recognition calls made for this session.
	Attempts int

	// Outcome is set when the session ends.
	Outcome Outcome

	// Err is the failure that ended the session, if any.
	Err error
}
