// Package vad segments a frame stream into utterances using frame energy.
//
// A [Segmenter] is driven one frame at a time by its owner. It is idle until
// [Segmenter.Arm] is called, after which it buffers pre-roll into a
// [RingWindow] and waits for a frame whose normalised RMS exceeds the silence
// threshold. From that onset it accumulates frames until the signal stays
// below the threshold for the configured silence duration, or until the
// maximum duration cap is hit, and then seals an [audio.Utterance]. A span
// shorter than the minimum speech duration is discarded and the segmenter
// goes back to Armed, so a cough right after the wake word does not cost
// the learner their question. The arm timeout keeps counting from Arm.
//
// Segmenter performs no I/O and never blocks. It is not safe for concurrent
// use.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/chippy-tutor/chippy/internal/event"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Config holds the segmentation parameters. Durations are converted to whole
// frames using Format.
type Config struct {
	// Format is the capture format of the frames that will be observed.
	Format audio.Format

	// SilenceThreshold is the normalised RMS at or below which a frame counts
	// as silence. Range: [0.0, 1.0].
	SilenceThreshold float64

	// SilenceDuration is how long the signal must stay silent before an
	// utterance is sealed.
	SilenceDuration time.Duration

	// MinSpeechDuration is the shortest onset-to-last-voiced span that is
	// kept. Shorter utterances are discarded as noise.
	MinSpeechDuration time.Duration

	// PreRoll is the amount of audio kept from before speech onset.
	PreRoll time.Duration

	// MaxDuration caps the span from onset. Zero disables the cap.
	MaxDuration time.Duration

	// ArmTimeout is how long the segmenter waits for onset after Arm before
	// giving up with a SilenceTimeout. Zero waits forever.
	ArmTimeout time.Duration
}

// Validate checks cfg for values that cannot be segmented.
func (c Config) Validate() error {
	var errs []error
	if c.Format.FramePeriod() <= 0 {
		errs = append(errs, fmt.Errorf("vad: invalid frame format %+v", c.Format))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad: silence threshold %.3f out of range [0, 1]", c.SilenceThreshold))
	}
	if c.SilenceDuration < 0 || c.MinSpeechDuration < 0 || c.PreRoll < 0 || c.MaxDuration < 0 || c.ArmTimeout < 0 {
		errs = append(errs, errors.New("vad: durations must not be negative"))
	}
	return errors.Join(errs...)
}

// State is the segmenter's position in its cycle.
type State int

const (
	// Idle ignores every frame until Arm is called.
	Idle State = iota

	// Armed buffers pre-roll and waits for speech onset.
	Armed

	// InSpeech accumulates the open utterance.
	InSpeech
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case InSpeech:
		return "in_speech"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segmenter is the voice activity segmenter and utterance buffer.
type Segmenter struct {
	threshold     float64
	silenceFrames int
	maxFrames     int
	armFrames     int
	minSpeech     time.Duration

	state State
	pre   *RingWindow

	// armed counts frames observed since Arm, including discarded speech.
	armed int

	// Open utterance. onset is the index of the first voiced frame in
	// frames, lastVoiced the index of the most recent one.
	frames     []audio.Frame
	onset      int
	lastVoiced int
	silentRun  int
	sinceOnset int
}

// New creates a Segmenter. Returns an error if cfg is invalid.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := cfg.Format
	return &Segmenter{
		threshold:     cfg.SilenceThreshold,
		silenceFrames: max(f.FramesCeil(cfg.SilenceDuration), 1),
		maxFrames:     f.FramesCeil(cfg.MaxDuration),
		armFrames:     f.FramesCeil(cfg.ArmTimeout),
		minSpeech:     cfg.MinSpeechDuration,
		pre:           NewRingWindow(f.FramesRounded(cfg.PreRoll)),
	}, nil
}

// State returns the current segmenter state.
func (s *Segmenter) State() State { return s.state }

// PreRollFrames returns the pre-roll window capacity in frames.
func (s *Segmenter) PreRollFrames() int { return s.pre.Cap() }

// SilenceFrames returns the number of consecutive silent frames that end an
// utterance.
func (s *Segmenter) SilenceFrames() int { return s.silenceFrames }

// Arm starts waiting for speech onset. It is a no-op unless the segmenter is
// Idle.
func (s *Segmenter) Arm() {
	if s.state != Idle {
		return
	}
	s.state = Armed
	s.armed = 0
}

// Reset abandons any open utterance, clears the pre-roll window and returns
// to Idle.
func (s *Segmenter) Reset() {
	s.state = Idle
	s.armed = 0
	s.pre.Clear()
	s.dropOpen()
}

// Observe feeds one frame and reports at most one event.
func (s *Segmenter) Observe(f audio.Frame) (event.Event, bool) {
	switch s.state {
	case Armed:
		return s.observeArmed(f)
	case InSpeech:
		return s.observeSpeech(f)
	default:
		return event.Event{}, false
	}
}

func (s *Segmenter) voiced(f audio.Frame) bool {
	return f.RMS() > s.threshold
}

func (s *Segmenter) observeArmed(f audio.Frame) (event.Event, bool) {
	s.armed++
	if !s.voiced(f) {
		s.pre.Push(f)
		if s.armFrames > 0 && s.armed >= s.armFrames {
			s.Reset()
			return event.Event{Kind: event.SilenceTimeout}, true
		}
		return event.Event{}, false
	}

	s.frames = append(s.pre.Snapshot(), f)
	s.pre.Clear()
	s.onset = len(s.frames) - 1
	s.lastVoiced = s.onset
	s.silentRun = 0
	s.sinceOnset = 1
	s.state = InSpeech
	return event.Event{Kind: event.SpeechStart}, true
}

func (s *Segmenter) observeSpeech(f audio.Frame) (event.Event, bool) {
	s.armed++
	s.frames = append(s.frames, f)
	s.sinceOnset++
	if s.voiced(f) {
		s.silentRun = 0
		s.lastVoiced = len(s.frames) - 1
	} else {
		s.silentRun++
	}

	switch {
	case s.silentRun >= s.silenceFrames:
		return s.seal(event.ReasonSilence), true
	case s.maxFrames > 0 && s.sinceOnset >= s.maxFrames:
		return s.seal(event.ReasonMaxDuration), true
	default:
		return event.Event{}, false
	}
}

// seal closes the open utterance, trimming trailing silence. A sealed
// utterance returns the segmenter to Idle and its frames slice is handed
// off. A discarded one returns it to Armed with the trimmed silence as
// pre-roll for the next onset.
func (s *Segmenter) seal(reason event.Reason) event.Event {
	frames := s.frames[:s.lastVoiced+1]
	trailing := s.frames[s.lastVoiced+1:]
	onset := s.onset
	s.frames = nil
	s.dropOpen()

	var total, speech time.Duration
	for i, f := range frames {
		d := f.Duration()
		total += d
		if i >= onset {
			speech += d
		}
	}
	if speech < s.minSpeech {
		s.rearm(trailing)
		return event.Event{Kind: event.SpeechEnd, Reason: event.ReasonTooShort}
	}

	s.Reset()
	return event.Event{
		Kind:   event.SpeechEnd,
		Reason: reason,
		Utterance: &audio.Utterance{
			Frames:   frames,
			Start:    frames[0].Timestamp,
			Duration: total,
			Speech:   speech,
		},
	}
}

// rearm waits for onset again without restarting the arm timeout.
func (s *Segmenter) rearm(preRoll []audio.Frame) {
	s.state = Armed
	s.pre.Clear()
	for _, f := range preRoll {
		s.pre.Push(f)
	}
}

func (s *Segmenter) dropOpen() {
	s.frames = nil
	s.onset = 0
	s.lastVoiced = 0
	s.silentRun = 0
	s.sinceOnset = 0
}
