// Package orchestrator implements the session state machine that ties the
// chippy front end together.
//
// An [Orchestrator] pulls frames from an [audio.Source] on a single
// goroutine, feeds them to the wake-word detector and the voice activity
// segmenter, and reacts to the resulting [event.Event] values in one switch:
//
//	Idle ──wake──▶ Armed ──onset──▶ Recording ──sealed──▶ Dispatching ──text──▶ Handoff
//	  ▲              │  ▲               │                      │                   │
//	  │              │  └──too short────┘                      │                   │
//	  └──timeout─────┴─────────────────────────failure─────────┴───────done────────┘
//
// A burst too short to be speech sends the session back to Armed; the arm
// timeout still runs from the wake trigger.
//
// Recognition and handoff run on a worker goroutine so that the frame loop
// never blocks. While the worker is busy, captured frames are discarded
// rather than buffered. At most one [Session] is live at a time; a wake
// trigger outside Idle is counted and ignored.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chippy-tutor/chippy/internal/dispatch"
	"github.com/chippy-tutor/chippy/internal/event"
	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

// ErrAlreadyRunning is returned by [Orchestrator.Run] if a run is in progress.
var ErrAlreadyRunning = errors.New("orchestrator: already running")

const (
	defaultIDPrefix      = "CHIPPY_"
	defaultShutdownGrace = 3 * time.Second
)

// Detector scores frames for the wake word. Implemented by
// *wakeword.Detector.
type Detector interface {
	Observe(f audio.Frame) (event.Event, bool)
	Reset()
}

// Segmenter finds utterance boundaries. Implemented by *vad.Segmenter.
type Segmenter interface {
	Arm()
	Observe(f audio.Frame) (event.Event, bool)
	Reset()
}

// Recognizer turns a sealed utterance into text. Implemented by
// *dispatch.Dispatcher.
type Recognizer interface {
	Recognize(ctx context.Context, u *audio.Utterance) (dispatch.Result, error)
}

// Handler receives recognised text for the Handoff stage. Implemented by
// *handoff.Pipeline.
type Handler interface {
	Handle(ctx context.Context, sessionID, text string) error
}

// Recorder persists sealed utterances. Implemented by *recording.Recorder.
type Recorder interface {
	Save(ctx context.Context, sessionID string, u *audio.Utterance) error
}

// Config holds the orchestrator settings.
type Config struct {
	// IDPrefix is prepended to every session ID. Defaults to "CHIPPY_".
	IDPrefix string

	// ShutdownGrace bounds how long Run waits for an in-flight worker after
	// cancellation. Defaults to 3s.
	ShutdownGrace time.Duration
}

// Orchestrator is the session state machine. Run must not be called
// concurrently; State may be read from any goroutine.
type Orchestrator struct {
	detector   Detector
	segmenter  Segmenter
	recognizer Recognizer
	handler    Handler
	recorder   Recorder
	filter     func(string) string
	newID      func() string
	metrics    *observe.Metrics
	grace      time.Duration

	onTransition func(from, to State)
	onSession    func(Session)
	onFailure    func(Session)

	state   atomic.Int32
	running atomic.Bool

	// Loop-owned session state.
	sess       *Session
	sessCtx    context.Context
	span       trace.Span
	workCancel context.CancelFunc
	results    chan Session

	lastSeq uint64
	seenSeq bool
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithHandler sets the Handoff collaborator. Without one, recognised text
// is only logged.
func WithHandler(h Handler) Option {
	return func(o *Orchestrator) { o.handler = h }
}

// WithRecorder captures every sealed utterance before it is dispatched.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTranscriptFilter rewrites recognised text before handoff, e.g. to
// strip the wake phrase. An empty result ends the session as no-speech.
func WithTranscriptFilter(fn func(string) string) Option {
	return func(o *Orchestrator) { o.filter = fn }
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTransitionHook registers fn to be called on every state change. It may
// be called from the worker goroutine.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// WithSessionHook registers fn to be called when a session ends, whatever
// the outcome.
func WithSessionHook(fn func(Session)) Option {
	return func(o *Orchestrator) { o.onSession = fn }
}

// WithFailureHandler registers fn to be called when a session ends in a
// recoverable failure: exhausted retries, a rejected request or a failed
// handoff. Semantic outcomes (false wake, too short, no speech) are not
// reported.
func WithFailureHandler(fn func(Session)) Option {
	return func(o *Orchestrator) { o.onFailure = fn }
}

// New creates an Orchestrator.
func New(det Detector, seg Segmenter, rec Recognizer, cfg Config, opts ...Option) (*Orchestrator, error) {
	switch {
	case det == nil:
		return nil, errors.New("orchestrator: detector must not be nil")
	case seg == nil:
		return nil, errors.New("orchestrator: segmenter must not be nil")
	case rec == nil:
		return nil, errors.New("orchestrator: recognizer must not be nil")
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = defaultIDPrefix
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	o := &Orchestrator{
		detector:   det,
		segmenter:  seg,
		recognizer: rec,
		grace:      cfg.ShutdownGrace,
		results:    make(chan Session, 1),
	}
	prefix := cfg.IDPrefix
	o.newID = func() string {
		return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run drives the state machine until ctx is cancelled or src ends. Run owns
// src and closes it before returning.
//
// On cancellation the source is closed at once, any in-flight recognition or
// handoff is cancelled and given up to the shutdown grace period to unwind,
// and ctx.Err() is returned. A finite source returning io.EOF lets the
// in-flight session finish and then returns nil. Any other source error is
// returned wrapped.
func (o *Orchestrator) Run(ctx context.Context, src audio.Source) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	log := observe.Logger(ctx)
	log.Info("orchestrator listening", "state", o.State().String())

	for {
		f, err := src.NextFrame(ctx)
		if err != nil {
			return o.stop(ctx, src, err)
		}
		o.collect(ctx)
		o.step(ctx, f)
	}
}

// stop closes src and winds down the live session.
func (o *Orchestrator) stop(ctx context.Context, src audio.Source, cause error) error {
	log := observe.Logger(ctx)
	if err := src.Close(); err != nil {
		log.Warn("failed to close audio source", "err", err)
	}

	switch {
	case ctx.Err() != nil:
		o.abandon(ctx)
		log.Info("orchestrator stopped", "reason", ctx.Err())
		return ctx.Err()

	case errors.Is(cause, io.EOF):
		if o.workCancel != nil {
			select {
			case res := <-o.results:
				o.finish(ctx, res)
			case <-ctx.Done():
				o.abandon(ctx)
				return ctx.Err()
			}
		}
		if o.sess != nil {
			o.end(ctx, OutcomeCancelled, nil)
		}
		log.Info("audio source exhausted")
		return nil

	default:
		o.abandon(ctx)
		return fmt.Errorf("orchestrator: read frame: %w", cause)
	}
}

// abandon cancels the worker, waits up to the grace period for it and ends
// the live session as cancelled.
func (o *Orchestrator) abandon(ctx context.Context) {
	if o.sess == nil {
		return
	}
	if o.workCancel != nil {
		o.workCancel()
		t := time.NewTimer(o.grace)
		defer t.Stop()
		select {
		case res := <-o.results:
			o.finish(ctx, res)
			return
		case <-t.C:
			observe.Logger(o.sessCtx).Warn("worker did not stop within shutdown grace", "grace", o.grace)
		}
	}
	o.end(ctx, OutcomeCancelled, nil)
}

// collect picks up a finished worker result without blocking.
func (o *Orchestrator) collect(ctx context.Context) {
	select {
	case res := <-o.results:
		o.finish(ctx, res)
	default:
	}
}

func (o *Orchestrator) finish(ctx context.Context, res Session) {
	o.sess = &res
	o.end(ctx, res.Outcome, res.Err)
}

// step feeds one frame through the detectors for the current state.
func (o *Orchestrator) step(ctx context.Context, f audio.Frame) {
	if o.seenSeq && f.Seq > o.lastSeq+1 {
		o.metrics.RecordDroppedFrames(ctx, "source", int64(f.Seq-o.lastSeq-1))
	}
	o.lastSeq, o.seenSeq = f.Seq, true

	switch o.State() {
	case Dispatching, Handoff:
		o.metrics.RecordDroppedFrames(ctx, "dispatching", 1)
		return
	}

	if ev, ok := o.detector.Observe(f); ok {
		if o.handle(ctx, f, ev) {
			// The trigger frame belongs to the wake phrase, not the request.
			return
		}
	}
	if st := o.State(); st == Armed || st == Recording {
		if ev, ok := o.segmenter.Observe(f); ok {
			o.handle(ctx, f, ev)
		}
	}
}

// handle applies ev to the state machine and reports whether a new session
// was opened.
func (o *Orchestrator) handle(ctx context.Context, f audio.Frame, ev event.Event) bool {
	st := o.State()
	switch ev.Kind {
	case event.WakeWordTriggered:
		if st != Idle {
			o.metrics.RecordWakeTrigger(ctx, "ignored")
			observe.Logger(ctx).Debug("wake trigger ignored", "session_id", o.sess.ID, "state", st.String(), "confidence", ev.Confidence)
			return false
		}
		o.open(ctx, f, ev)
		return true

	case event.SpeechStart:
		if st == Armed {
			o.span.AddEvent("speech_start")
			o.transition(ctx, Recording)
		}

	case event.SilenceTimeout:
		o.metrics.RecordUtterance(ctx, "timeout", "no_onset")
		if o.sess.Discarded > 0 {
			o.end(ctx, OutcomeTooShort, nil)
			return false
		}
		o.end(ctx, OutcomeFalseWake, nil)

	case event.SpeechEnd:
		if !ev.Sealed() {
			o.metrics.RecordUtterance(ctx, "discarded", string(ev.Reason))
			o.sess.Discarded++
			o.span.AddEvent("speech_discarded")
			observe.Logger(o.sessCtx).Debug("speech too short, still listening", "discarded", o.sess.Discarded)
			o.transition(ctx, Armed)
			return false
		}
		u := ev.Utterance
		o.metrics.RecordUtterance(ctx, "sealed", string(ev.Reason))
		o.metrics.UtteranceDuration.Record(ctx, u.Duration.Seconds())
		o.span.SetAttributes(
			attribute.String("utterance.reason", string(ev.Reason)),
			attribute.Int("utterance.frames", len(u.Frames)),
		)
		observe.Logger(o.sessCtx).Debug("utterance sealed",
			"reason", ev.Reason,
			"frames", len(u.Frames),
			"duration", u.Duration,
			"speech", u.Speech,
		)
		o.sess.Utterance = u
		o.transition(ctx, Dispatching)
		o.dispatch(*o.sess)
	}
	return false
}

// open starts a new session on a wake trigger.
func (o *Orchestrator) open(ctx context.Context, f audio.Frame, ev event.Event) {
	id := o.newID()
	o.sess = &Session{ID: id, Started: f.Timestamp, Confidence: ev.Confidence}
	sctx := observe.WithSessionID(ctx, id)
	sctx, o.span = observe.StartSpan(sctx, "orchestrator.session",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Float64("wake.confidence", ev.Confidence),
		),
	)
	o.sessCtx = sctx

	o.metrics.RecordWakeTrigger(ctx, "accepted")
	o.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(sctx).Info("wake word detected", "confidence", ev.Confidence, "at", f.Timestamp)

	o.segmenter.Arm()
	o.transition(ctx, Armed)
}

// dispatch hands sess to the worker goroutine.
func (o *Orchestrator) dispatch(sess Session) {
	wctx, cancel := context.WithCancel(o.sessCtx)
	o.workCancel = cancel
	go func() {
		o.results <- o.work(wctx, sess)
	}()
}

// work runs recognition and handoff for one sealed utterance.
func (o *Orchestrator) work(ctx context.Context, sess Session) Session {
	log := observe.Logger(ctx)

	if o.recorder != nil {
		if err := o.recorder.Save(ctx, sess.ID, sess.Utterance); err != nil {
			log.Warn("failed to capture utterance", "err", err)
		}
	}

	res, err := o.recognizer.Recognize(ctx, sess.Utterance)
	sess.Attempts = res.Attempts
	if err != nil {
		sess.Outcome, sess.Err = recognitionOutcome(ctx, err)
		return sess
	}

	text := res.Text
	if o.filter != nil {
		text = o.filter(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Debug("nothing left after wake phrase removal", "transcript", res.Text)
		sess.Outcome = OutcomeNoSpeech
		return sess
	}
	sess.Text = text
	log.Info("utterance recognised", "text", text, "provider", res.Provider, "attempts", res.Attempts)

	if !o.advance(ctx, Dispatching, Handoff) {
		sess.Outcome = OutcomeCancelled
		return sess
	}
	if o.handler != nil {
		if err := o.handler.Handle(ctx, sess.ID, text); err != nil {
			if ctx.Err() != nil {
				sess.Outcome = OutcomeCancelled
				return sess
			}
			sess.Outcome, sess.Err = OutcomeHandoffFailed, err
			return sess
		}
	}
	sess.Outcome = OutcomeCompleted
	return sess
}

func recognitionOutcome(ctx context.Context, err error) (Outcome, error) {
	switch {
	case ctx.Err() != nil:
		return OutcomeCancelled, nil
	case errors.Is(err, stt.ErrNoSpeech):
		return OutcomeNoSpeech, nil
	case errors.Is(err, dispatch.ErrExhausted):
		return OutcomeExhausted, err
	default:
		return OutcomeRejected, err
	}
}

// end closes the live session and returns to Idle.
func (o *Orchestrator) end(ctx context.Context, outcome Outcome, err error) {
	sess := o.sess
	if sess == nil {
		return
	}
	sess.Outcome, sess.Err = outcome, err
	log := observe.Logger(o.sessCtx)

	switch outcome {
	case OutcomeCompleted:
		log.Info("session completed")
	case OutcomeRejected:
		log.Error("recognition rejected", "err", err)
	case OutcomeExhausted, OutcomeHandoffFailed:
		log.Warn("session failed", "outcome", string(outcome), "err", err)
	default:
		log.Debug("session discarded", "outcome", string(outcome))
	}

	o.span.SetAttributes(attribute.String("session.outcome", string(outcome)))
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, string(outcome))
	}
	o.span.End()
	o.metrics.ActiveSessions.Add(ctx, -1)

	if o.workCancel != nil {
		o.workCancel()
		o.workCancel = nil
	}
	o.sess, o.sessCtx, o.span = nil, nil, nil

	o.detector.Reset()
	o.segmenter.Reset()
	o.transition(ctx, Idle)

	if o.onSession != nil {
		o.onSession(*sess)
	}
	switch outcome {
	case OutcomeExhausted, OutcomeRejected, OutcomeHandoffFailed:
		if o.onFailure != nil {
			o.onFailure(*sess)
		}
	}
}

func (o *Orchestrator) transition(ctx context.Context, to State) {
	from := State(o.state.Swap(int32(to)))
	if from == to {
		return
	}
	o.metrics.RecordTransition(ctx, from.String(), to.String())
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
}

// advance moves from one state to another only if the machine is still in
// from. The worker uses it so a late step cannot override shutdown.
func (o *Orchestrator) advance(ctx context.Context, from, to State) bool {
	if !o.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	o.metrics.RecordTransition(ctx, from.String(), to.String())
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
	return true
}
