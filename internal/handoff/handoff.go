// Package handoff runs the downstream half of an interaction: the recognised
// text goes through anonymisation, response generation, restoration, speech
// synthesis and playback, strictly in that order.
//
// Every stage runs under its own deadline and is recorded as a
// "handoff.<stage>" span and a stage-latency sample. A failed response stage
// is covered by a spoken fallback reply so the learner is never met with
// silence; any other failure ends the handoff with an error.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/responder"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

// Stage names, as used in spans and metrics.
const (
	StageAnonymize  = "anonymize"
	StageRespond    = "respond"
	StageRestore    = "restore"
	StageSynthesize = "synthesize"
	StagePlay       = "play"
)

// DefaultFallbackReply is spoken when response generation fails and no other
// fallback is configured.
const DefaultFallbackReply = "I'm having trouble thinking right now. Could you try again?"

// Config tunes a [Pipeline].
type Config struct {
	// StageTimeout bounds each stage. Default 30s.
	StageTimeout time.Duration

	// FallbackReply is spoken when the responder fails. Default
	// [DefaultFallbackReply].
	FallbackReply string

	// LearnerID is forwarded to the responder.
	LearnerID string
}

// Pipeline implements the orchestrator's handler contract.
//
// The synthesizer and player are optional: without them the reply is only
// logged, which is how hardware-free runs work.
type Pipeline struct {
	responder  responder.Responder
	synth      tts.Synthesizer
	player     audio.Player
	anonymizer Anonymizer
	metrics    *observe.Metrics
	onReply    func(sessionID, question, reply string)
	cfg        Config
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithSpeech sets the synthesizer and player used to speak the reply.
func WithSpeech(s tts.Synthesizer, p audio.Player) Option {
	return func(h *Pipeline) {
		h.synth = s
		h.player = p
	}
}

// WithAnonymizer replaces the default [Passthrough] anonymizer.
func WithAnonymizer(a Anonymizer) Option {
	return func(h *Pipeline) { h.anonymizer = a }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Pipeline) { h.metrics = m }
}

// WithReplyHook registers fn to be called with every reply before it is
// spoken.
func WithReplyHook(fn func(sessionID, question, reply string)) Option {
	return func(h *Pipeline) { h.onReply = fn }
}

// New creates a Pipeline around resp.
func New(resp responder.Responder, cfg Config, opts ...Option) (*Pipeline, error) {
	if resp == nil {
		return nil, errors.New("handoff: responder must not be nil")
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}
	h := &Pipeline{
		responder:  resp,
		anonymizer: Passthrough{},
		cfg:        cfg,
	}
	for _, o := range opts {
		o(h)
	}
	if (h.synth == nil) != (h.player == nil) {
		return nil, errors.New("handoff: synthesizer and player must be set together")
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h, nil
}

// Handle runs every stage for one session's recognised text.
func (h *Pipeline) Handle(ctx context.Context, sessionID, text string) error {
	log := observe.Logger(ctx).With("session_id", sessionID)

	masked, err := stage(ctx, h, StageAnonymize, func(ctx context.Context) (string, error) {
		return h.anonymizer.Anonymize(ctx, sessionID, text)
	})
	if err != nil {
		return err
	}

	reply, err := stage(ctx, h, StageRespond, func(ctx context.Context) (string, error) {
		r, err := h.responder.Respond(ctx, responder.Request{
			SessionID: sessionID,
			LearnerID: h.cfg.LearnerID,
			Text:      masked,
		})
		if err == nil && strings.TrimSpace(r) == "" {
			err = errors.New("empty reply")
		}
		return r, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Warn("handoff: response failed, speaking fallback", "err", err)
		reply = h.cfg.FallbackReply
	} else {
		reply, err = stage(ctx, h, StageRestore, func(ctx context.Context) (string, error) {
			return h.anonymizer.Restore(ctx, sessionID, reply)
		})
		if err != nil {
			return err
		}
	}

	log.Info("tutor reply", "reply", reply)
	if h.onReply != nil {
		h.onReply(sessionID, text, reply)
	}
	if h.synth == nil {
		return nil
	}

	clip, err := stage(ctx, h, StageSynthesize, func(ctx context.Context) (audio.Clip, error) {
		return h.synth.Synthesize(ctx, reply)
	})
	if err != nil {
		return err
	}
	_, err = stage(ctx, h, StagePlay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.player.Play(ctx, clip)
	})
	return err
}

// stage runs fn under the stage deadline inside a span and records its
// latency.
func stage[T any](ctx context.Context, h *Pipeline, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "handoff."+name)
	defer span.End()
	span.SetAttributes(attribute.String("handoff.stage", name))

	ctx, cancel := context.WithTimeout(ctx, h.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	out, err := fn(ctx)
	h.metrics.RecordHandoffStage(ctx, name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return zero, fmt.Errorf("handoff: %s: %w", name, err)
	}
	return out, nil
}
