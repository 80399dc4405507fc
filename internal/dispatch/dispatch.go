// Package dispatch submits sealed utterances to a speech recogniser with a
// bounded retry policy.
//
// Transient failures (network errors, timeouts, 5xx, rate limiting) are
// retried with exponential backoff: the delay starts at BaseDelay, doubles
// after each failed attempt and never exceeds MaxDelay. A random additive
// jitter of up to Jitter×delay spreads retries from many devices apart.
// Non-retriable failures (authentication, malformed request) return at once
// without consuming the retry budget. A cancelled context stops the loop
// immediately; no retry is attempted after cancellation.
//
// A [Dispatcher] holds no state between calls and is safe for concurrent use.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
)

// ErrExhausted is returned (wrapping the last failure) when every attempt
// failed with a retriable error.
var ErrExhausted = errors.New("dispatch: retries exhausted")

// Default retry parameters.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 4 * time.Second
)

// Config configures the retry policy.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Defaults to 3 if zero.
	MaxAttempts int

	// BaseDelay is the wait after the first failure. Defaults to 500ms.
	BaseDelay time.Duration

	// MaxDelay caps every wait, jitter included. Defaults to 4s.
	MaxDelay time.Duration

	// Jitter is the additive random fraction of each delay, in [0, 1].
	Jitter float64

	// AttemptTimeout bounds a single recognition call. Zero means only the
	// caller's context applies.
	AttemptTimeout time.Duration

	// Language is the BCP-47 tag sent with every request.
	Language string
}

// Result is a successful recognition.
type Result struct {
	stt.Result

	// Attempts is how many calls were made.
	Attempts int
}

// Dispatcher runs recognition calls under the retry policy.
type Dispatcher struct {
	rec      stt.Recognizer
	cfg      Config
	provider string
	metrics  *observe.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	rand     func() float64
}

// Option is a functional option for [New].
type Option func(*Dispatcher)

// WithSleep replaces the backoff wait. The function must return ctx.Err()
// if ctx is done before d elapses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(d *Dispatcher) { d.rand = fn }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(d *Dispatcher) { d.provider = name }
}

// New creates a Dispatcher around rec.
func New(rec stt.Recognizer, cfg Config, opts ...Option) (*Dispatcher, error) {
	if rec == nil {
		return nil, errors.New("dispatch: recognizer must not be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return nil, fmt.Errorf("dispatch: jitter %.2f out of range [0, 1]", cfg.Jitter)
	}
	d := &Dispatcher{
		rec:      rec,
		cfg:      cfg,
		provider: "stt",
		sleep:    sleepCtx,
		rand:     rand.Float64,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d, nil
}

// Backoff returns the wait before attempt+1 after attempt failures, without
// jitter: BaseDelay doubled attempt-1 times, capped at MaxDelay.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < attempt && delay < d.cfg.MaxDelay; i++ {
		delay *= 2
	}
	return min(delay, d.cfg.MaxDelay)
}

func (d *Dispatcher) jittered(attempt int) time.Duration {
	delay := d.Backoff(attempt)
	if d.cfg.Jitter > 0 {
		delay += time.Duration(d.rand() * d.cfg.Jitter * float64(delay))
	}
	return min(delay, d.cfg.MaxDelay)
}

// Recognize transcribes u. It returns [stt.ErrNoSpeech] when the service
// heard nothing, a wrapped [*stt.Error] for non-retriable failures, a
// wrapped [ErrExhausted] when the retry budget ran out, and ctx.Err() when
// ctx was cancelled. Text is only ever returned complete.
func (d *Dispatcher) Recognize(ctx context.Context, u *audio.Utterance) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "dispatch.recognize")
	defer span.End()
	log := observe.Logger(ctx)

	req := stt.Request{
		Audio:      u.PCM(),
		SampleRate: u.SampleRate(),
		Channels:   u.Channels(),
		Language:   d.cfg.Language,
	}

	res, err := d.run(ctx, req)
	span.SetAttributes(attribute.Int("dispatch.attempts", res.Attempts))

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrNoSpeech):
		status = "no_speech"
	case ctx.Err() != nil:
		status = "cancelled"
	case errors.Is(err, ErrExhausted):
		status = "exhausted"
	default:
		status = "rejected"
	}
	d.metrics.RecordDispatchOutcome(ctx, status)

	if err != nil && status != "no_speech" && status != "cancelled" {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		log.Warn("recognition failed", "status", status, "attempts", res.Attempts, "err", err)
	}
	return res, err
}

func (d *Dispatcher) run(ctx context.Context, req stt.Request) (Result, error) {
	log := observe.Logger(ctx)
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1}, err
		}

		res, err := d.attempt(ctx, req)
		if err == nil {
			if strings.TrimSpace(res.Text) == "" {
				return Result{Attempts: attempt}, stt.ErrNoSpeech
			}
			return Result{Result: res, Attempts: attempt}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Attempts: attempt}, ctxErr
		}
		if errors.Is(err, stt.ErrNoSpeech) {
			return Result{Attempts: attempt}, err
		}

		kind := stt.Classify(err)
		d.metrics.RecordProviderError(ctx, d.provider, kind.String())
		if !kind.Retriable() {
			return Result{Attempts: attempt}, fmt.Errorf("dispatch: %w", err)
		}
		lastErr = err

		if attempt == d.cfg.MaxAttempts {
			break
		}
		wait := d.jittered(attempt)
		log.Debug("recognition attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", d.cfg.MaxAttempts,
			"kind", kind.String(),
			"backoff", wait,
			"err", err,
		)
		if err := d.sleep(ctx, wait); err != nil {
			return Result{Attempts: attempt}, err
		}
	}
	return Result{Attempts: d.cfg.MaxAttempts},
		fmt.Errorf("%w after %d attempts: %w", ErrExhausted, d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, req stt.Request) (stt.Result, error) {
	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := d.rec.Recognize(ctx, req)

	status := "ok"
	if err != nil {
		switch kind := stt.Classify(err); {
		case errors.Is(err, stt.ErrNoSpeech):
			status = "no_speech"
		case kind == 0:
			status = "cancelled"
		default:
			status = kind.String()
		}
	}
	d.metrics.RecordRecognitionAttempt(ctx, d.provider, status, time.Since(start))
	return res, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
