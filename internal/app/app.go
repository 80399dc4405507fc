// Package app wires the chippy subsystems into a running voice front end.
//
// The App struct owns the full lifecycle: New builds and connects every
// stage from the immutable configuration, Run drives the pipeline (and the
// diagnostics server, when enabled) until the context is cancelled or the
// audio source ends, and Close releases native resources.
//
// For testing, inject doubles via functional options (WithScorer, WithFs,
// WithMetrics). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/chippy-tutor/chippy/internal/config"
	"github.com/chippy-tutor/chippy/internal/dispatch"
	"github.com/chippy-tutor/chippy/internal/handoff"
	"github.com/chippy-tutor/chippy/internal/health"
	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/internal/orchestrator"
	"github.com/chippy-tutor/chippy/internal/recording"
	"github.com/chippy-tutor/chippy/internal/transcript"
	"github.com/chippy-tutor/chippy/internal/transcript/phonetic"
	"github.com/chippy-tutor/chippy/internal/vad"
	"github.com/chippy-tutor/chippy/internal/wakeword"
	"github.com/chippy-tutor/chippy/internal/wakeword/sherpa"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/provider/responder"
	"github.com/chippy-tutor/chippy/pkg/provider/responder/echo"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
	"github.com/chippy-tutor/chippy/pkg/provider/tts"
)

// serverShutdownTimeout bounds the diagnostics server drain.
const serverShutdownTimeout = 2 * time.Second

// Providers holds one interface value per provider slot. Populated by main
// via the config registry.
type Providers struct {
	// STT is required. It may already be a fallback group.
	STT stt.Recognizer

	// STTName labels recognition metrics. Defaults to "stt".
	STTName string

	// Responder generates tutor replies. Nil uses the echo responder.
	Responder responder.Responder

	// TTS and Player speak the reply. Both nil runs text-only.
	TTS    tts.Synthesizer
	Player audio.Player
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers Providers

	scorer         wakeword.Scorer
	fs             afero.Fs
	metrics        *observe.Metrics
	metricsHandler http.Handler
	onReply        func(sessionID, question, reply string)
	onFailure      func(orchestrator.Session)

	detector *wakeword.Detector
	orch     *orchestrator.Orchestrator
	health   *health.Handler
	ready    health.Gate

	addrMu sync.Mutex
	addr   net.Addr

	closeOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithScorer injects a wake-word scorer instead of loading the sherpa-onnx
// model from config.
func WithScorer(s wakeword.Scorer) Option {
	return func(a *App) { a.scorer = s }
}

// WithFs sets the filesystem utterance captures are written to. Defaults to
// the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics of the diagnostics server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithReplyHook registers fn to be called with every tutor reply.
func WithReplyHook(fn func(sessionID, question, reply string)) Option {
	return func(a *App) { a.onReply = fn }
}

// WithFailureHook registers fn to be called for every session that ends in
// a recoverable failure, after it has been counted.
func WithFailureHook(fn func(orchestrator.Session)) Option {
	return func(a *App) { a.onFailure = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires every stage together. A wake-word model that cannot be loaded is
// returned as an error wrapping [wakeword.ErrModelLoad]; callers treat it as
// fatal.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers.STT == nil {
		return nil, errors.New("app: stt provider must not be nil")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.providers.Responder == nil {
		a.providers.Responder = echo.Responder{}
	}
	if a.providers.STTName == "" {
		a.providers.STTName = "stt"
	}

	// ── 1. Wake word ─────────────────────────────────────────────────────
	det, err := NewDetector(cfg, a.scorer)
	if err != nil {
		return nil, err
	}
	a.detector = det

	// ── 2. Segmenter ─────────────────────────────────────────────────────
	seg, err := vad.New(vadConfig(cfg))
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 3. Dispatcher ────────────────────────────────────────────────────
	disp, err := dispatch.New(a.providers.STT, dispatchConfig(cfg),
		dispatch.WithMetrics(a.metrics),
		dispatch.WithProviderName(a.providers.STTName),
	)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 4. Handoff ───────────────────────────────────────────────────────
	hopts := []handoff.Option{handoff.WithMetrics(a.metrics)}
	if a.providers.TTS != nil && a.providers.Player != nil {
		hopts = append(hopts, handoff.WithSpeech(a.providers.TTS, a.providers.Player))
	}
	if a.onReply != nil {
		hopts = append(hopts, handoff.WithReplyHook(a.onReply))
	}
	pipeline, err := handoff.New(a.providers.Responder, handoff.Config{
		StageTimeout:  cfg.Session.HandoffTimeout,
		FallbackReply: cfg.Session.FallbackReply,
		LearnerID:     cfg.Session.LearnerID,
	}, hopts...)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 5. Orchestrator ──────────────────────────────────────────────────
	oopts := []orchestrator.Option{
		orchestrator.WithHandler(pipeline),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithFailureHandler(a.sessionFailed),
	}
	if phrase := cfg.WakeWord.Phrase; phrase != "" {
		stripper := transcript.NewStripper(phrase, phonetic.New())
		oopts = append(oopts, orchestrator.WithTranscriptFilter(stripper.Strip))
	}
	if dir := cfg.Session.CaptureDir; dir != "" {
		rec, err := recording.New(a.fs, dir)
		if err != nil {
			_ = det.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		oopts = append(oopts, orchestrator.WithRecorder(rec))
		slog.Info("capturing utterances", "dir", dir)
	}
	orch, err := orchestrator.New(det, seg, disp, orchestrator.Config{
		IDPrefix:      cfg.Session.IDPrefix,
		ShutdownGrace: cfg.Session.ShutdownGrace,
	}, oopts...)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.orch = orch

	// ── 6. Health ────────────────────────────────────────────────────────
	a.health = health.New(
		health.WithChecker("pipeline", a.ready.Check),
		health.WithInfo(func() map[string]string {
			return map[string]string{
				"state":    a.orch.State().String(),
				"provider": a.providers.STTName,
			}
		}),
	)
	a.ready.Close("not started")

	return a, nil
}

// NewDetector builds the wake-word detector. A nil scorer loads the
// sherpa-onnx keyword spotter from cfg.WakeWord.Model.
func NewDetector(cfg *config.Config, scorer wakeword.Scorer) (*wakeword.Detector, error) {
	if scorer == nil {
		m := cfg.WakeWord.Model
		s, err := sherpa.New(cfg.Audio.SampleRate, cfg.WakeWord.Sensitivity, sherpa.ModelConfig{
			Encoder:      m.Encoder,
			Decoder:      m.Decoder,
			Joiner:       m.Joiner,
			Tokens:       m.Tokens,
			KeywordsFile: m.KeywordsFile,
			NumThreads:   m.NumThreads,
			Provider:     m.Provider,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		scorer = s
	}
	det, err := wakeword.New(scorer, cfg.WakeWord.Sensitivity)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return det, nil
}

func vadConfig(cfg *config.Config) vad.Config {
	v := cfg.VAD
	return vad.Config{
		Format:            cfg.Audio.Format(),
		SilenceThreshold:  v.SilenceThreshold,
		SilenceDuration:   v.SilenceDuration,
		MinSpeechDuration: v.MinSpeechDuration,
		PreRoll:           v.PreRoll,
		MaxDuration:       v.MaxDuration,
		ArmTimeout:        v.ArmTimeout,
	}
}

func dispatchConfig(cfg *config.Config) dispatch.Config {
	d := cfg.Dispatch
	return dispatch.Config{
		MaxAttempts:    d.MaxAttempts,
		BaseDelay:      d.BaseDelay,
		MaxDelay:       d.MaxDelay,
		Jitter:         d.Jitter,
		AttemptTimeout: d.AttemptTimeout,
		Language:       d.Language,
	}
}

// sessionFailed counts a failed session. The orchestrator has already
// logged it with the session's trace.
func (a *App) sessionFailed(sess orchestrator.Session) {
	a.metrics.RecordSessionFailure(context.Background(), string(sess.Outcome))
	if a.onFailure != nil {
		a.onFailure(sess)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// State returns the orchestrator's current state.
func (a *App) State() orchestrator.State { return a.orch.State() }

// Addr returns the diagnostics server address once it is listening, or nil.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// Run drives the pipeline from src until ctx is cancelled or src ends. It
// owns src. The diagnostics server, if configured, runs alongside and is
// shut down when the pipeline stops. Returns ctx.Err() on cancellation and
// nil when a finite source is exhausted.
func (a *App) Run(ctx context.Context, src audio.Source) error {
	runCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(runCtx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.addrMu.Lock()
		a.addr = ln.Addr()
		a.addrMu.Unlock()

		srv := &http.Server{
			Handler:           a.diagnosticsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()
		a.ready.Open()
		defer a.ready.Close("pipeline stopped")
		return a.orch.Run(gctx, src)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// diagnosticsHandler builds the /metrics, /healthz and /readyz mux.
func (a *App) diagnosticsHandler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Close releases the wake-word model. It is safe to call more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.detector.Close()
	})
	return err
}
