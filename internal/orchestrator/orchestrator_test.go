package orchestrator

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/chippy-tutor/chippy/internal/dispatch"
	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/internal/vad"
	"github.com/chippy-tutor/chippy/internal/wakeword"
	wakemock "github.com/chippy-tutor/chippy/internal/wakeword/mock"
	"github.com/chippy-tutor/chippy/pkg/audio"
	audiomock "github.com/chippy-tutor/chippy/pkg/audio/mock"
	"github.com/chippy-tutor/chippy/pkg/provider/stt"
	sttmock "github.com/chippy-tutor/chippy/pkg/provider/stt/mock"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1, FrameSize: 1024}

const (
	speechLevel  = 0.2
	silenceFrame = 0.0
)

// cycleLevels returns one interaction: a trigger frame, five silent pre-roll
// frames, speech frames of speech and the 32 silent frames that end it.
func cycleLevels(speech int) []float64 {
	levels := []float64{silenceFrame}
	levels = append(levels, audiomock.Repeat(silenceFrame, 5)...)
	levels = append(levels, audiomock.Repeat(speechLevel, speech)...)
	levels = append(levels, audiomock.Repeat(silenceFrame, 32)...)
	return levels
}

// hookLog records hook calls.
type hookLog struct {
	mu          sync.Mutex
	transitions []string
	sessions    []Session
	failures    []Session
}

func (p *hookLog) transition(from, to State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, from.String()+"->"+to.String())
}

func (p *hookLog) session(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, s)
}

func (p *hookLog) failure(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, s)
}

func (p *hookLog) snapshot() ([]string, []Session, []Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.transitions...),
		append([]Session(nil), p.sessions...),
		append([]Session(nil), p.failures...)
}

// textHandler records every handed-off text.
type textHandler struct {
	mu    sync.Mutex
	texts []string
	ids   []string
	err   error
}

func (h *textHandler) Handle(_ context.Context, sessionID, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, sessionID)
	h.texts = append(h.texts, text)
	return h.err
}

func (h *textHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

type harness struct {
	orch    *Orchestrator
	scorer  *wakemock.Scorer
	rec     *sttmock.Recognizer
	handler *textHandler
	hooks   *hookLog
}

func newHarness(t *testing.T, scorer *wakemock.Scorer, rec *sttmock.Recognizer, vcfg func(*vad.Config), opts ...Option) *harness {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	det, err := wakeword.New(scorer, 0.5)
	if err != nil {
		t.Fatalf("wakeword.New: %v", err)
	}
	cfg := vad.Config{
		Format:            testFormat,
		SilenceThreshold:  0.015,
		SilenceDuration:   2 * time.Second,
		MinSpeechDuration: 500 * time.Millisecond,
		PreRoll:           300 * time.Millisecond,
		MaxDuration:       15 * time.Second,
	}
	if vcfg != nil {
		vcfg(&cfg)
	}
	seg, err := vad.New(cfg)
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}
	disp, err := dispatch.New(rec, dispatch.Config{MaxAttempts: 3, Jitter: 0.2},
		dispatch.WithMetrics(metrics),
		dispatch.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}

	h := &harness{scorer: scorer, rec: rec, handler: &textHandler{}, hooks: &hookLog{}}
	opts = append([]Option{
		WithMetrics(metrics),
		WithHandler(h.handler),
		WithTransitionHook(h.hooks.transition),
		WithSessionHook(h.hooks.session),
		WithFailureHandler(h.hooks.failure),
	}, opts...)
	h.orch, err = New(det, seg, disp, Config{ShutdownGrace: time.Second}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func runWithTimeout(t *testing.T, ctx context.Context, o *Orchestrator, src audio.Source) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, src) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ─── Full cycle ───────────────────────────────────────────────────────────────

func TestRun_DispatchesSealedUtteranceOnce(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{Result: stt.Result{Text: "what is photosynthesis", Provider: "mock"}}
	h := newHarness(t, wakemock.TriggerAt(0), rec, nil)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, cycleLevels(20)...)}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.CallCount(); got != 1 {
		t.Fatalf("recognize calls = %d, want 1", got)
	}
	wantBytes := 25 * testFormat.FrameSize * 2
	if got := len(rec.RecognizeCalls[0].Req.Audio); got != wantBytes {
		t.Errorf("request audio = %d bytes, want %d (5 pre-roll + 20 speech frames)", got, wantBytes)
	}
	if got := h.handler.calls(); len(got) != 1 || got[0] != "what is photosynthesis" {
		t.Errorf("handed off = %q, want [what is photosynthesis]", got)
	}

	transitions, sessions, failures := h.hooks.snapshot()
	want := []string{
		"idle->armed",
		"armed->recording",
		"recording->dispatching",
		"dispatching->handoff",
		"handoff->idle",
	}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %q, want %q", s.Outcome, OutcomeCompleted)
	}
	if s.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", s.Attempts)
	}
	if s.Utterance == nil || len(s.Utterance.Frames) != 25 {
		t.Errorf("utterance frames = %v, want 25", s.Utterance)
	}
	if !regexp.MustCompile(`^CHIPPY_[0-9a-f]{8}$`).MatchString(s.ID) {
		t.Errorf("session id = %q, want CHIPPY_ + 8 hex", s.ID)
	}
	if len(failures) != 0 {
		t.Errorf("failures = %d, want 0", len(failures))
	}
	if !src.Closed() {
		t.Error("source not closed")
	}
	if h.orch.State() != Idle {
		t.Errorf("final state = %s, want idle", h.orch.State())
	}
}

func TestRun_ShortBurstKeepsSessionArmed(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{Result: stt.Result{Text: "never"}}
	h := newHarness(t, wakemock.TriggerAt(0), rec, func(c *vad.Config) {
		c.ArmTimeout = time.Second // 16 frames
	})
	levels := append(cycleLevels(3), audiomock.Repeat(silenceFrame, 2)...)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, levels...)}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.CallCount(); got != 0 {
		t.Errorf("recognize calls = %d, want 0", got)
	}
	transitions, sessions, failures := h.hooks.snapshot()
	want := []string{"idle->armed", "armed->recording", "recording->armed", "armed->idle"}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if len(sessions) != 1 || sessions[0].Outcome != OutcomeTooShort || sessions[0].Discarded != 1 {
		t.Errorf("sessions = %+v, want one too_short with one discarded burst", sessions)
	}
	if len(failures) != 0 {
		t.Errorf("semantic discard reported as failure: %+v", failures)
	}
}

func TestRun_QuestionAfterNoiseBurstIsDispatched(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{Result: stt.Result{Text: "what is photosynthesis", Provider: "mock"}}
	h := newHarness(t, wakemock.TriggerAt(0), rec, func(c *vad.Config) {
		c.ArmTimeout = 30 * time.Second
	})
	// Trigger, a cough, two seconds of silence, then the question.
	levels := []float64{silenceFrame}
	levels = append(levels, audiomock.Repeat(silenceFrame, 5)...)
	levels = append(levels, speechLevel)
	levels = append(levels, audiomock.Repeat(silenceFrame, 32)...)
	levels = append(levels, audiomock.Repeat(speechLevel, 20)...)
	levels = append(levels, audiomock.Repeat(silenceFrame, 32)...)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, levels...)}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.CallCount(); got != 1 {
		t.Fatalf("recognize calls = %d, want 1", got)
	}
	wantBytes := 25 * testFormat.FrameSize * 2
	if got := len(rec.RecognizeCalls[0].Req.Audio); got != wantBytes {
		t.Errorf("request audio = %d bytes, want %d (5 pre-roll + 20 speech frames)", got, wantBytes)
	}
	if got := h.handler.calls(); len(got) != 1 || got[0] != "what is photosynthesis" {
		t.Errorf("handed off = %q, want [what is photosynthesis]", got)
	}

	transitions, sessions, _ := h.hooks.snapshot()
	want := []string{
		"idle->armed",
		"armed->recording",
		"recording->armed",
		"armed->recording",
		"recording->dispatching",
		"dispatching->handoff",
		"handoff->idle",
	}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if s := sessions[0]; s.Outcome != OutcomeCompleted || s.Discarded != 1 {
		t.Errorf("session = %+v, want completed with one discarded burst", s)
	}
}

func TestRun_NoSpeechAfterWakeTimesOut(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{}
	h := newHarness(t, wakemock.TriggerAt(0), rec, func(c *vad.Config) {
		c.ArmTimeout = time.Second
	})
	levels := append([]float64{silenceFrame}, audiomock.Repeat(silenceFrame, 20)...)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, levels...)}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.CallCount(); got != 0 {
		t.Errorf("recognize calls = %d, want 0", got)
	}
	transitions, sessions, _ := h.hooks.snapshot()
	want := []string{"idle->armed", "armed->idle"}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if len(sessions) != 1 || sessions[0].Outcome != OutcomeFalseWake {
		t.Errorf("sessions = %+v, want one false_wake", sessions)
	}
}

// ─── Single-session guarantee ─────────────────────────────────────────────────

func TestRun_SecondTriggerWhileArmedIsIgnored(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{Result: stt.Result{Text: "hello"}}
	// Frame 3 is inside the silent pre-roll, frame 10 inside speech.
	h := newHarness(t, wakemock.TriggerAt(0, 3, 10), rec, nil)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, cycleLevels(20)...)}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	transitions, sessions, _ := h.hooks.snapshot()
	armed := 0
	for _, tr := range transitions {
		if tr == "idle->armed" {
			armed++
		}
	}
	if armed != 1 {
		t.Errorf("idle->armed transitions = %d, want 1", armed)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(sessions))
	}
	if got := rec.CallCount(); got != 1 {
		t.Errorf("recognize calls = %d, want 1", got)
	}
}

// ─── Failures ─────────────────────────────────────────────────────────────────

func TestRun_ExhaustedRetriesReturnToIdleAndRecover(t *testing.T) {
	t.Parallel()

	transient := stt.Transient("mock", io.ErrUnexpectedEOF)
	rec := &sttmock.Recognizer{
		Responses: []sttmock.Response{{Err: transient}, {Err: transient}, {Err: transient}},
		Result:    stt.Result{Text: "second time lucky"},
	}

	first := cycleLevels(20)
	pad := 4
	levels := append([]float64(nil), first...)
	levels = append(levels, audiomock.Repeat(silenceFrame, pad)...)
	second := uint64(len(levels))
	levels = append(levels, cycleLevels(20)...)

	h := newHarness(t, wakemock.TriggerAt(0, second), rec, nil)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, levels...)}
	// Hold the first padding frame until the failed session's result is
	// ready so the second cycle starts from Idle.
	src.OnFrame = func(i int) {
		if i != len(first) {
			return
		}
		deadline := time.Now().Add(2 * time.Second)
		for len(h.orch.results) == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, sessions, failures := h.hooks.snapshot()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].Outcome != OutcomeExhausted {
		t.Errorf("first outcome = %q, want %q", sessions[0].Outcome, OutcomeExhausted)
	}
	if !errors.Is(sessions[0].Err, dispatch.ErrExhausted) {
		t.Errorf("first err = %v, want ErrExhausted", sessions[0].Err)
	}
	if sessions[0].Attempts != 3 {
		t.Errorf("first attempts = %d, want 3", sessions[0].Attempts)
	}
	if sessions[1].Outcome != OutcomeCompleted {
		t.Errorf("second outcome = %q, want %q", sessions[1].Outcome, OutcomeCompleted)
	}
	if sessions[0].ID == sessions[1].ID {
		t.Errorf("session ids repeat: %q", sessions[0].ID)
	}
	if len(failures) != 1 || failures[0].ID != sessions[0].ID {
		t.Errorf("failures = %+v, want the first session only", failures)
	}
	if got := rec.CallCount(); got != 4 {
		t.Errorf("recognize calls = %d, want 4", got)
	}
	if got := h.handler.calls(); len(got) != 1 || got[0] != "second time lucky" {
		t.Errorf("handed off = %q, want [second time lucky]", got)
	}
}

func TestRun_OutcomeClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		resp        sttmock.Response
		filter      func(string) string
		handlerErr  error
		wantOutcome Outcome
		wantFailure bool
		wantHandoff int
	}{
		{
			name:        "auth failure is rejected",
			resp:        sttmock.Response{Err: &stt.Error{Kind: stt.KindAuth, Provider: "mock", StatusCode: 401, Err: errors.New("bad key")}},
			wantOutcome: OutcomeRejected,
			wantFailure: true,
		},
		{
			name:        "no speech is silent",
			resp:        sttmock.Response{Err: stt.ErrNoSpeech},
			wantOutcome: OutcomeNoSpeech,
		},
		{
			name:        "wake phrase only",
			resp:        sttmock.Response{Result: stt.Result{Text: "hello chippy"}},
			filter:      func(string) string { return "" },
			wantOutcome: OutcomeNoSpeech,
		},
		{
			name:        "filter rewrites text",
			resp:        sttmock.Response{Result: stt.Result{Text: "hello chippy tell me a joke"}},
			filter:      func(s string) string { return strings.TrimPrefix(s, "hello chippy ") },
			wantOutcome: OutcomeCompleted,
			wantHandoff: 1,
		},
		{
			name:        "handoff failure",
			resp:        sttmock.Response{Result: stt.Result{Text: "hi"}},
			handlerErr:  errors.New("speaker unplugged"),
			wantOutcome: OutcomeHandoffFailed,
			wantFailure: true,
			wantHandoff: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &sttmock.Recognizer{Responses: []sttmock.Response{tt.resp}}
			var opts []Option
			if tt.filter != nil {
				opts = append(opts, WithTranscriptFilter(tt.filter))
			}
			h := newHarness(t, wakemock.TriggerAt(0), rec, nil, opts...)
			h.handler.err = tt.handlerErr
			src := &audiomock.Source{Frames: audiomock.Frames(testFormat, cycleLevels(20)...)}

			if err := runWithTimeout(t, context.Background(), h.orch, src); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := rec.CallCount(); got != 1 {
				t.Errorf("recognize calls = %d, want 1", got)
			}
			_, sessions, failures := h.hooks.snapshot()
			if len(sessions) != 1 {
				t.Fatalf("sessions = %d, want 1", len(sessions))
			}
			if sessions[0].Outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", sessions[0].Outcome, tt.wantOutcome)
			}
			if got := len(failures) == 1; got != tt.wantFailure {
				t.Errorf("failure reported = %v, want %v", got, tt.wantFailure)
			}
			if got := len(h.handler.calls()); got != tt.wantHandoff {
				t.Errorf("handoff calls = %d, want %d", got, tt.wantHandoff)
			}
			if h.orch.State() != Idle {
				t.Errorf("final state = %s, want idle", h.orch.State())
			}
		})
	}
}

// ─── Frame handling ───────────────────────────────────────────────────────────

func TestRun_DiscardsFramesWhileDispatching(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	rec := &sttmock.Recognizer{Block: true, Started: started}
	scorer := wakemock.TriggerAt(0)
	h := newHarness(t, scorer, rec, nil)

	cycle := cycleLevels(20)
	levels := append(append([]float64(nil), cycle...), audiomock.Repeat(speechLevel, 10)...)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, levels...), Hold: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx, src) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition never started")
	}
	deadline := time.Now().Add(2 * time.Second)
	for src.Delivered() < len(levels) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if scored := scorer.Scored(); scored != len(cycle) {
		t.Errorf("frames scored = %d, want %d (none while dispatching)", scored, len(cycle))
	}
	_, sessions, failures := h.hooks.snapshot()
	if len(sessions) != 1 || sessions[0].Outcome != OutcomeCancelled {
		t.Errorf("sessions = %+v, want one cancelled", sessions)
	}
	if len(failures) != 0 {
		t.Errorf("cancellation reported as failure: %+v", failures)
	}
}

func TestRun_CancelWhileRecordingReleasesSource(t *testing.T) {
	t.Parallel()

	rec := &sttmock.Recognizer{Result: stt.Result{Text: "never"}}
	h := newHarness(t, wakemock.TriggerAt(0), rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &audiomock.Source{
		Frames: audiomock.Frames(testFormat, cycleLevels(20)...),
		Hold:   true,
		// Frame 12 is mid-speech.
		OnFrame: func(i int) {
			if i == 12 {
				cancel()
			}
		},
	}

	err := runWithTimeout(t, ctx, h.orch, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if !src.Closed() {
		t.Error("source not closed after cancel")
	}
	if got := rec.CallCount(); got != 0 {
		t.Errorf("recognize calls = %d, want 0", got)
	}
	_, sessions, _ := h.hooks.snapshot()
	if len(sessions) != 1 || sessions[0].Outcome != OutcomeCancelled {
		t.Errorf("sessions = %+v, want one cancelled", sessions)
	}
	if h.orch.State() != Idle {
		t.Errorf("final state = %s, want idle", h.orch.State())
	}
}

func TestRun_SourceErrorIsReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	h := newHarness(t, wakemock.TriggerAt(), &sttmock.Recognizer{}, nil)
	src := &audiomock.Source{Frames: audiomock.Frames(testFormat, 0, 0), FrameErr: boom}

	err := runWithTimeout(t, context.Background(), h.orch, src)
	if !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want %v", err, boom)
	}
	if !src.Closed() {
		t.Error("source not closed")
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, wakemock.TriggerAt(), &sttmock.Recognizer{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	src := &audiomock.Source{Hold: true}
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx, src) }()

	deadline := time.Now().Add(2 * time.Second)
	for !h.orch.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := h.orch.Run(ctx, &audiomock.Source{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run err = %v, want ErrAlreadyRunning", err)
	}
	cancel()
	<-done
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	det, _ := wakeword.New(wakemock.TriggerAt(), 0.5)
	seg, _ := vad.New(vad.Config{Format: testFormat})
	rec := &sttmock.Recognizer{}
	disp, _ := dispatch.New(rec, dispatch.Config{})

	if _, err := New(nil, seg, disp, Config{}); err == nil {
		t.Error("expected error for nil detector")
	}
	if _, err := New(det, nil, disp, Config{}); err == nil {
		t.Error("expected error for nil segmenter")
	}
	if _, err := New(det, seg, nil, Config{}); err == nil {
		t.Error("expected error for nil recognizer")
	}
	o, err := New(det, seg, disp, Config{IDPrefix: "TEST_"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if id := o.newID(); !strings.HasPrefix(id, "TEST_") || len(id) != len("TEST_")+8 {
		t.Errorf("id = %q, want TEST_ + 8 chars", id)
	}
}
