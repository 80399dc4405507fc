// Command chippy is the always-on voice front end of the chippy tutor. It
// listens for the wake phrase, records the learner's question, recognizes
// it and hands the text to the tutor backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/chippy-tutor/chippy/internal/app"
	"github.com/chippy-tutor/chippy/internal/config"
	"github.com/chippy-tutor/chippy/internal/meter"
	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/audio/portaudio"
	"github.com/chippy-tutor/chippy/pkg/audio/wavfile"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

// flags holds the parsed command line.
type flags struct {
	configPath   string
	listDevices  bool
	testWakeWord bool
	testMic      bool
	testDuration time.Duration
	device       int
	deviceSet    bool
	input        string
	realtime     bool
	logLevel     string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("chippy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "chippy.yaml", "path to the YAML configuration file")
	fs.BoolVar(&f.listDevices, "list-devices", false, "list audio input devices and exit")
	fs.BoolVar(&f.testWakeWord, "test-wake-word", false, "run only the wake-word detector and report triggers")
	fs.BoolVar(&f.testMic, "test-microphone", false, "print microphone level and dominant frequency, then exit")
	fs.DurationVar(&f.testDuration, "test-duration", 5*time.Second, "how long -test-microphone listens")
	fs.IntVar(&f.device, "device", portaudio.DefaultDevice, "input device index (see -list-devices); -1 for the default device")
	fs.StringVar(&f.input, "input", "", "read audio from this WAV file instead of the microphone")
	fs.BoolVar(&f.realtime, "realtime", false, "with -input, replay the file at capture speed")
	fs.StringVar(&f.logLevel, "log-level", "", "override log_level from the config (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "device" {
			f.deviceSet = true
		}
	})
	if f.testWakeWord && f.testMic {
		return f, errors.New("-test-wake-word and -test-microphone are mutually exclusive")
	}
	return f, nil
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fl, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "chippy: %v\n", err)
		return 1
	}

	// ── Device listing needs no configuration ─────────────────────────────────
	if fl.listDevices {
		if err := listDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "chippy: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chippy: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("chippy starting",
		"version", version,
		"config", fl.configPath,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audio source ──────────────────────────────────────────────────────────
	src, err := openSource(cfg, fl)
	if err != nil {
		slog.Error("audio source unavailable", "err", err)
		return 1
	}

	switch {
	case fl.testMic:
		return testMicrophone(ctx, cfg, src, fl.testDuration)
	case fl.testWakeWord:
		return testWakeWord(ctx, cfg, src)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "chippy", ServiceVersion: version})
	if err != nil {
		_ = src.Close()
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		_ = src.Close()
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg, fl)

	application, err := app.New(cfg, *providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.Handler),
		app.WithFs(afero.NewOsFs()),
	)
	if err != nil {
		_ = src.Close()
		slog.Error("failed to initialise pipeline", "err", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}()

	slog.Info("ready, say the wake phrase", "phrase", cfg.WakeWord.Phrase)

	err = application.Run(ctx, src)
	switch {
	case err == nil:
		slog.Info("input finished")
	case errors.Is(err, context.Canceled):
		slog.Info("shutdown signal received")
	default:
		slog.Error("pipeline stopped", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file. The check modes fall back to defaults
// when the file is absent.
func loadConfig(fl flags) (*config.Config, error) {
	cfg, err := config.Load(fl.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if !fl.testMic && !fl.testWakeWord {
			return nil, fmt.Errorf("config file %q not found, copy configs/chippy.example.yaml to get started", fl.configPath)
		}
		cfg = config.Default()
	}
	if fl.deviceSet {
		cfg.Audio.DeviceIndex = fl.device
	}
	if fl.logLevel != "" {
		lvl := config.LogLevel(fl.logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("-log-level %q is invalid", fl.logLevel)
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// openSource opens the WAV file given by -input, or the microphone.
func openSource(cfg *config.Config, fl flags) (audio.Source, error) {
	format := cfg.Audio.Format()
	if fl.input != "" {
		opts := []wavfile.Option{wavfile.WithTrailingSilence(cfg.VAD.SilenceDuration + format.FramePeriod())}
		if fl.realtime {
			opts = append(opts, wavfile.WithRealtime())
		}
		src, err := wavfile.Open(afero.NewOsFs(), fl.input, format, opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("replaying wav input", "path", fl.input, "duration", src.Duration())
		return src, nil
	}
	return portaudio.Open(portaudio.Config{
		DeviceIndex: cfg.Audio.DeviceIndex,
		Format:      format,
		QueueFrames: cfg.Audio.QueueFrames,
	})
}

// ── Check modes ───────────────────────────────────────────────────────────────

func listDevices(w io.Writer) error {
	devs, err := portaudio.Devices()
	if err != nil {
		return err
	}
	if len(devs) == 0 {
		fmt.Fprintln(w, "no audio input devices found")
		return nil
	}
	fmt.Fprintln(w, "audio input devices:")
	for _, d := range devs {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %3d  %-40s  %d ch  %.0f Hz\n", marker, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	fmt.Fprintln(w, "(* default device; select one with -device N)")
	return nil
}

func testMicrophone(ctx context.Context, cfg *config.Config, src audio.Source, d time.Duration) int {
	defer src.Close()
	fmt.Printf("testing microphone for %s, speak now\n", d)
	sum, err := meter.New(cfg.VAD.SilenceThreshold).Run(ctx, src, d, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("microphone test failed", "err", err)
		return 1
	}
	fmt.Printf("\n%d frames, %d above the silence threshold, peak RMS %.4f, mean RMS %.4f\n",
		sum.Frames, sum.SpeechFrames, sum.MaxRMS, sum.MeanRMS)
	if sum.SpeechFrames == 0 {
		fmt.Println("no speech detected; check the device and vad.silence_threshold")
	}
	return 0
}

func testWakeWord(ctx context.Context, cfg *config.Config, src audio.Source) int {
	det, err := app.NewDetector(cfg, nil)
	if err != nil {
		_ = src.Close()
		slog.Error("wake-word model unavailable", "err", err)
		return 1
	}
	defer det.Close()

	n, err := app.WakeCheck(ctx, det, src, os.Stdout, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("wake-word test failed", "err", err)
		return 1
	}
	fmt.Printf("%d wake-word triggers\n", n)
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, fl flags) {
	input := "microphone"
	if fl.input != "" {
		input = fl.input
	} else if cfg.Audio.DeviceIndex >= 0 {
		input = fmt.Sprintf("device %d", cfg.Audio.DeviceIndex)
	}
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         chippy · startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Input", input)
	printRow(w, "Wake phrase", cfg.WakeWord.Phrase)
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printRow(w, "STT fallbacks", fmt.Sprint(len(cfg.Providers.STTFallbacks)))
	printProvider(w, "Responder", cfg.Providers.Responder.Name, cfg.Providers.Responder.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Diagnostics", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
