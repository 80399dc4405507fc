package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chippy-tutor/chippy/internal/observe"
	"github.com/chippy-tutor/chippy/internal/wakeword"
	"github.com/chippy-tutor/chippy/pkg/audio"
)

// WakeCheck runs only the wake-word detector over src and writes one line
// to w per trigger. It never records or dispatches. The detector is reset
// after each trigger so consecutive phrases are reported separately.
//
// It returns the number of triggers once src is exhausted, or ctx.Err() on
// cancellation. src is closed before returning.
func WakeCheck(ctx context.Context, det *wakeword.Detector, src audio.Source, w io.Writer, m *observe.Metrics) (int, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("failed to close audio source", "err", err)
		}
	}()

	fmt.Fprintf(w, "listening for the wake word (threshold %.2f), press Ctrl+C to stop\n", det.Threshold())
	triggers := 0
	for {
		f, err := src.NextFrame(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return triggers, ctx.Err()
		case errors.Is(err, io.EOF), errors.Is(err, audio.ErrSourceClosed):
			return triggers, nil
		default:
			return triggers, fmt.Errorf("app: wake check: %w", err)
		}

		ev, ok := det.Observe(f)
		if !ok {
			continue
		}
		triggers++
		m.RecordWakeTrigger(ctx, "accepted")
		fmt.Fprintf(w, "wake word detected  #%d  confidence %.2f  at %s\n",
			triggers, ev.Confidence, f.Timestamp.Round(10*time.Millisecond))
		det.Reset()
	}
}
