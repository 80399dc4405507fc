package wavfile_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/chippy-tutor/chippy/pkg/audio"
	"github.com/chippy-tutor/chippy/pkg/audio/wavfile"
)

var format16k = audio.Format{SampleRate: 16000, Channels: 1, FrameSize: 160}

func writeWAV(t *testing.T, fs afero.Fs, path string, samples []int16, rate, channels int) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := audio.WriteWAV(f, samples, rate, channels); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
}

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i + 1)
	}
	return out
}

func readAll(t *testing.T, src audio.Source) []audio.Frame {
	t.Helper()
	var frames []audio.Frame
	for {
		f, err := src.NextFrame(context.Background())
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		frames = append(frames, f)
	}
}

func TestSource_Frames(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", ramp(400), 16000, 1)

	src, err := wavfile.Open(fs, "/in.wav", format16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	frames := readAll(t, src)
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Seq != uint64(i) {
			t.Errorf("frames[%d].Seq = %d, want %d", i, f.Seq, i)
		}
		if len(f.Samples) != 160 {
			t.Errorf("frames[%d] has %d samples, want 160", i, len(f.Samples))
		}
		if want := time.Duration(i) * 10 * time.Millisecond; f.Timestamp != want {
			t.Errorf("frames[%d].Timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}
	if frames[0].Samples[0] != 1 || frames[2].Samples[79] != 400 {
		t.Errorf("sample order not preserved")
	}
	if frames[2].Samples[80] != 0 {
		t.Errorf("last frame not zero-padded: %d", frames[2].Samples[80])
	}
}

func TestSource_ConvertsFormat(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	// 20ms of stereo at 32kHz becomes 20ms of mono at 16kHz.
	writeWAV(t, fs, "/stereo.wav", make([]int16, 640*2), 32000, 2)

	src, err := wavfile.Open(fs, "/stereo.wav", format16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := src.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}
	if n := len(readAll(t, src)); n != 2 {
		t.Errorf("frames = %d, want 2", n)
	}
}

func TestSource_TrailingSilence(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", ramp(160), 16000, 1)

	src, err := wavfile.Open(fs, "/in.wav", format16k, wavfile.WithTrailingSilence(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	frames := readAll(t, src)
	if len(frames) != 6 {
		t.Fatalf("frames = %d, want 6", len(frames))
	}
	if rms := frames[5].RMS(); rms != 0 {
		t.Errorf("trailing frame RMS = %v, want 0", rms)
	}
}

func TestSource_Realtime(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", ramp(160*4), 16000, 1)

	src, err := wavfile.Open(fs, "/in.wav", format16k, wavfile.WithRealtime())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	start := time.Now()
	readAll(t, src)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms for 4 paced frames", elapsed)
	}
}

func TestSource_CloseAndCancel(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", ramp(1600), 16000, 1)

	src, err := wavfile.Open(fs, "/in.wav", format16k)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.NextFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NextFrame(cancelled) error = %v, want context.Canceled", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.NextFrame(context.Background()); !errors.Is(err, audio.ErrSourceClosed) {
		t.Errorf("NextFrame after Close error = %v, want ErrSourceClosed", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/mono.wav", ramp(160), 16000, 1)
	if err := afero.WriteFile(fs, "/junk.wav", []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		fs     afero.Fs
		path   string
		format audio.Format
	}{
		{"nil fs", nil, "/mono.wav", format16k},
		{"missing file", fs, "/nope.wav", format16k},
		{"not a wav", fs, "/junk.wav", format16k},
		{"invalid format", fs, "/mono.wav", audio.Format{}},
		{"upmix", fs, "/mono.wav", audio.Format{SampleRate: 16000, Channels: 2, FrameSize: 160}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wavfile.Open(tt.fs, tt.path, tt.format); err == nil {
				t.Error("expected error")
			}
		})
	}
}
