// Package recording writes sealed utterances to disk as WAV files named
// after their session, for debugging recognition problems and collecting
// wake-word training data.
package recording

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

// Recorder saves utterances under a directory of an [afero.Fs].
type Recorder struct {
	fs  afero.Fs
	dir string
}

// New returns a Recorder writing to dir on fs, creating dir if needed.
func New(fs afero.Fs, dir string) (*Recorder, error) {
	if fs == nil {
		return nil, errors.New("recording: filesystem must not be nil")
	}
	if dir == "" {
		return nil, errors.New("recording: directory must not be empty")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: create %s: %w", dir, err)
	}
	return &Recorder{fs: fs, dir: dir}, nil
}

// Path returns the file an utterance for sessionID is written to.
func (r *Recorder) Path(sessionID string) string {
	return filepath.Join(r.dir, filepath.Base(sessionID)+".wav")
}

// Save writes u as <dir>/<sessionID>.wav, replacing any earlier file.
func (r *Recorder) Save(ctx context.Context, sessionID string, u *audio.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u == nil || len(u.Frames) == 0 {
		return errors.New("recording: empty utterance")
	}
	if sessionID == "" {
		return errors.New("recording: session id must not be empty")
	}

	path := r.Path(sessionID)
	f, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("recording: create %s: %w", path, err)
	}
	werr := audio.WriteWAV(f, u.Samples(), u.SampleRate(), u.Channels())
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = r.fs.Remove(path)
		return fmt.Errorf("recording: write %s: %w", path, err)
	}
	return nil
}
