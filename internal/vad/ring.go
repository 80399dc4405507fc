package vad

import "github.com/chippy-tutor/chippy/pkg/audio"

// RingWindow holds the most recent frames up to a fixed capacity. When full,
// pushing a frame overwrites the oldest one. A RingWindow is owned by a
// single goroutine and is not safe for concurrent use.
type RingWindow struct {
	frames []audio.Frame
	head   int
	size   int
}

// NewRingWindow returns a window holding at most capacity frames. A capacity
// of zero or less yields a window that retains nothing.
func NewRingWindow(capacity int) *RingWindow {
	return &RingWindow{frames: make([]audio.Frame, max(capacity, 0))}
}

// Push appends f, evicting the oldest frame when the window is full.
func (r *RingWindow) Push(f audio.Frame) {
	if len(r.frames) == 0 {
		return
	}
	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
	if r.size < len(r.frames) {
		r.size++
	}
}

// Snapshot returns the buffered frames oldest first. The returned slice is a
// fresh copy; the window is unchanged.
func (r *RingWindow) Snapshot() []audio.Frame {
	out := make([]audio.Frame, r.size)
	start := (r.head - r.size + len(r.frames)) % max(len(r.frames), 1)
	for i := range r.size {
		out[i] = r.frames[(start+i)%len(r.frames)]
	}
	return out
}

// Len returns the number of buffered frames.
func (r *RingWindow) Len() int { return r.size }

// Cap returns the window capacity.
func (r *RingWindow) Cap() int { return len(r.frames) }

// Clear drops every buffered frame.
func (r *RingWindow) Clear() {
	clear(r.frames)
	r.head = 0
	r.size = 0
}
