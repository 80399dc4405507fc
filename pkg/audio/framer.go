package audio

import "time"

// Framer stamps consecutive capture blocks with a sequence number and a
// timestamp derived from the frame period, so time inside the pipeline
// follows the capture clock rather than the wall clock.
type Framer struct {
	format Format
	seq    uint64
}

// NewFramer returns a Framer for f, starting at sequence 0.
func NewFramer(f Format) *Framer {
	return &Framer{format: f}
}

// Next copies samples into a new frame carrying the next sequence number.
func (fr *Framer) Next(samples []int16) Frame {
	out := make([]int16, len(samples))
	copy(out, samples)
	f := Frame{
		Samples:    out,
		SampleRate: fr.format.SampleRate,
		Channels:   fr.format.Channels,
		Seq:        fr.seq,
		Timestamp:  time.Duration(fr.seq) * fr.format.FramePeriod(),
	}
	fr.seq++
	return f
}

// Skip consumes a sequence number without producing a frame. Consumers see
// the gap in [Frame.Seq].
func (fr *Framer) Skip() {
	fr.seq++
}
