package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero/mem"
)

// bitsPerSample is fixed at 16 for all PCM handled by chippy.
const bitsPerSample = 16

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// ErrInvalidWAV is returned by [DecodeWAV] when the input is not a readable
// RIFF/WAVE PCM file.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// EncodeWAV encodes samples as a 16-bit PCM WAV file held in memory.
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid format %dHz/%dch", sampleRate, channels)
	}
	f := mem.NewFileHandle(mem.CreateFile("utterance.wav"))
	defer f.Close()

	if err := WriteWAV(f, samples, sampleRate, channels); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("audio: encode wav: rewind: %w", err)
	}
	out, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("audio: encode wav: read back: %w", err)
	}
	return out, nil
}

// WriteWAV writes samples as a 16-bit PCM WAV file to w. The encoder patches
// the RIFF header on completion, which is why w must be seekable. w is not
// closed.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, bitsPerSample, channels, wavFormatPCM)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav header: %w", err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV file and returns its samples converted to 16-bit.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	depth := int(dec.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case depth > bitsPerSample:
			samples[i] = int16(v >> (depth - bitsPerSample))
		default:
			samples[i] = int16(v)
		}
	}
	return Clip{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
