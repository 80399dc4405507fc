package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chippy-tutor/chippy/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767}
	data, err := audio.EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE magic: %q %q", data[0:4], data[8:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
}

func TestEncodeWAV_InvalidFormat(t *testing.T) {
	if _, err := audio.EncodeWAV([]int16{1}, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestDecodeWAV_RoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	data, err := audio.EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %dHz/%dch, want 16000Hz/1ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("len = %d, want %d", len(clip.Samples), len(samples))
	}
	for i := range samples {
		if clip.Samples[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, clip.Samples[i], samples[i])
		}
	}
}

func TestDecodeWAV_Garbage(t *testing.T) {
	_, err := audio.DecodeWAV(bytes.NewReader([]byte("definitely not a wav file at all....................")))
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("err = %v, want ErrInvalidWAV", err)
	}
}
