package transcript_test

import (
	"testing"

	"github.com/chippy-tutor/chippy/internal/transcript"
)

func TestStripper_Strip(t *testing.T) {
	t.Parallel()

	s := transcript.NewStripper("hello chippy", nil)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exact", "Hello Chippy, what is photosynthesis?", "what is photosynthesis?"},
		{"variant spelling", "hello chippie what is rain", "what is rain"},
		{"filler before phrase", "Um, hello Chippy, why is the sea salty?", "why is the sea salty?"},
		{"name only", "Hey Chippy tell me about volcanoes", "tell me about volcanoes"},
		{"phrase only", "Hello, Chippy.", ""},
		{"no phrase", "  what is photosynthesis  ", "what is photosynthesis"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Strip(tt.in); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripper_EmptyPhrase(t *testing.T) {
	t.Parallel()

	s := transcript.NewStripper("", nil)
	if got := s.Strip(" hello chippy what "); got != "hello chippy what" {
		t.Errorf("Strip = %q, want text trimmed only", got)
	}
}
