package phonetic_test

import (
	"testing"

	"github.com/chippy-tutor/chippy/internal/transcript/phonetic"
)

func TestMatcher_Similar(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		a, b string
		want bool
	}{
		{"chippy", "chippy", true},
		{"Chippy", "chippy", true},
		{"chippie", "chippy", true},
		{"chipe", "chippy", true},
		{"hallo", "hello", true},
		{"photosynthesis", "chippy", false},
		{"what", "hello", false},
		{"", "chippy", false},
	}
	for _, tt := range tests {
		if got := m.Similar(tt.a, tt.b); got != tt.want {
			score, ph := m.Score(tt.a, tt.b)
			t.Errorf("Similar(%q, %q) = %v, want %v (score %.3f, phonetic %v)", tt.a, tt.b, got, tt.want, score, ph)
		}
	}
}

func TestMatcher_Score_Identical(t *testing.T) {
	t.Parallel()

	score, ph := phonetic.New().Score("Chippy ", "chippy")
	if score != 1 || !ph {
		t.Errorf("Score = (%v, %v), want (1, true)", score, ph)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if strict.Similar("chippie", "chippy") {
		t.Error("strict matcher accepted a near miss")
	}
	loose := phonetic.New(phonetic.WithFuzzyThreshold(0.5))
	if !loose.Similar("chips", "chippy") {
		t.Error("loose matcher rejected a fuzzy match")
	}
}
