package anyllm

import (
	"strings"
	"testing"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "model", nil); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("ollama", "", nil); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestCreateBackend_Unsupported(t *testing.T) {
	_, err := createBackend("carrier-pigeon")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error %q does not name the provider", err)
	}
}

func TestWithDefaults(t *testing.T) {
	got := withDefaults(nil)
	if got.SystemPrompt != responder.DefaultSystemPrompt {
		t.Error("expected default system prompt")
	}
	if got.MaxTokens != 200 {
		t.Errorf("MaxTokens = %d, want 200", got.MaxTokens)
	}
	if got.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", got.Temperature)
	}

	got = withDefaults(&Settings{SystemPrompt: "be brief", MaxTokens: 80})
	if got.SystemPrompt != "be brief" || got.MaxTokens != 80 || got.Temperature != 0.7 {
		t.Errorf("withDefaults = %+v", got)
	}
}

func TestBuildParams(t *testing.T) {
	r := &Responder{model: "llama3.2", settings: withDefaults(&Settings{MaxTokens: 120})}
	p := r.buildParams(responder.Request{Text: "how many legs does a spider have"})

	if p.Model != "llama3.2" {
		t.Errorf("Model = %q, want llama3.2", p.Model)
	}
	if len(p.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(p.Messages))
	}
	if p.Messages[0].Role != "system" {
		t.Errorf("Messages[0].Role = %q, want system", p.Messages[0].Role)
	}
	if p.Messages[1].Role != "user" {
		t.Errorf("Messages[1].Role = %q, want user", p.Messages[1].Role)
	}
	if p.MaxTokens == nil || *p.MaxTokens != 120 {
		t.Errorf("MaxTokens = %v, want 120", p.MaxTokens)
	}
	if p.Temperature == nil || *p.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", p.Temperature)
	}
}
