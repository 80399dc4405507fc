package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	r, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.model != DefaultModel {
		t.Errorf("model = %q, want %q", r.model, DefaultModel)
	}
}

func TestBuildParams_SystemAndUser(t *testing.T) {
	r, err := New("sk-test", "gpt-4o-mini", WithMaxTokens(150), WithTemperature(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := r.buildParams(responder.Request{SessionID: "CHIPPY_01234567", Text: "why is the sky blue"})

	if len(p.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(p.Messages))
	}
	if p.Messages[0].OfSystem == nil {
		t.Error("expected first message to be the system prompt")
	}
	if p.Messages[1].OfUser == nil {
		t.Error("expected second message to be the learner's question")
	}
	if got := p.MaxCompletionTokens.Value; got != 150 {
		t.Errorf("MaxCompletionTokens = %d, want 150", got)
	}
	if got := p.Temperature.Value; got != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", got)
	}
	if got := p.User.Value; got != "CHIPPY_01234567" {
		t.Errorf("User = %q, want CHIPPY_01234567", got)
	}
}

func TestBuildParams_NoSystemPrompt(t *testing.T) {
	r, _ := New("sk-test", "gpt-4o-mini", WithSystemPrompt(""))
	p := r.buildParams(responder.Request{Text: "hello"})
	if len(p.Messages) != 1 || p.Messages[0].OfUser == nil {
		t.Errorf("expected a single user message, got %d messages", len(p.Messages))
	}
}

func TestRespond_RoundTrip(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Sunlight scatters off the air.  "}
			}]
		}`))
	}))
	defer srv.Close()

	r, err := New("sk-test", "gpt-4o-mini",
		WithBaseURL(srv.URL),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := r.Respond(context.Background(), responder.Request{Text: "why is the sky blue"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "Sunlight scatters off the air." {
		t.Errorf("reply = %q", reply)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", body["model"])
	}
}

func TestRespond_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := New("sk-test", "gpt-4o-mini",
		WithBaseURL(srv.URL),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
	if _, err := r.Respond(context.Background(), responder.Request{Text: "hi"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
