// Package flow provides a Responder backed by a hosted tutoring flow: an
// HTTP endpoint that takes the learner's message and returns the tutor's
// final answer.
//
// Request body:
//
//	{"user_message": "...", "action_type": "chat", "learner_id": "...",
//	 "session_id": "...", "chat_history": []}
//
// The endpoint is authenticated with a bearer key and answers with a JSON
// object whose "final_answer" field is the reply.
package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chippy-tutor/chippy/pkg/provider/responder"
)

// DefaultLearnerID is sent when the request carries no learner ID.
const DefaultLearnerID = "pi_student"

// DefaultReply is returned when the flow answers without a final answer.
const DefaultReply = "I'm not sure how to respond to that."

var _ responder.Responder = (*Responder)(nil)

// StatusError is returned for a non-2xx response from the flow.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("flow: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Responder implements [responder.Responder] against a tutoring flow.
type Responder struct {
	endpoint string
	apiKey   string
	learner  string
	client   *http.Client
}

// Option is a functional option for [New].
type Option func(*Responder)

// WithLearnerID sets the learner ID used when a request has none.
func WithLearnerID(id string) Option {
	return func(r *Responder) { r.learner = id }
}

// WithHTTPClient sets the HTTP client. The default client times out after
// 30 seconds.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Responder) { r.client = c }
}

// New creates a Responder posting to endpoint with apiKey as bearer token.
func New(endpoint, apiKey string, opts ...Option) (*Responder, error) {
	if endpoint == "" {
		return nil, errors.New("flow: endpoint must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("flow: api key must not be empty")
	}
	r := &Responder{
		endpoint: endpoint,
		apiKey:   apiKey,
		learner:  DefaultLearnerID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

type chatRequest struct {
	UserMessage string   `json:"user_message"`
	ActionType  string   `json:"action_type"`
	LearnerID   string   `json:"learner_id"`
	SessionID   string   `json:"session_id"`
	ChatHistory []string `json:"chat_history"`
}

type chatResponse struct {
	FinalAnswer string `json:"final_answer"`
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, req responder.Request) (string, error) {
	learner := req.LearnerID
	if learner == "" {
		learner = r.learner
	}
	body, err := json.Marshal(chatRequest{
		UserMessage: req.Text,
		ActionType:  "chat",
		LearnerID:   learner,
		SessionID:   req.SessionID,
		ChatHistory: []string{},
	})
	if err != nil {
		return "", fmt.Errorf("flow: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("flow: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("flow: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("flow: decode response: %w", err)
	}
	if strings.TrimSpace(out.FinalAnswer) == "" {
		return DefaultReply, nil
	}
	return out.FinalAnswer, nil
}
