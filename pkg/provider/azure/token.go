// Package azure holds the pieces shared by the Azure Speech recognizer and
// synthesizer: region endpoints and the access-token cache.
//
// Both REST APIs accept a short-lived bearer token issued in exchange for the
// subscription key. Tokens are valid for ten minutes; [TokenSource] reuses
// one for nine and refreshes it on demand after that, or as soon as a caller
// reports a 401 through [TokenSource.Invalidate].
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTokenTTL is how long an issued token is reused.
const DefaultTokenTTL = 9 * time.Minute

// IssueTokenURL returns the token endpoint for region.
func IssueTokenURL(region string) string {
	return fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", region)
}

// RecognitionURL returns the short-audio recognition endpoint for region.
func RecognitionURL(region string) string {
	return fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region)
}

// SynthesisURL returns the text-to-speech endpoint for region.
func SynthesisURL(region string) string {
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
}

// StatusError is returned when the token endpoint answers with a failing
// HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("azure: issue token: status %d: %s", e.StatusCode, e.Body)
}

// TokenSource issues and caches access tokens. It is safe for concurrent use.
type TokenSource struct {
	key    string
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// TokenOption is a functional option for [NewTokenSource].
type TokenOption func(*TokenSource)

// WithIssueURL overrides the token endpoint. Used in tests.
func WithIssueURL(url string) TokenOption {
	return func(s *TokenSource) { s.url = url }
}

// WithTTL sets how long a token is reused. Defaults to [DefaultTokenTTL].
func WithTTL(d time.Duration) TokenOption {
	return func(s *TokenSource) { s.ttl = d }
}

// WithHTTPClient sets the HTTP client used to issue tokens.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(s *TokenSource) { s.client = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenSource) { s.now = now }
}

// NewTokenSource creates a TokenSource for the subscription key in region.
func NewTokenSource(key, region string, opts ...TokenOption) (*TokenSource, error) {
	if key == "" {
		return nil, errors.New("azure: subscription key must not be empty")
	}
	s := &TokenSource{
		key:    key,
		ttl:    DefaultTokenTTL,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.url == "" {
		if region == "" {
			return nil, errors.New("azure: region must not be empty")
		}
		s.url = IssueTokenURL(region)
	}
	return s, nil
}

// Token returns a cached token, issuing a new one if none is cached or the
// cached one is past its reuse window.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}
	tok, err := s.issue(ctx)
	if err != nil {
		return "", err
	}
	s.token = tok
	s.expires = s.now().Add(s.ttl)
	return tok, nil
}

// Invalidate drops the cached token so the next call to Token issues a new
// one. Callers invoke it after the service rejected a token with 401.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

func (s *TokenSource) issue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("azure: issue token: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure: issue token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return "", fmt.Errorf("azure: issue token: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return "", errors.New("azure: issue token: empty token")
	}
	return tok, nil
}
