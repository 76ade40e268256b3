// Package chatclient is the Go counterpart of the assistant chat widget: it
// posts the conversation to the function and reads the streamed reply.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/sse"
)

// Request is the chat body posted to the function.
type Request struct {
	Messages  []domain.ChatMessage `json:"messages"`
	SessionID string               `json:"session_id,omitempty"`
}

// StatusError reports a non-2xx answer from the function.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chatclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("chatclient: unexpected status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient targets the function at endpoint. publishableKey is the data
// platform's public key, sent both as bearer token and apikey header.
func NewClient(endpoint, publishableKey string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("chatclient: endpoint must not be empty")
	}
	c := &Client{endpoint: endpoint, apiKey: strings.TrimSpace(publishableKey), httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open posts req and returns the reply stream once the response headers
// arrived with a 2xx status.
func (c *Client) Open(ctx context.Context, req Request) (*Stream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chatclient: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("chatclient: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("apikey", c.apiKey)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chatclient: request failed: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		statusErr := &StatusError{StatusCode: res.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(&body) == nil {
			statusErr.Code = body.Error
			statusErr.Message = body.Message
		}
		return nil, statusErr
	}
	if res.Body == nil {
		return nil, errors.New("chatclient: response has no body")
	}
	return NewStream(res.Body), nil
}

// Stream yields the text deltas of one reply.
type Stream struct {
	body io.ReadCloser
	r    *sse.Reader
}

func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, r: sse.NewReader(body)}
}

// Recv returns the next delta, or io.EOF at the end of the reply.
func (s *Stream) Recv() (string, error) {
	delta, err := s.r.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("chatclient: read stream: %w", err)
	}
	return delta, err
}

func (s *Stream) Close() error {
	return s.body.Close()
}
