package chatclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"miprojet-assistant/internal/domain"
)

// ApologyMessage replaces the assistant reply when an exchange fails.
const ApologyMessage = "Désolé, une erreur s'est produite. Veuillez réessayer."

var (
	ErrBusy         = errors.New("chatclient: an exchange is already in flight")
	ErrEmptyMessage = errors.New("chatclient: message is empty")
)

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateError     State = "error"
)

// Snapshot is a copy of the session as shown to the user.
type Snapshot struct {
	Messages []domain.ChatMessage
	State    State
	Loading  bool
}

// Opener starts one streamed exchange. *Client satisfies it.
type Opener interface {
	Open(ctx context.Context, req Request) (*Stream, error)
}

// Session holds one widget transcript and allows a single exchange at a time.
type Session struct {
	client    Opener
	sessionID string
	observers []func(Snapshot)

	mu          sync.Mutex
	messages    []domain.ChatMessage
	state       State
	loading     bool
	placeholder bool
}

type SessionOption func(*Session)

// WithSessionID switches to durable mode: the function keeps the history, so
// only the new user turn is sent.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.sessionID = strings.TrimSpace(id) }
}

// WithGreeting seeds the transcript with an assistant message.
func WithGreeting(text string) SessionOption {
	return func(s *Session) {
		if text != "" {
			s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: text})
		}
	}
}

// WithObserver registers fn to receive a snapshot after every change.
func WithObserver(fn func(Snapshot)) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

func NewSession(client Opener, opts ...SessionOption) (*Session, error) {
	if client == nil {
		return nil, errors.New("chatclient: client must not be nil")
	}
	s := &Session{client: client, state: StateIdle}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: append([]domain.ChatMessage(nil), s.messages...),
		State:    s.state,
		Loading:  s.loading,
	}
}

// update applies fn under the lock and notifies observers with the result.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	for _, o := range s.observers {
		o(snap)
	}
}

// Send appends text as a user turn, streams the reply into the transcript and
// returns the full reply. On failure the reply is replaced by ApologyMessage.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.state = StateSending
	s.loading = true
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	req := Request{SessionID: s.sessionID}
	if s.sessionID != "" {
		req.Messages = []domain.ChatMessage{{Role: domain.RoleUser, Content: text}}
	} else {
		req.Messages = append([]domain.ChatMessage(nil), s.messages...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	for _, o := range s.observers {
		o(snap)
	}

	reply, err := s.exchange(ctx, req)

	if err != nil {
		s.update(func() {
			s.setReplyLocked(ApologyMessage)
			s.state = StateError
		})
	}
	s.update(func() {
		s.placeholder = false
		s.state = StateIdle
		s.loading = false
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (s *Session) exchange(ctx context.Context, req Request) (string, error) {
	stream, err := s.client.Open(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	s.update(func() {
		s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleAssistant})
		s.placeholder = true
		s.state = StateStreaming
	})

	var content strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return content.String(), nil
		}
		if err != nil {
			return "", err
		}
		content.WriteString(delta)
		full := content.String()
		s.update(func() { s.setReplyLocked(full) })
	}
}

// setReplyLocked replaces the streaming placeholder, or appends a reply when
// the exchange failed before one was added.
func (s *Session) setReplyLocked(text string) {
	if s.placeholder && len(s.messages) > 0 {
		s.messages[len(s.messages)-1].Content = text
		return
	}
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: text})
	s.placeholder = true
}
