package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"miprojet-assistant/internal/domain"
)

const defaultHistoryLimit = 40

// LLMClient is the upstream chat completion gateway.
type LLMClient interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, schema *domain.ResponseSchema) (string, error)
	Stream(ctx context.Context, messages []domain.ChatMessage) (io.ReadCloser, error)
}

// SessionLog is the durable, append-only chat history keyed by session id.
type SessionLog interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	Append(ctx context.Context, sessionID string, msgs ...domain.ChatMessage) error
}

// Recorder receives operational counters. Implementations must be safe for
// concurrent use.
type Recorder interface {
	GenerationServed(action, source string)
	FallbackUsed(action, reason string)
	UpstreamFailure(operation string, status int)
	UpstreamLatency(operation string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) GenerationServed(string, string) {}
func (nopRecorder) FallbackUsed(string, string) {}
func (nopRecorder) UpstreamFailure(string, int) {}
func (nopRecorder) UpstreamLatency(string, time.Duration) {}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type missingKeyError interface {
	MissingAPIKey() bool
}

// Service implements the assistant actions on top of an LLMClient.
type Service struct {
	llm          LLMClient
	sessions     SessionLog
	historyLimit int
	rec          Recorder
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

// WithSessionLog enables durable chat sessions. limit bounds how many stored
// messages are replayed to the model; zero keeps the default.
func WithSessionLog(log SessionLog, limit int) Option {
	return func(s *Service) {
		s.sessions = log
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.rec = rec
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(llm LLMClient, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	s := &Service{
		llm:          llm,
		historyLimit: defaultHistoryLimit,
		rec:          nopRecorder{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// classifyUpstream maps errors that must reach the caller regardless of the
// action. It returns nil for failures the caller may absorb.
func classifyUpstream(err error, reasonPrefix string) *Error {
	var keyErr missingKeyError
	if errors.As(err, &keyErr) && keyErr.MissingAPIKey() {
		return newError(ErrorConfig, "missing_api_key", err)
	}
	switch status, _ := upstreamStatusCode(err); status {
	case http.StatusTooManyRequests:
		return newError(ErrorRateLimited, reasonPrefix+"_rate_limited", err)
	case http.StatusPaymentRequired:
		return newError(ErrorQuotaExhausted, reasonPrefix+"_quota_exhausted", err)
	}
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
