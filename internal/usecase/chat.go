package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/sse"
)

type ChatInput struct {
	Messages  []domain.ChatMessage
	SessionID string
}

// ChatOutput holds the upstream SSE body. The caller must close it.
type ChatOutput struct {
	Body io.ReadCloser
}

// Chat forwards the conversation upstream with streaming enabled and returns
// the raw event stream. With a session log configured and a session id set,
// stored history is replayed before the new messages, and the exchange is
// recorded once the stream has been read to the end.
func (s *Service) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if len(in.Messages) == 0 {
		return ChatOutput{}, newError(ErrorInvalidInput, "missing_messages", nil)
	}
	for _, m := range in.Messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			return ChatOutput{}, newError(ErrorInvalidInput, "invalid_role", nil)
		}
	}

	sessionID := strings.TrimSpace(in.SessionID)
	durable := sessionID != "" && s.sessions != nil
	logger := s.logger.With("action", string(domain.ActionChat))

	var history []domain.ChatMessage
	if durable {
		var err error
		history, err = s.sessions.History(ctx, sessionID, s.historyLimit)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "session_history_error", err)
		}
		logger = logger.With("session_id", sessionID)
	}

	start := s.now()
	body, err := s.llm.Stream(ctx, chatPrompt(history, in.Messages))
	s.rec.UpstreamLatency("stream", s.now().Sub(start))
	if err != nil {
		status, _ := upstreamStatusCode(err)
		s.rec.UpstreamFailure("stream", status)
		if e := classifyUpstream(err, "chat"); e != nil {
			return ChatOutput{}, e
		}
		return ChatOutput{}, newError(ErrorUpstream, "chat_upstream_error", err)
	}
	s.rec.GenerationServed(string(domain.ActionChat), SourceModel)

	if !durable {
		return ChatOutput{Body: body}, nil
	}

	turn := append([]domain.ChatMessage(nil), in.Messages...)
	return ChatOutput{Body: newRecordingBody(body, func(reply string) {
		msgs := append(turn, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
		// The request context is usually done once the body has been drained.
		if err := s.sessions.Append(context.WithoutCancel(ctx), sessionID, msgs...); err != nil {
			logger.Error("failed to record chat turn", "err", err)
		}
	})}, nil
}

// recordingBody passes the upstream stream through unchanged while decoding
// it, and hands the assembled assistant reply to onEOF exactly once when the
// stream ends cleanly.
type recordingBody struct {
	rc    io.ReadCloser
	dec   *sse.Decoder
	reply strings.Builder
	once  sync.Once
	onEOF func(reply string)
}

func newRecordingBody(rc io.ReadCloser, onEOF func(string)) *recordingBody {
	return &recordingBody{rc: rc, dec: sse.NewDecoder(), onEOF: onEOF}
}

func (b *recordingBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		for _, d := range b.dec.Feed(p[:n]) {
			b.reply.WriteString(d)
		}
	}
	if errors.Is(err, io.EOF) {
		for _, d := range b.dec.Flush() {
			b.reply.WriteString(d)
		}
		b.once.Do(func() { b.onEOF(b.reply.String()) })
	}
	return n, err
}

func (b *recordingBody) Close() error {
	return b.rc.Close()
}

var _ io.ReadCloser = (*recordingBody)(nil)

