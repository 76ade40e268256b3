package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/usecase"
)

type stubAssistant struct {
	genOut  usecase.GenerateOutput
	genErr  error
	genIn   domain.GenerationRequest
	genHits int

	chatBody string
	chatErr  error
	chatIn   usecase.ChatInput
	chatHits int
	closed   bool
}

func (s *stubAssistant) Generate(_ context.Context, req domain.GenerationRequest) (usecase.GenerateOutput, error) {
	s.genHits++
	s.genIn = req
	return s.genOut, s.genErr
}

func (s *stubAssistant) Chat(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.chatHits++
	s.chatIn = in
	if s.chatErr != nil {
		return usecase.ChatOutput{}, s.chatErr
	}
	return usecase.ChatOutput{Body: &trackingBody{Reader: strings.NewReader(s.chatBody), closed: &s.closed}}, nil
}

type trackingBody struct {
	io.Reader
	closed *bool
}

func (b *trackingBody) Close() error {
	*b.closed = true
	return nil
}

func makeEvent(body string) events.LambdaFunctionURLRequest {
	return events.LambdaFunctionURLRequest{
		Headers: map[string]string{"content-type": "application/json"},
		Body:    body,
		RequestContext: events.LambdaFunctionURLRequestContext{
			HTTP: events.LambdaFunctionURLRequestContextHTTPDescription{Method: http.MethodPost, Path: "/"},
		},
	}
}

func readBody(t *testing.T, resp *events.LambdaFunctionURLStreamingResponse) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, svc Assistant) *Handler {
	t.Helper()
	h, err := NewHandler(svc)
	require.NoError(t, err)
	h.newID = func() string { return "generated-id" }
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_GenerationFromModel(t *testing.T) {
	svc := &stubAssistant{genOut: usecase.GenerateOutput{
		Action: domain.ActionGenerateNews,
		Body:   domain.NewsContent{Title: "Lancement", Excerpt: "e", Content: "c", Category: "actualite"},
		Source: usecase.SourceModel,
	}}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"generate_news","content":"Le programme démarre."}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "model", resp.Headers["X-Generation-Source"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	require.Equal(t, "generated-id", resp.Headers["X-Correlation-Id"])
	require.Equal(t, domain.GenerationRequest{Action: domain.ActionGenerateNews, Content: "Le programme démarre."}, svc.genIn)
	require.Zero(t, svc.chatHits)

	out := parseBody[domain.NewsContent](t, readBody(t, resp))
	require.Equal(t, "Lancement", out.Title)
}

func TestHandle_GenerationFallbackStays200(t *testing.T) {
	svc := &stubAssistant{genOut: usecase.GenerateOutput{
		Action:         domain.ActionGenerateEvaluation,
		Body:           domain.EvaluationContent{Resume: "r", Forces: []string{}, Faiblesses: []string{}, Recommandations: []string{}},
		Source:         usecase.SourceFallback,
		FallbackReason: "parse_failed",
	}}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"generate_evaluation","projectData":{"title":"AgriTech"},"scores":{"marche":70}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "fallback", resp.Headers["X-Generation-Source"])
	require.Equal(t, "AgriTech", svc.genIn.ProjectData["title"])
	require.JSONEq(t, `{"resume":"r","forces":[],"faiblesses":[],"recommandations":[]}`, readBody(t, resp))
}

func TestHandle_ActionWinsOverMessages(t *testing.T) {
	svc := &stubAssistant{genOut: usecase.GenerateOutput{Body: domain.NewsContent{}, Source: usecase.SourceModel}}
	h := newTestHandler(t, svc)
	_, err := h.Handle(context.Background(), makeEvent(`{"action":"generate_news","content":"x","messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	require.Equal(t, 1, svc.genHits)
	require.Zero(t, svc.chatHits)
}

func TestHandle_ChatStreamsBody(t *testing.T) {
	const stream = "data: {\"choices\":[{\"delta\":{\"content\":\"Bonjour\"}}]}\n\ndata: [DONE]\n\n"
	svc := &stubAssistant{chatBody: stream}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"messages":[{"role":"user","content":"Salut"}],"session_id":"s-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Headers["Content-Type"])
	require.Equal(t, stream, readBody(t, resp))
	require.True(t, svc.closed)
	require.Equal(t, usecase.ChatInput{
		Messages:  []domain.ChatMessage{{Role: "user", Content: "Salut"}},
		SessionID: "s-1",
	}, svc.chatIn)
}

func TestHandle_UnknownActionGoesToChat(t *testing.T) {
	svc := &stubAssistant{chatErr: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_messages"}}
	h := newTestHandler(t, svc)
	resp, err := h.Handle(context.Background(), makeEvent(`{"action":"summarize"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 1, svc.chatHits)
}

func TestHandle_InvalidBody(t *testing.T) {
	svc := &stubAssistant{}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, readBody(t, resp))
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Zero(t, svc.genHits+svc.chatHits)
}

func TestHandle_Base64Body(t *testing.T) {
	svc := &stubAssistant{genOut: usecase.GenerateOutput{Body: domain.NewsContent{}, Source: usecase.SourceModel}}
	h := newTestHandler(t, svc)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(`{"action":"generate_news","content":"x"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "x", svc.genIn.Content)

	event.Body = "%%%"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_Preflight(t *testing.T) {
	svc := &stubAssistant{}
	h := newTestHandler(t, svc)
	event := makeEvent("")
	event.RequestContext.HTTP.Method = http.MethodOptions

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "POST, OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
	require.Contains(t, resp.Headers["Access-Control-Allow-Headers"], "apikey")
	require.Empty(t, readBody(t, resp))
	require.Zero(t, svc.genHits+svc.chatHits)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &stubAssistant{})
	event := makeEvent("")
	event.RequestContext.HTTP.Method = http.MethodGet

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	out := parseBody[errorResponse](t, readBody(t, resp))
	require.Equal(t, "METHOD_NOT_ALLOWED", out.Error)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_content"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "config", err: &usecase.Error{Code: usecase.ErrorConfig, Reason: "missing_api_key"}, status: http.StatusInternalServerError, code: string(usecase.ErrorConfig)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "generation_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "quota", err: &usecase.Error{Code: usecase.ErrorQuotaExhausted, Reason: "generation_quota_exhausted"}, status: http.StatusPaymentRequired, code: string(usecase.ErrorQuotaExhausted)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "chat_upstream_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "session_history_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubAssistant{genErr: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"action":"generate_news","content":"x"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, readBody(t, resp))
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestHandle_RateLimitMessageIsFrench(t *testing.T) {
	h := newTestHandler(t, &stubAssistant{chatErr: &usecase.Error{Code: usecase.ErrorRateLimited}})
	resp, err := h.Handle(context.Background(), makeEvent(`{"messages":[{"role":"user","content":"x"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	out := parseBody[errorResponse](t, readBody(t, resp))
	require.Contains(t, out.Message, "Veuillez réessayer")
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubAssistant{genOut: usecase.GenerateOutput{Body: domain.NewsContent{}, Source: usecase.SourceModel}})

	event := makeEvent(`{"action":"generate_news","content":"x"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestServeHTTP_StreamsAndSetsHeaders(t *testing.T) {
	const stream = "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"
	svc := &stubAssistant{chatBody: stream}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"messages":[{"role":"user","content":"x"}]}`))
	req.Header.Set("X-Correlation-Id", "corr-http")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "corr-http", rec.Header().Get("X-Correlation-Id"))
	require.Equal(t, stream, rec.Body.String())
	require.True(t, rec.Flushed)
	require.True(t, svc.closed)
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, &stubAssistant{})
	big := `{"action":"generate_news","content":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type signalBody struct {
	io.Reader
	closed chan struct{}
}

func newSignalBody(s string) *signalBody {
	return &signalBody{Reader: strings.NewReader(s), closed: make(chan struct{})}
}

func (b *signalBody) Close() error {
	close(b.closed)
	return nil
}

func TestCloseOnEOF_ClosesWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := newSignalBody("data: [DONE]\n\n")
	c := newCloseOnEOF(ctx, body)

	cancel()
	select {
	case <-body.closed:
	case <-time.After(time.Second):
		t.Fatal("body was not closed after the context ended")
	}

	n, err := c.Read(make([]byte, 16))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestCloseOnEOF_CloseIsIdempotent(t *testing.T) {
	body := newSignalBody("partial")
	c := newCloseOnEOF(context.Background(), body)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := c.Read(make([]byte, 4))
	require.ErrorIs(t, err, io.EOF)
}

func TestHandle_ResponseBodyCanBeClosedBeforeEOF(t *testing.T) {
	svc := &stubAssistant{chatBody: "data: {\"choices\":[{\"delta\":{\"content\":\"Bon\"}}]}\n\n"}
	h := newTestHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"messages":[{"role":"user","content":"Salut"}]}`))
	require.NoError(t, err)
	closer, ok := resp.Body.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
	require.True(t, svc.closed)
}
