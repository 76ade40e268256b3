package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/usecase"
)

const (
	maxBodyBytes = 1 << 20

	headerCorrelationID    = "X-Correlation-Id"
	headerGenerationSource = "X-Generation-Source"

	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type, x-correlation-id",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
}

// Assistant is the use case surface the handler dispatches to.
type Assistant interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (usecase.GenerateOutput, error)
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Handler struct {
	svc    Assistant
	logger *slog.Logger
	newID  func() string
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(svc Assistant, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: assistant must not be nil")
	}
	h := &Handler{svc: svc, logger: slog.Default(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// response is the transport-neutral result of one request.
type response struct {
	status  int
	headers map[string]string
	body    io.ReadCloser
}

// Handle serves a Lambda function URL invocation with a streamed response.
func (h *Handler) Handle(ctx context.Context, event events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			body = nil
		} else {
			body = decoded
		}
	}

	resp := h.serve(ctx, event.RequestContext.HTTP.Method, headerLookup(event.Headers), body)
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: resp.status,
		Headers:    resp.headers,
		Body:       newCloseOnEOF(ctx, resp.body),
	}, nil
}

func (h *Handler) serve(ctx context.Context, method string, header func(string) string, body []byte) response {
	correlationID := strings.TrimSpace(header(headerCorrelationID))
	if correlationID == "" {
		correlationID = h.newID()
	}
	logger := h.logger.With("correlation_id", correlationID)

	headers := make(map[string]string, len(corsHeaders)+3)
	for k, v := range corsHeaders {
		headers[k] = v
	}
	headers[headerCorrelationID] = correlationID

	switch strings.ToUpper(method) {
	case http.MethodOptions:
		return response{status: http.StatusOK, headers: headers, body: io.NopCloser(strings.NewReader(""))}
	case http.MethodPost:
	default:
		logger.Warn("method not allowed", "method", method)
		headers["Allow"] = "POST, OPTIONS"
		return jsonResponse(http.StatusMethodNotAllowed, headers, errorResponse{Error: codeMethodNotAllowed, Message: "Méthode non autorisée."})
	}

	if body == nil {
		return h.errorResponse(logger, headers, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body_encoding"})
	}
	if len(body) > maxBodyBytes {
		return h.errorResponse(logger, headers, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "body_too_large"})
	}

	var req domain.GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.errorResponse(logger, headers, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err})
	}
	logger = logger.With("action", string(req.Action))

	if req.Action.IsGeneration() {
		out, err := h.svc.Generate(ctx, req)
		if err != nil {
			return h.errorResponse(logger, headers, err)
		}
		headers[headerGenerationSource] = out.Source
		logger.Info("generation served", "source", out.Source, "reason", out.FallbackReason)
		return jsonResponse(http.StatusOK, headers, out.Body)
	}

	out, err := h.svc.Chat(ctx, usecase.ChatInput{Messages: req.Messages, SessionID: req.SessionID})
	if err != nil {
		return h.errorResponse(logger, headers, err)
	}
	headers["Content-Type"] = "text/event-stream"
	headers["Cache-Control"] = "no-cache"
	logger.Info("chat stream started", "messages", len(req.Messages))
	return response{status: http.StatusOK, headers: headers, body: out.Body}
}

func (h *Handler) errorResponse(logger *slog.Logger, headers map[string]string, err error) response {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		uerr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected", Err: err}
	}
	status, message := statusFor(uerr.Code)
	attrs := []any{"code", string(uerr.Code), "reason", uerr.Reason, "status", status}
	if uerr.Err != nil {
		attrs = append(attrs, "err", uerr.Err)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}
	return jsonResponse(status, headers, errorResponse{Error: string(uerr.Code), Message: message})
}

func statusFor(code usecase.ErrorCode) (int, string) {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, "Requête invalide."
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, "Trop de requêtes. Veuillez réessayer dans quelques instants."
	case usecase.ErrorQuotaExhausted:
		return http.StatusPaymentRequired, "Crédits IA épuisés. Veuillez contacter l'administrateur."
	case usecase.ErrorConfig:
		return http.StatusInternalServerError, "Le service d'IA n'est pas configuré."
	case usecase.ErrorUpstream:
		return http.StatusInternalServerError, "Le service d'IA est momentanément indisponible."
	default:
		return http.StatusInternalServerError, "Une erreur interne s'est produite."
	}
}

func jsonResponse(status int, headers map[string]string, v any) response {
	raw, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR","message":"Une erreur interne s'est produite."}`)
	}
	headers["Content-Type"] = "application/json"
	return response{status: status, headers: headers, body: io.NopCloser(bytes.NewReader(raw))}
}

// headerLookup matches header names case-insensitively.
func headerLookup(headers map[string]string) func(string) string {
	return func(name string) string {
		if v, ok := headers[name]; ok {
			return v
		}
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}
}

// closeOnEOF closes the wrapped body when a read ends it or when ctx is done.
// The Lambda runtime only sees an io.Reader and may stop reading early.
type closeOnEOF struct {
	rc     io.ReadCloser
	stop   func() bool
	once   sync.Once
	closed atomic.Bool
	err    error
}

func newCloseOnEOF(ctx context.Context, rc io.ReadCloser) *closeOnEOF {
	c := &closeOnEOF{rc: rc}
	c.stop = context.AfterFunc(ctx, func() { _ = c.Close() })
	return c
}

func (c *closeOnEOF) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, io.EOF
	}
	n, err := c.rc.Read(p)
	if err != nil {
		_ = c.Close()
	}
	return n, err
}

// Close releases the wrapped body. It is safe to call more than once and
// concurrently with Read.
func (c *closeOnEOF) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		if c.stop != nil {
			c.stop()
		}
		c.err = c.rc.Close()
	})
	return c.err
}
