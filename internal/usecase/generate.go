package usecase

import (
	"context"
	"log/slog"
	"strings"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/extract"
	"miprojet-assistant/internal/textclean"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"

	reasonUpstreamError = "upstream_error"
	reasonParseFailed   = "parse_failed"
)

// GenerateOutput carries one generation result. Body is always one of the
// domain content types, fully populated.
type GenerateOutput struct {
	Action         domain.Action
	Body           any
	Source         string
	FallbackReason string
}

// generation binds an action to its prompt, schema, decoder and fallback.
type generation struct {
	messages []domain.ChatMessage
	schema   *extract.Schema
	decode   func(reply string) (any, error)
	fallback func() any
}

// Generate runs a one-shot content generation. Only invalid input, missing
// configuration and upstream 429/402 are returned as errors; anything else
// yields the deterministic fallback.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (GenerateOutput, error) {
	gen, err := s.plan(req)
	if err != nil {
		return GenerateOutput{}, err
	}

	logger := s.logger.With("action", string(req.Action))

	start := s.now()
	reply, err := s.llm.Complete(ctx, gen.messages, responseSchema(gen.schema))
	s.rec.UpstreamLatency("complete", s.now().Sub(start))
	if err != nil {
		status, _ := upstreamStatusCode(err)
		s.rec.UpstreamFailure("complete", status)
		if e := classifyUpstream(err, "generation"); e != nil {
			return GenerateOutput{}, e
		}
		return s.fallback(logger, req.Action, gen, reasonUpstreamError, err), nil
	}

	body, err := gen.decode(reply)
	if err != nil {
		return s.fallback(logger, req.Action, gen, reasonParseFailed, err), nil
	}

	s.rec.GenerationServed(string(req.Action), SourceModel)
	return GenerateOutput{Action: req.Action, Body: body, Source: SourceModel}, nil
}

func (s *Service) fallback(logger *slog.Logger, action domain.Action, gen generation, reason string, err error) GenerateOutput {
	logger.Warn("generation fell back to local content", "reason", reason, "err", err)
	s.rec.FallbackUsed(string(action), reason)
	s.rec.GenerationServed(string(action), SourceFallback)
	return GenerateOutput{
		Action:         action,
		Body:           gen.fallback(),
		Source:         SourceFallback,
		FallbackReason: reason,
	}
}

func (s *Service) plan(req domain.GenerationRequest) (generation, error) {
	content := strings.TrimSpace(req.Content)

	switch req.Action {
	case domain.ActionGenerateOpportunity:
		opportunityType := strings.TrimSpace(req.OpportunityType)
		if content == "" {
			return generation{}, newError(ErrorInvalidInput, "missing_content", nil)
		}
		if opportunityType == "" {
			return generation{}, newError(ErrorInvalidInput, "missing_opportunity_type", nil)
		}
		return generation{
			messages: opportunityPrompt(content, opportunityType),
			schema:   opportunitySchema,
			decode: func(reply string) (any, error) {
				var out domain.OpportunityContent
				if err := extract.Decode(reply, opportunitySchema, &out); err != nil {
					return nil, err
				}
				out.Content = textclean.Strip(out.Content)
				out.Category = domain.NormalizeCategory(firstNonEmpty(out.Category, opportunityType), domain.OpportunityCategories, domain.DefaultOpportunityCategory)
				if out.Eligibility == "" {
					out.Eligibility = fallbackEligibility
				}
				if out.Location == "" {
					out.Location = fallbackLocation
				}
				return out, nil
			},
			fallback: func() any { return opportunityFallback(content, opportunityType) },
		}, nil

	case domain.ActionGenerateNews:
		if content == "" {
			return generation{}, newError(ErrorInvalidInput, "missing_content", nil)
		}
		return generation{
			messages: newsPrompt(content),
			schema:   newsSchema,
			decode: func(reply string) (any, error) {
				var out domain.NewsContent
				if err := extract.Decode(reply, newsSchema, &out); err != nil {
					return nil, err
				}
				out.Excerpt = firstNonEmpty(out.Excerpt, textclean.Truncate(flatten(out.Content), excerptMaxRunes))
				out.Category = domain.NormalizeCategory(out.Category, domain.NewsCategories, domain.DefaultNewsCategory)
				return out, nil
			},
			fallback: func() any { return newsFallback(content) },
		}, nil

	case domain.ActionGenerateEvaluation:
		if req.ProjectData == nil {
			return generation{}, newError(ErrorInvalidInput, "missing_project_data", nil)
		}
		if req.Scores == nil {
			return generation{}, newError(ErrorInvalidInput, "missing_scores", nil)
		}
		return generation{
			messages: evaluationPrompt(req.ProjectData, req.Scores),
			schema:   evaluationSchema,
			decode: func(reply string) (any, error) {
				var out domain.EvaluationContent
				if err := extract.Decode(reply, evaluationSchema, &out); err != nil {
					return nil, err
				}
				out.Forces = nonNil(out.Forces)
				out.Faiblesses = nonNil(out.Faiblesses)
				out.Recommandations = nonNil(out.Recommandations)
				return out, nil
			},
			fallback: func() any { return evaluationFallback(req.ProjectData, req.Scores) },
		}, nil

	case domain.ActionGenerateUniversalContent:
		if content == "" {
			return generation{}, newError(ErrorInvalidInput, "missing_content", nil)
		}
		if len(req.Fields) == 0 {
			return generation{}, newError(ErrorInvalidInput, "missing_fields", nil)
		}
		return generation{
			messages: universalPrompt(content, req.Fields),
			schema:   universalSchema,
			decode: func(reply string) (any, error) {
				var out domain.UniversalContent
				if err := extract.Decode(reply, universalSchema, &out); err != nil {
					return nil, err
				}
				out.Excerpt = firstNonEmpty(out.Excerpt, textclean.Truncate(flatten(out.Content), excerptMaxRunes))
				out.Category = domain.NormalizeCategory(out.Category, domain.NewsCategories, domain.DefaultNewsCategory)
				return out, nil
			},
			fallback: func() any { return universalFallback(content) },
		}, nil
	}

	return generation{}, newError(ErrorInvalidInput, "unknown_action", nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

