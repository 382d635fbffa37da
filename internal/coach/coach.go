// Package coach answers founder questions, through OpenAI when a key is
// configured and from a canned set otherwise.
package coach

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/resilience"
)

const (
	SourceOpenAI = "openai"
	SourceCanned = "canned"

	maxQuestionLength = 2000
)

// Answer is the coach's reply.
type Answer struct {
	Answer      string      `json:"answer"`
	Personality Personality `json:"personality"`
	Source      string      `json:"source"`
}

type Service struct {
	client  *openai.Client
	model   string
	pool    *resilience.ConnectionPool
	metrics *monitoring.Metrics
}

// NewService builds the coach. apiURL overrides the OpenAI endpoint and is
// only set in tests.
func NewService(cfg config.CoachConfig, pool *resilience.ConnectionPool, metrics *monitoring.Metrics, apiURL string) *Service {
	s := &Service{model: cfg.Model, pool: pool, metrics: metrics}
	if s.model == "" {
		s.model = openai.GPT4oMini
	}
	if cfg.OpenAIAPIKey == "" {
		return s
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientCfg.HTTPClient = pool.Client()
	if apiURL != "" {
		clientCfg.BaseURL = strings.TrimRight(apiURL, "/")
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

func (s *Service) Enabled() bool { return s.client != nil }

// Ask answers question in the given personality. Upstream failures fall back
// to a canned answer; only an invalid question is an error.
func (s *Service) Ask(ctx context.Context, question, personality string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.NewValidationError("Question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return Answer{}, errors.NewValidationError("Question is too long")
	}
	p := ParsePersonality(personality)

	if s.client != nil {
		text, err := s.complete(ctx, question, p)
		if err == nil {
			s.record(SourceOpenAI)
			return Answer{Answer: text, Personality: p, Source: SourceOpenAI}, nil
		}
		slog.Warn("Coach falling back to canned answer", "personality", p, "error", err)
	}

	s.record(SourceCanned)
	return Answer{Answer: Canned(question, p), Personality: p, Source: SourceCanned}, nil
}

func (s *Service) complete(ctx context.Context, question string, p Personality) (string, error) {
	var text string
	err := s.pool.Guard(ctx, func(ctx context.Context) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompts[p]},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
			MaxTokens:   300,
			Temperature: 0.7,
		})
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return errors.NewExternalAPIError("openai", stderrors.New("empty completion"))
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return text, err
}

func (s *Service) record(source string) {
	if s.metrics != nil {
		s.metrics.RecordCoachAnswer(source)
	}
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return resilience.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return resilience.NewHTTPError(reqErr.HTTPStatusCode, reqErr.HTTPStatus)
	}
	return errors.NewExternalAPIError("openai", err)
}
