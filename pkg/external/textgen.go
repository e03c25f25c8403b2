// Package external wraps the outbound collaborators: the OpenAI-compatible
// text generation service and the image classification service. Both are
// guarded by a circuit breaker and a client-side rate limiter.
package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medtriage-server/internal/domain"
)

// newBreaker builds the shared circuit breaker settings used by both
// collaborators.
func newBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			}
		},
	})
}

// OpenAITextGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAITextGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewOpenAITextGenerator builds the text generation client.
func NewOpenAITextGenerator(cfg domain.TextGenConfig, logger *logrus.Logger) *OpenAITextGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}

	return &OpenAITextGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: newBreaker("textgen", logger),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		logger:  logger,
	}
}

// Generate runs one chat completion. An empty completion is reported as
// ErrEmptyGeneration; breaker and transport failures map to
// ErrCollaboratorUnavailable.
func (g *OpenAITextGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", domain.ErrCollaboratorUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (any, error) {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: text generation circuit open", domain.ErrCollaboratorUnavailable)
		}
		g.logger.WithError(err).Error("Text generation request failed")
		return "", fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err)
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", domain.ErrEmptyGeneration
	}
	return text, nil
}
