package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/metrics"
)

// chatClient is the consumer interface over the OpenAI SDK, narrowed for
// test doubles.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Completer answers prompts through one chat model behind a circuit
// breaker. One Completer serves one inference tier.
type Completer struct {
	client      chatClient
	tier        domain.Tier
	model       string
	temperature float32
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

// CompleterConfig holds one tier's inference settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Tier        domain.Tier
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completer for a tier.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := &Completer{
		client:      openai.NewClientWithConfig(clientCfg),
		tier:        cfg.Tier,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("inference-%s", cfg.Tier),
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Inference circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Complete implements domain.Completer: one prompt in, raw model text out.
// JSON object output is requested from the API but never trusted; the
// contract validator decides what the text actually is.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	out, err := c.breaker.Execute(func() (any, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues(string(c.tier), c.model, "error").Inc()
		return "", c.mapError(err)
	}

	resp := out.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		metrics.InferenceRequestsTotal.WithLabelValues(string(c.tier), c.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrInferenceProviderError)
	}

	metrics.InferenceRequestsTotal.WithLabelValues(string(c.tier), c.model, "success").Inc()
	metrics.InferenceRequestDuration.WithLabelValues(string(c.tier), c.model).Observe(time.Since(start).Seconds())

	return resp.Choices[0].Message.Content, nil
}

// mapError folds SDK and breaker errors into the domain taxonomy.
func (c *Completer) mapError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("inference call: %w", domain.ErrProviderTimeout)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("inference circuit open: %w", domain.ErrInferenceProviderError)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("inference API: %w", domain.ErrRateLimited)
		}
		return fmt.Errorf("inference API error %d: %w", reqErr.HTTPStatusCode, domain.ErrInferenceProviderError)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("inference API: %w", domain.ErrRateLimited)
		}
		return fmt.Errorf("inference API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrInferenceProviderError)
	}

	return fmt.Errorf("inference request failed: %w", domain.ErrInferenceProviderError)
}

// Tiers resolves a completer per inference tier.
type Tiers struct {
	Fast domain.Completer
	Deep domain.Completer
}

// Tier implements domain.TierCompleter.
func (t Tiers) Tier(tier domain.Tier) domain.Completer {
	if tier == domain.TierDeep {
		return t.Deep
	}
	return t.Fast
}
