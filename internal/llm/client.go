package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/pkg/circuitbreaker"
	"github.com/aadhaar-drishti/backend/pkg/logger"
	"github.com/aadhaar-drishti/backend/pkg/retry"
)

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Provider() string
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// guard runs provider calls through a circuit breaker and bounded retry.
type guard struct {
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	timeout     time.Duration
}

func newGuard(name string, timeout time.Duration) guard {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	return guard{cb: cb, retryConfig: retryConfig, timeout: timeout}
}

func (g guard) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			return fn(ctx)
		})
	})
}

func recordUsage(provider string, u Usage) {
	metrics.LLMTokensUsed.WithLabelValues(provider, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, "completion").Add(float64(u.CompletionTokens))
}

// isClientError reports a 4xx answer other than rate limiting. Retrying
// those only repeats the same rejection.
func isClientError(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429
}

type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	guard       guard
}

func NewOpenAIClient(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration) *OpenAIClient {
	logger.Info("LLM client initialized",
		zap.String("provider", "openai"),
		zap.String("model", model),
	)

	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		guard:       newGuard("openai", timeout),
	}
}

func (c *OpenAIClient) Provider() string { return "openai" }

func (c *OpenAIClient) Generate(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.guard.run(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			},
		)
		if err != nil {
			err = fmt.Errorf("failed to create completion: %w", err)
			if isClientError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordUsage(c.Provider(), result.Usage)
	logger.Debug("LLM completion generated",
		zap.String("provider", c.Provider()),
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
	)

	return result, nil
}
