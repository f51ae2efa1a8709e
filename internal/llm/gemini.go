package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/aadhaar-drishti/backend/pkg/logger"
)

type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
	guard       guard
}

func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float32, maxTokens int, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("LLM client initialized",
		zap.String("provider", "gemini"),
		zap.String("model", model),
	)

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		guard:       newGuard("gemini", timeout),
	}, nil
}

func (c *GeminiClient) Provider() string { return "gemini" }

func (c *GeminiClient) Generate(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	var result *CompletionResponse

	err := c.guard.run(ctx, func(ctx context.Context) error {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), cfg)
		if err != nil {
			return fmt.Errorf("failed to generate content: %w", err)
		}

		text := resp.Text()
		if text == "" {
			return fmt.Errorf("gemini returned an empty response")
		}

		result = &CompletionResponse{Content: text}
		if u := resp.UsageMetadata; u != nil {
			result.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
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
