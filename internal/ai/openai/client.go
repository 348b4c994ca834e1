package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spigell/talentflow/internal/ai"
	"github.com/spigell/talentflow/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultMaxTokens    = 256
	defaultMaxLogLength = 200
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	MaxLogLength int
}

// Client implements ai.Client on top of the OpenAI chat completions API
// and any OpenAI-compatible endpoint.
type Client struct {
	api         chatAPI
	model       string
	maxTokens   int
	temperature float32
	maxLogLen   int
	logger      *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Client{
		api:         openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		maxLogLen:   maxLogLen,
		logger:      logger,
	}, nil
}

func (c *Client) Provider() string { return ai.ProviderOpenAI }

func (c *Client) Model() string { return c.model }

func (c *Client) GenerateText(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// GenerateJSON uses JSON object mode; the schema is embedded in the system prompt.
func (c *Client) GenerateJSON(ctx context.Context, system, user string, schema ai.Schema) (map[string]any, error) {
	instructions := strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON Schema:\n" + schema.JSONSchema())

	raw, err := c.complete(ctx, instructions, user, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
	if err != nil {
		return nil, err
	}

	return ai.ParseObject(raw)
}

func (c *Client) complete(ctx context.Context, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", errors.New("prompt must not be empty")
	}

	var messages []openai.ChatCompletionMessage
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	req := openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		MaxTokens:      c.maxTokens,
		Temperature:    c.temperature,
		ResponseFormat: format,
	}

	c.logger.Debug("openai chat completion request",
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", utils.TruncateForLog(user, c.maxLogLen)),
	)

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai api returned empty response")
	}

	c.logger.Debug("openai chat completion response",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("response_preview", utils.TruncateForLog(content, c.maxLogLen)),
	)

	return content, nil
}
