// AngelaMos | 2026
// client.go

package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/promptstudio/api/internal/config"
)

var (
	ErrEmptyCompletion = errors.New("empty completion")
	ErrNotConfigured   = errors.New("generation backend not configured")
)

// Generator is the model backend behind every generation kind.
type Generator interface {
	Chat(ctx context.Context, in ChatInput) (string, error)
	Images(ctx context.Context, prompt string, n int, size string) ([]string, error)
}

// ChatInput is a single-turn request. ImageURL is attached as vision input
// when set.
type ChatInput struct {
	System   string
	User     string
	ImageURL string
}

type AzureClient struct {
	client          *openai.Client
	chatDeployment  string
	imageDeployment string
	maxTokens       int
}

func NewAzureClient(cfg config.AIConfig) (*AzureClient, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("azure openai endpoint and api key are required")
	}

	oaCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		oaCfg.APIVersion = cfg.APIVersion
	}
	// Deployment names are used as given.
	oaCfg.AzureModelMapperFunc = func(model string) string {
		return model
	}
	oaCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &AzureClient{
		client:          openai.NewClientWithConfig(oaCfg),
		chatDeployment:  cfg.ChatDeployment,
		imageDeployment: cfg.ImageDeployment,
		maxTokens:       cfg.MaxTokens,
	}, nil
}

func (c *AzureClient) Chat(ctx context.Context, in ChatInput) (string, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: in.User,
	}

	if in.ImageURL != "" {
		user.Content = ""
		user.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: in.User,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    in.ImageURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.chatDeployment,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: in.System,
			},
			user,
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w", ErrEmptyCompletion)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion: %w", ErrEmptyCompletion)
	}

	return text, nil
}

func (c *AzureClient) Images(
	ctx context.Context,
	prompt string,
	n int,
	size string,
) ([]string, error) {
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageDeployment,
		N:              n,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("create image: %w", ErrEmptyCompletion)
	}

	return urls, nil
}

// Unavailable stands in when no model backend is configured. Every call
// fails, so reserved units are always released.
type Unavailable struct{}

func (Unavailable) Chat(context.Context, ChatInput) (string, error) {
	return "", ErrNotConfigured
}

func (Unavailable) Images(context.Context, string, int, string) ([]string, error) {
	return nil, ErrNotConfigured
}

var (
	_ Generator = (*AzureClient)(nil)
	_ Generator = Unavailable{}
)
