package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client with any OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient targets baseURL when set, the public API otherwise.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	system, turns, err := req.split()
	if err != nil {
		return Response{}, err
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	chat := openai.ChatCompletionRequest{Model: req.model(c.model), Messages: messages}
	if req.MaxTokens > 0 {
		chat.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		chat.Temperature = req.Temperature
	}
	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return Response{}, fmt.Errorf("ai: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("ai: openai returned no choices")
	}
	return Response{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
