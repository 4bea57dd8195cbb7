package openai

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

type Client struct {
	api   openaisdk.Client
	model string
	log   zerolog.Logger
}

func NewClient(apiKey, model string, log zerolog.Logger) *Client {
	return &Client{
		api:   openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		log:   log,
	}
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	if strings.TrimSpace(c.model) == "" {
		return "", &domain.UpstreamError{Engine: "openai", Err: errors.New("missing model")}
	}
	parts := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			parts = append(parts, openaisdk.SystemMessage(m.Content))
		case domain.RoleAssistant:
			parts = append(parts, openaisdk.AssistantMessage(m.Content))
		default:
			parts = append(parts, openaisdk.UserMessage(m.Content))
		}
	}
	resp, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.model),
		Messages: parts,
	})
	if err != nil {
		return "", &domain.UpstreamError{Engine: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.UpstreamError{Engine: "openai", Err: errors.New("no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
