package generate

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI generates SQL through the Chat Completions API. BaseURL selects any
// compatible endpoint.
type OpenAI struct {
	client *openai.Client
	opts   Options
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), opts: opts}
}

func (g *OpenAI) Name() string { return ProviderOpenAI }

func (g *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.opts.Model,
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: float32(g.opts.Temperature),
	})
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Provider: ProviderOpenAI, Message: "empty response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error) error {
	se := &ServiceError{Provider: ProviderOpenAI, Message: err.Error(), Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		se.StatusCode = apiErr.HTTPStatusCode
		se.Message = apiErr.Message
	case errors.As(err, &reqErr):
		se.StatusCode = reqErr.HTTPStatusCode
	}
	return se
}
