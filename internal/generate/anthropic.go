package generate

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic generates SQL through the Messages API.
type Anthropic struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropic creates an Anthropic generator. The SDK's own retries are
// disabled; a failed call is final for the turn.
func NewAnthropic(opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(reqOpts...), opts: opts}
}

func (g *Anthropic) Name() string { return ProviderAnthropic }

func (g *Anthropic) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.opts.Model),
		MaxTokens:   int64(g.opts.MaxTokens),
		Temperature: anthropic.Float(g.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", anthropicError(err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &ServiceError{Provider: ProviderAnthropic, Message: "no text content in response"}
}

func anthropicError(err error) error {
	se := &ServiceError{Provider: ProviderAnthropic, Message: err.Error(), Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		se.StatusCode = apiErr.StatusCode
	}
	return se
}
