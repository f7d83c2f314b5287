package intent

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

const (
	providerAnthropic = "anthropic"
	defaultMaxTokens  = 512
)

// messageCreator is the slice of the Anthropic SDK the client uses.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicLLM completes prompts with the Anthropic Messages API.
type AnthropicLLM struct {
	messages  messageCreator
	model     string
	maxTokens int
}

// NewAnthropicLLM creates a client. An empty apiKey lets the SDK read ANTHROPIC_API_KEY.
func NewAnthropicLLM(apiKey, model string, maxTokens int) *AnthropicLLM {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicLLM{messages: &client.Messages, model: model, maxTokens: maxTokens}
}

// Name returns the provider name.
func (a *AnthropicLLM) Name() string { return providerAnthropic }

// Complete sends one user message and returns the concatenated text blocks.
func (a *AnthropicLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", apperrors.NewMalformedResponse(providerAnthropic, "no text content in response", nil)
	}
	return b.String(), nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apperrors.FromStatus(providerAnthropic, apiErr.StatusCode, err)
	}
	return classifyTransportError(providerAnthropic, err)
}

func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewProviderUnavailable(provider, apperrors.FailureTimeout, err)
	}
	return apperrors.NewProviderUnavailable(provider, apperrors.FailureUnavailable, err)
}
