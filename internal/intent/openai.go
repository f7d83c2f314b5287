package intent

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

const providerOpenAI = "openai"

// OpenAILLM completes prompts with the OpenAI chat completions API.
type OpenAILLM struct {
	sdk       openaisdk.Client
	model     string
	maxTokens int
}

// NewOpenAILLM creates a chat client. baseURL may be empty.
func NewOpenAILLM(apiKey, baseURL, model string, maxTokens int) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAILLM{sdk: openaisdk.NewClient(opts...), model: model, maxTokens: maxTokens}
}

// Name returns the provider name.
func (o *OpenAILLM) Name() string { return providerOpenAI }

// Complete sends a system and a user message and returns the first choice.
func (o *OpenAILLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(o.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(prompt),
		},
		MaxCompletionTokens: param.NewOpt(int64(o.maxTokens)),
		Temperature:         param.NewOpt(0.0),
	})
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", apperrors.FromStatus(providerOpenAI, apiErr.StatusCode, err)
		}
		return "", classifyTransportError(providerOpenAI, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperrors.NewMalformedResponse(providerOpenAI, "no choices in response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
