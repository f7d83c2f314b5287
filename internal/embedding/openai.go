package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

const providerOpenAI = "openai"

// OpenAIProvider calls the OpenAI embeddings API via the official SDK.
type OpenAIProvider struct {
	sdk        openaisdk.Client
	model      string
	dimensions int
}

// NewOpenAIProvider creates an embeddings client. baseURL may be empty.
// SDK-level retries are disabled; ResilientProvider owns retry policy.
func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		sdk:        openaisdk.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed returns the embedding vector for text. The returned slice length equals Dimensions().
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("content", "input text is empty")
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model: openaisdk.EmbeddingModel(p.model),
	}
	// Only the text-embedding-3 family accepts a reduced dimension.
	if strings.HasPrefix(p.model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}

	resp, err := p.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.NewMalformedResponse(providerOpenAI, "no embedding in response", nil)
	}

	emb := resp.Data[0].Embedding
	if len(emb) != p.dimensions {
		return nil, apperrors.NewMalformedResponse(providerOpenAI,
			fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(emb), p.dimensions), nil)
	}
	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// Model returns the model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Close is a no-op; the SDK client holds no resources.
func (p *OpenAIProvider) Close() error { return nil }

func classifyOpenAIError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return apperrors.FromStatus(providerOpenAI, apiErr.StatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderUnavailable(providerOpenAI, apperrors.FailureTimeout, err)
	}
	return apperrors.NewProviderUnavailable(providerOpenAI, apperrors.FailureUnavailable, err)
}
