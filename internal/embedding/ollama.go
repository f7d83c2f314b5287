package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

const providerOllama = "ollama"

// OllamaProvider embeds text with a local Ollama server over its HTTP API.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllamaProvider creates an Ollama embedding client.
func NewOllamaProvider(baseURL, model string, dimensions int) *OllamaProvider {
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{},
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedReq{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewProviderUnavailable(providerOllama, apperrors.FailureTimeout, err)
		}
		return nil, apperrors.NewProviderUnavailable(providerOllama, apperrors.FailureUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.FromStatus(providerOllama, resp.StatusCode,
			fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewMalformedResponse(providerOllama, "decode response", err)
	}
	if len(result.Embedding) == 0 {
		return nil, apperrors.NewMalformedResponse(providerOllama, "empty embedding", nil)
	}
	if p.dimensions > 0 && len(result.Embedding) != p.dimensions {
		return nil, apperrors.NewMalformedResponse(providerOllama,
			fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(result.Embedding), p.dimensions), nil)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (p *OllamaProvider) Dimensions() int { return p.dimensions }

// Model returns the model name.
func (p *OllamaProvider) Model() string { return p.model }

// Close releases idle connections.
func (p *OllamaProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
