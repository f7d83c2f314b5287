// Package embedding provides embedding providers, the query cache and the content-addressable embedding store.
package embedding

import "context"

// Provider produces vector embeddings for text. Implementations report failures as
// *apperrors.ProviderUnavailableError or *apperrors.MalformedResponseError.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
	Close() error
}
