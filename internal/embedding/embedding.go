// Package embedding implements the Embedding Adapter contract (spec
// §4.2): a synchronous embed(text) -> vector<768> call whose transient
// failures are non-fatal to the caller.
package embedding

import "context"

// Embedder is the narrow contract the clustering pipeline depends on.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Adapter wraps an Embedder, bounding input length per the truncation
// contract (the underlying llm.Client already truncates, this guards any
// future Embedder implementation that doesn't).
type Adapter struct {
	client    Embedder
	maxChars  int
}

// New builds an Adapter over client with the given input character bound.
func New(client Embedder, maxChars int) *Adapter {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Adapter{client: client, maxChars: maxChars}
}

// Embed returns a 768-dim vector for text, or an error the caller should
// treat as non-fatal (skip the article, per spec §4.2).
func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if len(text) > a.maxChars {
		text = text[:a.maxChars]
	}
	return a.client.GenerateEmbedding(ctx, text)
}
