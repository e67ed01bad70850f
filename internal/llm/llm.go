// Package llm wraps google.golang.org/genai for both text generation and
// embeddings, bounding concurrent calls with a semaphore so the adapter —
// not the orchestrator — enforces the external rate limit (spec §5).
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for script/judge prompts.
	DefaultModel = "gemini-2.0-flash"
	// DefaultEmbeddingModel produces 768-dim vectors via Matryoshka truncation.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// EmbeddingDimensions is the fixed vector size the core requires.
	EmbeddingDimensions = int32(768)
	// MaxEmbeddingInputChars is the caller-side truncation bound (spec §4.2).
	MaxEmbeddingInputChars = 8000
)

// Client wraps the genai SDK behind a bounded-concurrency adapter.
type Client struct {
	modelName string
	gClient   *genai.Client
	sem       chan struct{}
}

// TextGenerationOptions configures one GenerateText call.
type TextGenerationOptions struct {
	MaxTokens   int32
	Temperature float32
	Model       string
}

// NewClient builds a Client, resolving the API key from the environment
// or viper config in that order, matching the donor's multi-source
// lookup.
func NewClient(modelName string, maxConcurrent int) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			apiKey = viper.GetString("ai.gemini_api_key")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or ai.gemini_api_key")
	}

	if modelName == "" {
		modelName = DefaultModel
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName: modelName,
		gClient:   gClient,
		sem:       make(chan struct{}, maxConcurrent),
	}, nil
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// GenerateText generates plain text content for prompt, bounded by the
// client's concurrency semaphore.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts TextGenerationOptions) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	model := opts.Model
	if model == "" {
		model = c.modelName
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var genConfig *genai.GenerateContentConfig
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		genConfig = &genai.GenerateContentConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     genai.Ptr(opts.Temperature),
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// Narrow adapts Client to the bare GenerateText(ctx, prompt)
// (string, error) shape that internal/clustering.Judge and
// internal/script.Generator depend on, fixing one set of generation
// options per call site so neither package needs to know about
// TextGenerationOptions.
type Narrow struct {
	client *Client
	opts   TextGenerationOptions
}

// NewNarrow builds a Narrow generator bound to opts.
func NewNarrow(client *Client, opts TextGenerationOptions) Narrow {
	return Narrow{client: client, opts: opts}
}

// GenerateText implements the narrow Judge/Generator contract.
func (n Narrow) GenerateText(ctx context.Context, prompt string) (string, error) {
	return n.client.GenerateText(ctx, prompt, n.opts)
}

// GenerateEmbedding produces a 768-dim embedding for text, truncating to
// MaxEmbeddingInputChars first (spec §4.2's "caller truncates" contract).
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if len(text) > MaxEmbeddingInputChars {
		text = text[:MaxEmbeddingInputChars]
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	dims := EmbeddingDimensions
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	resp, err := c.gClient.Models.EmbedContent(ctx, DefaultEmbeddingModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned")
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, v := range values {
		embedding[i] = float64(v)
	}
	return embedding, nil
}
