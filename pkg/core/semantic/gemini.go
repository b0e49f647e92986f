// Package semantic provides the production embedding backend for the
// matching engine's semantic layer, built on Google's GenAI SDK.
package semantic

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"finmatch/pkg/core/match"
)

// GeminiEmbedder implements match.TextEmbedder against the Gemini API.
type GeminiEmbedder struct {
	Model string // e.g. "gemini-embedding-001"

	client *genai.Client
}

// Ensure interface compliance
var _ match.TextEmbedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates the embedder. GEMINI_API_KEY must be set.
func NewGeminiEmbedder(ctx context.Context, model string) (*GeminiEmbedder, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiEmbedder{Model: model, client: client}, nil
}

// Embed returns one vector per input text, in input order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
			len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
