package semantic

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

type embedContenter interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAIEmbedder produces semantic-similarity embeddings with the Gemini API.
type GenAIEmbedder struct {
	models embedContenter
	model  string
}

func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("genai api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenAIEmbedder(client.Models, model), nil
}

func newGenAIEmbedder(models embedContenter, model string) *GenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GenAIEmbedder{models: models, model: model}
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("embed content: no embeddings returned")
	}
	return resp.Embeddings[0].Values, nil
}
