package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// TextClient is the minimal interface the generator needs from the
// generative text service. Kept small so tests can substitute a fake.
type TextClient interface {
	Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// =============================================================================
// GOOGLE GENAI TEXT CLIENT
// =============================================================================

// GenAIClient generates text using Google's Gemini API.
type GenAIClient struct {
	client      *genai.Client
	temperature float32
}

// NewGenAIClient creates a new GenAI text client.
func NewGenAIClient(ctx context.Context, apiKey string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, temperature: 0.9}, nil
}

// Generate implements TextClient.
func (c *GenAIClient) Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](c.temperature),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed (model=%s): %w", model, err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no text returned (model=%s)", model)
	}
	return text, nil
}
