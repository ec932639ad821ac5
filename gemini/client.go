// Package gemini talks to the Gemini API: the Live session that carries a
// phone call, and the one-shot generation calls of the post-call pipeline.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// NewClient creates a Gemini API client shared by every call.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// ContentGenerator is the part of *genai.Models the pipeline uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}
