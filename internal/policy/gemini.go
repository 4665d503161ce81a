package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLookup answers policy questions with a Gemini model.
type GeminiLookup struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLookup creates a Gemini-backed lookup.
func NewGeminiLookup(ctx context.Context, apiKey, modelID string) (*GeminiLookup, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("policy: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("policy: failed to create gemini client: %w", err)
	}
	return &GeminiLookup{client: client, modelID: modelID}, nil
}

func (g *GeminiLookup) LookupJustification(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrPolicyLookupUnavailable
	}
	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(200)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(query))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", ErrPolicyLookupUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrPolicyLookupUnavailable)
	}
	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned empty content", ErrPolicyLookupUnavailable)
	}
	return text, nil
}

// Close releases the Gemini client.
func (g *GeminiLookup) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
