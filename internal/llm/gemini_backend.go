package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend generates replies with the Google GenAI SDK.
type GeminiBackend struct {
	model  string
	client *genai.Client
}

// NewGeminiBackend creates a client bound to apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("empty API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	return &GeminiBackend{
		model:  strings.TrimPrefix(model, "models/"),
		client: client,
	}, nil
}

// Generate sends the conversation and returns the first candidate's text.
func (b *GeminiBackend) Generate(ctx context.Context, turns []Turn) (string, error) {
	contents := toGenAIContents(turns)
	if len(contents) == 0 {
		return "", errors.New("empty conversation")
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, nil)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty response (%s)", reason)
	}
	return collectText(resp.Candidates[0].Content), nil
}

// toGenAIContents maps stored roles onto Gemini's user/model roles. Gemini
// requires the conversation to start with a user turn, so leading assistant
// turns are dropped. Consecutive turns of one role, left by a failed request,
// become parts of a single content.
func toGenAIContents(turns []Turn) []*genai.Content {
	start := 0
	for start < len(turns) && turns[start].Role == RoleAssistant {
		start++
	}

	contents := make([]*genai.Content, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		if n := len(contents); n > 0 && contents[n-1].Role == string(role) {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.NewPartFromText(turn.Content))
			continue
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return contents
}

func collectText(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
