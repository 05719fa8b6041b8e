// parley/services/llm/groq_client.go
package llm

import (
	"context"
	"errors"
	"strings"

	"parley/parley/utils/logging"
)

// Groq's OpenAI-compatible base path.
const DefaultGroqURL = "https://api.groq.com/openai/v1"

type GroqClient struct {
	baseURL string
	apiKey  string
}

func NewGroqClient(apiKey, baseURL string) (*GroqClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing API key for groq provider")
	}
	if baseURL == "" {
		baseURL = DefaultGroqURL
	}
	return &GroqClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}, nil
}

func (c *GroqClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "groq_service_run")()
	return chatCompletion(ctx, c.baseURL, c.apiKey, req)
}
