// parley/services/llm/llm.go
package llm

import (
	"context"
	"errors"

	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
)

// Client is one text-generation backend.
type Client interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
}

type ChatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  interface{} `json:"options,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

const DefaultOllamaURL = "http://localhost:11434/api"

type OllamaClient struct {
	baseURL string
}

func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaClient{baseURL: baseURL}
}

func (c *OllamaClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "ollama_service_run")()
	req.Stream = false
	var resp ChatResponse
	if err := httputils.PostJSON(ctx, nil, c.baseURL+"/chat", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", errors.New("no content in ollama response")
	}
	return resp.Message.Content, nil
}
