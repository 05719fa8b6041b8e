package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// GPTClient speaks the OpenAI chat completions API; any compatible server
// works through baseURL.
type GPTClient struct {
	apiKey  string
	baseURL string
}

func NewGPTClient(apiKey, baseURL string) (*GPTClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing API key for openai provider")
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &GPTClient{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

type gptChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type gptResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *GPTClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "gpt_service_run")()
	return chatCompletion(ctx, c.baseURL, c.apiKey, req)
}

// chatCompletion runs one non-streaming OpenAI-style completion.
func chatCompletion(ctx context.Context, baseURL, apiKey string, req ChatRequest) (string, error) {
	body := gptChatRequest{Model: req.Model, Messages: req.Messages}
	var parsed gptResponse
	url := fmt.Sprintf("%s/chat/completions", baseURL)
	if err := httputils.PostJSON(ctx, nil, url, httputils.Bearer(apiKey), body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}
	return "", errors.New("no choices returned")
}
