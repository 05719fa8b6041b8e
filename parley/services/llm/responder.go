package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"parley/parley/config"
	"parley/parley/utils/errs"
	"parley/parley/utils/logging"
)

var defaultModels = map[string]string{
	"ollama":    "llama3.2",
	"openai":    "gpt-4o-mini",
	"groq":      "llama-3.1-8b-instant",
	"gemini":    "gemini-2.5-flash",
	"langchain": "gpt-4o-mini",
}

// Responder turns one utterance into one reply. No history is sent: each
// call is independent.
type Responder struct {
	client       Client
	model        string
	systemPrompt string
}

func NewResponder(client Client, model, systemPrompt string) *Responder {
	return &Responder{client: client, model: model, systemPrompt: systemPrompt}
}

// New builds the Responder for cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config) (*Responder, error) {
	provider := strings.ToLower(cfg.LLMProvider)
	if provider == "" {
		provider = "ollama"
	}
	model := cfg.LLMModel
	if model == "" {
		model = defaultModels[provider]
	}

	var (
		client Client
		err    error
	)
	switch provider {
	case "ollama":
		client = NewOllamaClient(cfg.LLMBaseURL)
	case "openai":
		client, err = NewGPTClient(cfg.LLMAPIKey, cfg.LLMBaseURL)
	case "groq":
		client, err = NewGroqClient(cfg.LLMAPIKey, cfg.LLMBaseURL)
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg.LLMAPIKey, cfg.LLMBaseURL)
	case "langchain":
		client, err = NewLangChainClient(cfg.LLMBaseURL, cfg.LLMAPIKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return NewResponder(client, model, cfg.SystemPrompt), nil
}

func (r *Responder) GetResponse(ctx context.Context, text string) (string, error) {
	defer logging.LogDuration(ctx, "responder_get_response")()

	var msgs []Message
	if r.systemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.systemPrompt})
	}
	msgs = append(msgs, Message{Role: "user", Content: text})

	reply, err := r.client.Run(ctx, ChatRequest{Model: r.model, Messages: msgs})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		logging.ErrorLogger.Error("responder failed", zap.String("model", r.model), zap.Error(err))
		return "", errs.Responder(err)
	}
	return reply, nil
}
