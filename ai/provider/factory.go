package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/cadence/ai/openrouter"
	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
)

// Provider represents a text generation backend
type Provider string

const (
	// ProviderOpenRouter uses the OpenRouter.ai API
	ProviderOpenRouter Provider = "openrouter"
	// ProviderOllama uses a local Ollama server through langchaingo
	ProviderOllama Provider = "ollama"
	// ProviderOpenAI uses the OpenAI API through langchaingo
	ProviderOpenAI Provider = "openai"
)

// ChatClient is implemented by every text provider
type ChatClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ParseProvider converts a config value to a Provider
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "openrouter":
		return ProviderOpenRouter, nil
	case "ollama", "local":
		return ProviderOllama, nil
	case "openai":
		return ProviderOpenAI, nil
	default:
		return "", errors.Newf("unknown text provider: %s (valid: openrouter, ollama, openai)", s)
	}
}

// NewChatClient creates the client selected by generation.text_provider
func NewChatClient(cfg *am.Config, log *zap.SugaredLogger) (ChatClient, error) {
	p, err := ParseProvider(cfg.Generation.TextProvider)
	if err != nil {
		return nil, err
	}

	switch p {
	case ProviderOllama:
		return NewOllamaClient(cfg.LLM.OllamaHost, cfg.LLM.Model)
	case ProviderOpenAI:
		if cfg.LLM.OpenAIAPIKey == "" {
			return nil, errors.Wrap(errors.ErrUnauthorized, "llm.openai_api_key is required for the openai provider")
		}
		return NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model)
	default:
		if cfg.OpenRouter.APIKey == "" {
			log.Warnw("OpenRouter API key not configured, profile synthesis will fail")
		}
		return openrouter.NewClient(openrouter.Config{
			APIKey:            cfg.OpenRouter.APIKey,
			Model:             cfg.OpenRouter.Model,
			Temperature:       cfg.OpenRouter.Temperature,
			MaxTokens:         cfg.OpenRouter.MaxTokens,
			RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
			Logger:            log.Named("openrouter"),
		}), nil
	}
}

// NewTextGenerator wires the configured chat client into a ProfileWriter
func NewTextGenerator(cfg *am.Config, log *zap.SugaredLogger) (*ProfileWriter, error) {
	client, err := NewChatClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}
	return NewProfileWriter(client, log), nil
}
