package provider

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/teranos/cadence/ai/openrouter"
	"github.com/teranos/cadence/errors"
)

// LangChainClient adapts a langchaingo model to ChatClient
type LangChainClient struct {
	llm   llms.Model
	model string
}

// NewLangChainClient wraps an existing langchaingo model
func NewLangChainClient(llm llms.Model, model string) *LangChainClient {
	return &LangChainClient{llm: llm, model: model}
}

// NewOllamaClient creates a client for a local Ollama server
func NewOllamaClient(host, model string) (*LangChainClient, error) {
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create ollama model")
	}
	return NewLangChainClient(llm, model), nil
}

// NewOpenAIClient creates a client for the OpenAI API
func NewOpenAIClient(apiKey, model string) (*LangChainClient, error) {
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create openai model")
	}
	return NewLangChainClient(llm, model), nil
}

// Chat sends the system and user prompts as one exchange
func (c *LangChainClient) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt))

	var opts []llms.CallOption
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*req.MaxTokens))
	}
	if req.Model != nil {
		opts = append(opts, llms.WithModel(*req.Model))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "generate content")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from model")
	}

	choice := resp.Choices[0]
	return &openrouter.ChatResponse{
		Content: strings.TrimSpace(choice.Content),
		Model:   c.model,
		Usage: openrouter.Usage{
			PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
			CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
			TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		},
	}, nil
}

func intInfo(info map[string]any, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
