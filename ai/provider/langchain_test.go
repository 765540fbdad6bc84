package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/teranos/cadence/ai/openrouter"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        ` {"name":"Ana"} `,
		GenerationInfo: map[string]any{"TotalTokens": 42},
	}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainClient_Chat(t *testing.T) {
	model := &fakeModel{}
	client := NewLangChainClient(model, "llama3.2:3b")

	temp := 0.5
	resp, err := client.Chat(context.Background(), openrouter.ChatRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		Temperature:  &temp,
		JSON:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Ana"}`, resp.Content)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 0.5, model.opts.Temperature)
	assert.True(t, model.opts.JSONMode)
}
