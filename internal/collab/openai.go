package collab

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient captures the subset of the go-openai client used here, so tests
// can substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures an OpenAI-compatible collaborator. BaseURL covers
// the Azure and Together endpoints, which speak the same chat-completions
// protocol.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Persistent bool
}

// OpenAIChat is a Collaborator backed by an OpenAI-compatible chat API.
// It holds the conversation history; the remote service is stateless.
type OpenAIChat struct {
	client ChatClient
	model  string
	system string

	mu      sync.Mutex
	history []Message
}

// NewOpenAIChat builds a collaborator using the default HTTP client.
func NewOpenAIChat(cfg OpenAIConfig) (*OpenAIChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai collaborator: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai collaborator: model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewOpenAIChatWithClient(openai.NewClientWithConfig(clientCfg), cfg), nil
}

// NewOpenAIChatWithClient builds a collaborator over a caller-supplied chat
// client.
func NewOpenAIChatWithClient(client ChatClient, cfg OpenAIConfig) *OpenAIChat {
	return &OpenAIChat{
		client: client,
		model:  cfg.Model,
		system: SystemPrompt(cfg.Persistent),
	}
}

// Ask sends the prompt with the full prior conversation and records the
// reply.
func (c *OpenAIChat) Ask(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	messages := make([]openai.ChatCompletionMessage, 0, len(c.history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.system,
	})
	for _, m := range c.history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	c.mu.Unlock()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	reply := resp.Choices[0].Message.Content

	c.mu.Lock()
	c.history = append(c.history,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: reply},
	)
	c.mu.Unlock()

	return reply, nil
}

// DeleteHistory discards the conversation.
func (c *OpenAIChat) DeleteHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// History returns a copy of the transcript so far.
func (c *OpenAIChat) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}
