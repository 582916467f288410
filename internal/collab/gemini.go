package collab

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini-backed collaborator.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Persistent bool
}

// GeminiChat is a Collaborator backed by the Google GenAI API. The API is
// stateless; the full history is replayed on every Ask.
type GeminiChat struct {
	client *genai.Client
	model  string
	system string

	mu      sync.Mutex
	history []Message
}

// geminiRole maps a transcript role onto the GenAI API's role names, which
// know only user and model turns.
func geminiRole(role string) genai.Role {
	if role == RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// NewGeminiChat creates a Gemini collaborator.
func NewGeminiChat(ctx context.Context, cfg GeminiConfig) (*GeminiChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini collaborator: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini collaborator: model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiChat{
		client: client,
		model:  cfg.Model,
		system: SystemPrompt(cfg.Persistent),
	}, nil
}

// Ask sends the prompt with the replayed conversation and records the reply.
func (c *GeminiChat) Ask(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	contents := make([]*genai.Content, 0, len(c.history)+1)
	for _, m := range c.history {
		contents = append(contents, genai.NewContentFromText(m.Content, geminiRole(m.Role)))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
	c.mu.Unlock()

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.system, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	reply := result.Text()
	if reply == "" {
		return "", fmt.Errorf("generate content returned no text")
	}

	c.mu.Lock()
	c.history = append(c.history,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: reply},
	)
	c.mu.Unlock()

	return reply, nil
}

// DeleteHistory discards the conversation.
func (c *GeminiChat) DeleteHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// History returns a copy of the transcript so far.
func (c *GeminiChat) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}
