package collab

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiRoleMapping(t *testing.T) {
	cases := []struct {
		role string
		want genai.Role
	}{
		{RoleAssistant, genai.RoleModel},
		{RoleUser, genai.RoleUser},
		{RoleSystem, genai.RoleUser},
	}
	for _, tc := range cases {
		if got := geminiRole(tc.role); got != tc.want {
			t.Errorf("geminiRole(%q) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func TestNewGeminiChatRequiresKeyAndModel(t *testing.T) {
	ctx := context.Background()
	if _, err := NewGeminiChat(ctx, GeminiConfig{Model: "gemini-2.5-pro"}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := NewGeminiChat(ctx, GeminiConfig{APIKey: "key"}); err == nil {
		t.Error("expected error for missing model")
	}
}
