package flow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRenderHistory(t *testing.T) {
	turns := []ChatTurn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}

	cases := []struct {
		name string
		max  int
		want string
	}{
		{"all", 0, "user: one\nassistant: two\nuser: three"},
		{"capped", 2, "assistant: two\nuser: three"},
		{"larger cap", 10, "user: one\nassistant: two\nuser: three"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, RenderHistory(turns, tc.max)); diff != "" {
				t.Fatalf("history mismatch (-want +got):\n%s", diff)
			}
		})
	}
	require.Empty(t, RenderHistory(nil, 5))
}

func TestLoadKnowledge(t *testing.T) {
	text, err := LoadKnowledge("")
	require.NoError(t, err)
	require.Contains(t, text, "Janitha")

	path := filepath.Join(t.TempDir(), "kb.md")
	require.NoError(t, os.WriteFile(path, []byte("# Custom\nfacts"), 0o600))
	text, err = LoadKnowledge(path)
	require.NoError(t, err)
	require.Equal(t, "# Custom\nfacts", text)

	empty := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err = LoadKnowledge(empty)
	require.Error(t, err)

	_, err = LoadKnowledge(filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
}

func TestChatInputSchema(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	chat, err := NewChatFlow(Deps{Model: &spyModel{}, Limiter: limiter}, ChatOptions{})
	require.NoError(t, err)

	schema := chat.InputSchema()
	require.ElementsMatch(t, []any{"message"}, schema["required"])
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "conversationHistory")
}

func TestChatAcceptsLongQuestions(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"response":"Happy to help.","isRelevant":true}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter}, ChatOptions{})
	require.NoError(t, err)

	message := chat.InputSchema()["properties"].(map[string]any)["message"].(map[string]any)
	require.NotContains(t, message, "maxLength")

	out, err := chat.Invoke(context.Background(), "", ChatInput{Message: strings.Repeat("Tell me more about your Go work. ", 200)})
	require.NoError(t, err)
	require.Equal(t, "Happy to help.", out.Response)
	require.Equal(t, 1, model.count())

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: ""})
	ferr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindInvalidInput, ferr.Kind)
}
