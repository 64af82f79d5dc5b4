package flow

import (
	"strings"
)

// Chat flow identifiers.
const (
	ChatFlowName   = "personal-chat"
	ChatPromptSlug = "personal-chat"

	// DefaultMaxHistory caps the turns forwarded to the model.
	DefaultMaxHistory = 20
)

// ChatTurn is one earlier message in the conversation.
type ChatTurn struct {
	Role    string `json:"role" jsonschema:"enum=user,enum=assistant"`
	Content string `json:"content"`
}

// ChatInput is a visitor question plus optional prior turns, oldest first.
type ChatInput struct {
	Message             string     `json:"message" jsonschema:"minLength=1"`
	ConversationHistory []ChatTurn `json:"conversationHistory,omitempty"`
}

// ChatOutput is the assistant reply.
type ChatOutput struct {
	Response   string `json:"response" jsonschema:"description=Answer about the portfolio owner"`
	IsRelevant bool   `json:"isRelevant" jsonschema:"description=Whether the question was about the portfolio owner"`
}

// ChatFlow answers questions about the portfolio owner.
type ChatFlow = Flow[ChatInput, ChatOutput]

// ChatOptions configures the chat flow.
type ChatOptions struct {
	Owner      string
	Knowledge  string
	MaxHistory int
}

// NewChatFlow builds the chat flow. It checks the rate limit before
// validating input.
func NewChatFlow(deps Deps, opts ChatOptions) (*ChatFlow, error) {
	owner := strings.TrimSpace(opts.Owner)
	if owner == "" {
		owner = DefaultOwner
	}
	knowledge := opts.Knowledge
	if strings.TrimSpace(knowledge) == "" {
		knowledge = DefaultKnowledge()
	}
	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	return New(Definition[ChatInput, ChatOutput]{
		Name:       ChatFlowName,
		PromptSlug: ChatPromptSlug,
		Order:      RateCheckFirst,
		Variables: func(in ChatInput) map[string]string {
			return map[string]string{
				"owner":     owner,
				"knowledge": knowledge,
				"message":   in.Message,
				"history":   RenderHistory(in.ConversationHistory, maxHistory),
			}
		},
	}, deps)
}

// RenderHistory formats the last max turns as "role: content" lines in
// chronological order.
func RenderHistory(turns []ChatTurn, max int) string {
	if len(turns) == 0 {
		return ""
	}
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
