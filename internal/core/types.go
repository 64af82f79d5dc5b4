package core

import (
	"strings"
	"time"
)

// LimitKind identifies which quota produced a rate limit decision.
type LimitKind string

const (
	LimitNone LimitKind = "none"
	LimitRPM  LimitKind = "rpm"
	LimitRPD  LimitKind = "rpd"
)

// Decision reports whether a request may proceed and why.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Message string    `json:"message"`
	Kind    LimitKind `json:"kind"`

	// RetryAfter is a wait hint for denied requests. Zero when allowed.
	RetryAfter time.Duration `json:"-"`
}

// Message is a stored contact form submission.
type Message struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"message"`
	Read      bool      `json:"read"`
	Starred   bool      `json:"starred"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageFlags is a partial update of a message's admin flags.
// Nil fields are left unchanged.
type MessageFlags struct {
	Read    *bool `json:"read,omitempty"`
	Starred *bool `json:"starred,omitempty"`
}

// Empty reports whether the update changes nothing.
func (f MessageFlags) Empty() bool {
	return f.Read == nil && f.Starred == nil
}

// ChatRole is the author of a conversation turn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ParseChatRole normalizes a role string.
func ParseChatRole(value string) (ChatRole, bool) {
	switch ChatRole(strings.ToLower(strings.TrimSpace(value))) {
	case ChatRoleUser:
		return ChatRoleUser, true
	case ChatRoleAssistant:
		return ChatRoleAssistant, true
	default:
		return "", false
	}
}
