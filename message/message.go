package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn of a farmer conversation.
type Message struct {
	ID        string    `json:"id" bson:"id"`
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone copies a history slice so callers can append without aliasing.
func Clone(history []Message) []Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// LastIndex returns the index of the most recent message with the given
// role, or -1.
func LastIndex(history []Message, role Role) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return i
		}
	}
	return -1
}

// Transcript renders history as "role: content" lines for prompt context.
func Transcript(history []Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
