// Package storage provides conversation persistence. The council engine
// never touches it: the HTTP service records engine output here after a run
// completes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/llmcouncil/council/council"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Role values for stored messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored conversation turn. Assistant turns carry the full
// three-stage council output.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Council output, set on assistant messages only.
	Stage1 []council.ModelResponse `json:"stage1,omitempty"`
	Stage2 *council.Stage2Result   `json:"stage2,omitempty"`
	Stage3 *council.Stage3Result   `json:"stage3,omitempty"`
}

// Conversation is a titled sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// Summary is the listing view of a conversation, without message bodies.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationStore is the persistence collaborator consumed by the HTTP
// service.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Summary, error)
	AppendUserMessage(ctx context.Context, id, text string) error
	AppendAssistantMessage(ctx context.Context, id string, result *council.CouncilResult) error
	UpdateTitle(ctx context.Context, id, title string) error
}

// summarize builds the listing view of c.
func summarize(c *Conversation) Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// assistantMessage builds the stored form of a council result.
func assistantMessage(id string, result *council.CouncilResult, now time.Time) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		Content:   result.Stage3.Content,
		CreatedAt: now,
		Stage1:    result.Stage1,
		Stage2:    &result.Stage2,
		Stage3:    &result.Stage3,
	}
}
