package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmcouncil/council/council"
)

// MemoryStore is an in-process ConversationStore. It backs single-node
// deployments without NATS and keeps service tests hermetic.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

// CreateConversation creates an empty conversation.
func (s *MemoryStore) CreateConversation(_ context.Context) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     "New Conversation",
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

// GetConversation retrieves a conversation by id.
func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// ListConversations returns summaries, most recently updated first.
func (s *MemoryStore) ListConversations(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		summaries = append(summaries, summarize(conv))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// AppendUserMessage appends a user turn.
func (s *MemoryStore) AppendUserMessage(_ context.Context, id, text string) error {
	return s.update(id, func(conv *Conversation, now time.Time) {
		conv.Messages = append(conv.Messages, Message{
			ID:        uuid.New().String(),
			Role:      RoleUser,
			Content:   text,
			CreatedAt: now,
		})
	})
}

// AppendAssistantMessage appends the council output as an assistant turn.
func (s *MemoryStore) AppendAssistantMessage(_ context.Context, id string, result *council.CouncilResult) error {
	return s.update(id, func(conv *Conversation, now time.Time) {
		conv.Messages = append(conv.Messages, assistantMessage(uuid.New().String(), result, now))
	})
}

// UpdateTitle replaces the conversation title.
func (s *MemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	return s.update(id, func(conv *Conversation, _ time.Time) {
		conv.Title = title
	})
}

func (s *MemoryStore) update(id string, mutate func(*Conversation, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	mutate(conv, now)
	conv.UpdatedAt = now
	return nil
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
