package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/llmcouncil/council/council"
)

// BucketConversations is the KV bucket holding conversations, one entry per
// conversation keyed by its id.
const BucketConversations = "COUNCIL_CONVERSATIONS"

// NATSStore persists conversations in a NATS JetStream KV bucket.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates the store, creating the bucket if needed.
func NewNATSStore(ctx context.Context, js jetstream.JetStream) (*NATSStore, error) {
	kv, err := js.KeyValue(ctx, BucketConversations)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketConversations,
			Description: "Council conversation storage",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create conversations bucket: %w", err)
		}
	}
	return &NATSStore{kv: kv}, nil
}

// CreateConversation creates an empty conversation.
func (s *NATSStore) CreateConversation(ctx context.Context) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     "New Conversation",
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation: %w", err)
	}
	if _, err := s.kv.Create(ctx, conv.ID, data); err != nil {
		return nil, fmt.Errorf("store conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (s *NATSStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns summaries of all conversations, most recently
// updated first.
func (s *NATSStore) ListConversations(ctx context.Context) ([]Summary, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list conversation keys: %w", err)
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var conv Conversation
		if err := json.Unmarshal(entry.Value(), &conv); err != nil {
			continue
		}
		summaries = append(summaries, summarize(&conv))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// AppendUserMessage appends a user turn.
func (s *NATSStore) AppendUserMessage(ctx context.Context, id, text string) error {
	return s.update(ctx, id, func(conv *Conversation, now time.Time) {
		conv.Messages = append(conv.Messages, Message{
			ID:        uuid.New().String(),
			Role:      RoleUser,
			Content:   text,
			CreatedAt: now,
		})
	})
}

// AppendAssistantMessage appends the council output as an assistant turn.
func (s *NATSStore) AppendAssistantMessage(ctx context.Context, id string, result *council.CouncilResult) error {
	return s.update(ctx, id, func(conv *Conversation, now time.Time) {
		conv.Messages = append(conv.Messages, assistantMessage(uuid.New().String(), result, now))
	})
}

// UpdateTitle replaces the conversation title.
func (s *NATSStore) UpdateTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, id, func(conv *Conversation, _ time.Time) {
		conv.Title = title
	})
}

// update applies mutate under optimistic concurrency: the write fails and
// retries if the entry revision moved between read and write.
func (s *NATSStore) update(ctx context.Context, id string, mutate func(*Conversation, time.Time)) error {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("get conversation: %w", err)
		}

		var conv Conversation
		if err := json.Unmarshal(entry.Value(), &conv); err != nil {
			return fmt.Errorf("unmarshal conversation: %w", err)
		}

		now := time.Now().UTC()
		mutate(&conv, now)
		conv.UpdatedAt = now

		data, err := json.Marshal(&conv)
		if err != nil {
			return fmt.Errorf("marshal conversation: %w", err)
		}

		if _, err := s.kv.Update(ctx, id, data, entry.Revision()); err != nil {
			lastErr = err
			continue // Revision conflict, re-read and retry
		}
		return nil
	}
	return fmt.Errorf("update conversation after %d attempts: %w", maxAttempts, lastErr)
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
