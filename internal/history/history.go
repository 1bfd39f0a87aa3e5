// Package history stores chat conversation turns so follow-up questions can be
// resolved against earlier answers.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/bunko/internal/cache"
	"github.com/hyperjump/bunko/internal/models"
)

// Defaults for retained history.
const (
	DefaultMaxMessages = 20
	DefaultTTL         = 7 * 24 * time.Hour
)

// Store keeps the most recent messages of each conversation.
type Store interface {
	// Get returns the conversation's messages, oldest first. Unknown ids yield an empty slice.
	Get(ctx context.Context, conversationID string) ([]models.Message, error)
	// Append adds messages and trims the conversation to the store's limit.
	Append(ctx context.Context, conversationID string, msgs ...models.Message) error
	Delete(ctx context.Context, conversationID string) error
}

// NewConversationID returns a fresh random conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

func trim(msgs []models.Message, max int) []models.Message {
	if max > 0 && len(msgs) > max {
		return msgs[len(msgs)-max:]
	}
	return msgs
}

// MemoryStore is a process-local Store. Conversations expire after ttl of inactivity.
type MemoryStore struct {
	maxMessages int
	convs       *cache.Cache[string, []models.Message]
}

// NewMemoryStore creates a store keeping maxMessages per conversation for up to
// maxConversations conversations.
func NewMemoryStore(maxMessages, maxConversations int, ttl time.Duration, opts ...cache.Option) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &MemoryStore{
		maxMessages: maxMessages,
		convs:       cache.New[string, []models.Message](maxConversations, ttl, opts...),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, ok := s.convs.Get(conversationID)
	if !ok {
		return []models.Message{}, nil
	}
	return append([]models.Message(nil), msgs...), nil
}

// Append implements Store. The read-modify-write is not atomic across concurrent
// appends to the same conversation; the last writer wins.
func (s *MemoryStore) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	existing, _ := s.convs.Get(conversationID)
	next := make([]models.Message, 0, len(existing)+len(msgs))
	next = append(next, existing...)
	next = append(next, msgs...)
	s.convs.Set(conversationID, trim(next, s.maxMessages))
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.convs.Delete(conversationID)
	return nil
}
