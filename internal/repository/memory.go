package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuschat/backend/internal/model/chat"
)

// MemoryStore keeps message history in process memory. It is the default
// store when no Mongo URI is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]chat.Message),
	}
}

// Save appends a message to the user's history, assigning id and timestamps.
func (s *MemoryStore) Save(_ context.Context, msg chat.Message) (chat.Message, error) {
	now := time.Now().UTC()
	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	s.mu.Lock()
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	s.mu.Unlock()

	return msg, nil
}

// History returns all of the user's messages ascending by creation time.
func (s *MemoryStore) History(_ context.Context, userID string) ([]chat.Message, error) {
	s.mu.RLock()
	stored := s.messages[userID]
	copied := make([]chat.Message, len(stored))
	copy(copied, stored)
	s.mu.RUnlock()

	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt.Before(copied[j].CreatedAt)
	})
	return copied, nil
}

// Recent returns the last limit messages, still ascending by creation time.
func (s *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	all, err := s.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Ping reports the store as healthy; memory is always reachable.
func (s *MemoryStore) Ping(context.Context) error { return nil }
