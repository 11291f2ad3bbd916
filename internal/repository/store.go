// Package repository persists chat messages. The store is an interface
// boundary: history is append-only, keyed by user id and read back in
// creation order.
package repository

import (
	"context"

	"github.com/nimbuschat/backend/internal/model/chat"
)

// MessageStore is the persistence contract for chat turns. Save assigns the
// message id and timestamps; messages are immutable afterwards.
type MessageStore interface {
	Save(ctx context.Context, msg chat.Message) (chat.Message, error)
	History(ctx context.Context, userID string) ([]chat.Message, error)
	Recent(ctx context.Context, userID string, limit int) ([]chat.Message, error)
	Ping(ctx context.Context) error
}
