package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	chatmodel "github.com/nimbuschat/backend/internal/model/chat"
	"github.com/nimbuschat/backend/internal/model/user"
	"github.com/nimbuschat/backend/internal/repository"
	"github.com/nimbuschat/backend/internal/session"
	"github.com/nimbuschat/backend/internal/service/chunk"
)

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrEmptyResponse  = errors.New("failed to generate AI response")
)

const (
	maxMessageChars = 1000
	contextWindow   = 20
	chunkPacing     = 100 * time.Millisecond
)

// Generator produces reply text for a user message, optionally as an
// incremental token stream.
type Generator interface {
	Generate(ctx context.Context, text string, history []chatmodel.Message) (string, error)
	GenerateStream(ctx context.Context, text string, history []chatmodel.Message, onToken func(string)) (string, error)
	StreamingEnabled() bool
}

// StreamChunkEvent is the stream-chunk payload pushed over the socket.
type StreamChunkEvent struct {
	chatmodel.StreamChunk
	Timestamp string `json:"timestamp"`
}

// Service turns one inbound user message into persisted history plus an
// ordered chunk stream to the user's live connection.
type Service struct {
	store     repository.MessageStore
	generator Generator
	sessions  *session.Directory

	// pacing between chunks when the backend did not itself stream tokens;
	// shortened in tests.
	pacing time.Duration
}

// NewService wires the coordinator to its collaborators.
func NewService(store repository.MessageStore, generator Generator, sessions *session.Directory) *Service {
	return &Service{
		store:     store,
		generator: generator,
		sessions:  sessions,
		pacing:    chunkPacing,
	}
}

// Send handles request/response mode: the caller receives the complete bot
// message synchronously. The reply is additionally streamed to the user's
// live connection, if any, so an open socket sees it arrive incrementally.
func (s *Service) Send(ctx context.Context, usr user.User, text string) (chatmodel.Message, error) {
	if err := validateMessage(text); err != nil {
		return chatmodel.Message{}, err
	}

	reply, err := s.generateAndPersist(ctx, usr.ID, text)
	if err != nil {
		return chatmodel.Message{}, err
	}

	// streamId doubles as the stored message id here, exactly one terminal
	// chunk per request either way.
	s.streamChunks(ctx, usr.ID, reply.ID, reply.Text)

	return reply, nil
}

// Push handles push-stream mode: the bot reply is delivered exclusively over
// the user's live connection as ordered chunks plus one terminal chunk. When
// the backend streams tokens they are forwarded as they arrive; otherwise the
// finished reply is re-chunked with a fixed pacing delay.
func (s *Service) Push(ctx context.Context, userID, text string) error {
	if err := validateMessage(text); err != nil {
		return err
	}

	if s.generator.StreamingEnabled() {
		history, err := s.store.Recent(ctx, userID, contextWindow)
		if err != nil {
			log.Printf("[chat] failed to load history for user=%s: %v", userID, err)
			history = nil
		}
		if _, err := s.store.Save(ctx, chatmodel.Message{
			UserID: userID,
			Text:   strings.TrimSpace(text),
			Sender: chatmodel.SenderUser,
		}); err != nil {
			return fmt.Errorf("failed to save user message: %w", err)
		}
		return s.pushTokenStream(ctx, userID, text, history)
	}

	saved, err := s.generateAndPersist(ctx, userID, text)
	if err != nil {
		return err
	}

	s.streamChunks(ctx, userID, uuid.NewString(), saved.Text)
	return nil
}

// History returns the user's full transcript ascending by creation time.
func (s *Service) History(ctx context.Context, userID string) (chatmodel.History, error) {
	messages, err := s.store.History(ctx, userID)
	if err != nil {
		return chatmodel.History{}, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	return chatmodel.History{Messages: messages, Total: len(messages)}, nil
}

// generateAndPersist runs the shared pipeline: load context, persist the user
// turn, generate, persist the bot turn. The user message is saved before
// generation so history reflects what was asked even if generation fails.
func (s *Service) generateAndPersist(ctx context.Context, userID, text string) (chatmodel.Message, error) {
	history, err := s.store.Recent(ctx, userID, contextWindow)
	if err != nil {
		log.Printf("[chat] failed to load history for user=%s: %v", userID, err)
		history = nil
	}

	if _, err := s.store.Save(ctx, chatmodel.Message{
		UserID: userID,
		Text:   strings.TrimSpace(text),
		Sender: chatmodel.SenderUser,
	}); err != nil {
		return chatmodel.Message{}, fmt.Errorf("failed to save user message: %w", err)
	}

	reply, err := s.generator.Generate(ctx, text, history)
	if err != nil {
		return chatmodel.Message{}, fmt.Errorf("generation failed: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return chatmodel.Message{}, ErrEmptyResponse
	}

	saved, err := s.store.Save(ctx, chatmodel.Message{
		UserID: userID,
		Text:   strings.TrimSpace(reply),
		Sender: chatmodel.SenderBot,
	})
	if err != nil {
		return chatmodel.Message{}, fmt.Errorf("failed to save bot message: %w", err)
	}

	return saved, nil
}

// pushTokenStream forwards backend tokens as non-terminal chunks while they
// arrive, persists the assembled reply, then emits the terminal chunk. The
// completion marker never precedes the stored record.
func (s *Service) pushTokenStream(ctx context.Context, userID, text string, history []chatmodel.Message) error {
	streamID := uuid.NewString()

	full, err := s.generator.GenerateStream(ctx, text, history, func(token string) {
		s.deliver(userID, StreamChunkEvent{
			StreamChunk: chatmodel.StreamChunk{
				Text:     token,
				StreamID: streamID,
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	if strings.TrimSpace(full) == "" {
		return ErrEmptyResponse
	}

	if _, err := s.store.Save(ctx, chatmodel.Message{
		UserID: userID,
		Text:   strings.TrimSpace(full),
		Sender: chatmodel.SenderBot,
	}); err != nil {
		return fmt.Errorf("failed to save bot message: %w", err)
	}

	s.deliver(userID, StreamChunkEvent{
		StreamChunk: chatmodel.StreamChunk{
			IsComplete: true,
			StreamID:   streamID,
			FullText:   full,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// streamChunks paces a finished reply out as bounded chunks. Emission is
// strictly sequential: the delay is awaited before the next chunk, so chunks
// of one stream never interleave.
func (s *Service) streamChunks(ctx context.Context, userID, streamID, reply string) {
	chunks := chunk.Split(reply, chunk.DefaultMaxChars)

	for i, piece := range chunks {
		terminal := i == len(chunks)-1

		event := StreamChunkEvent{
			StreamChunk: chatmodel.StreamChunk{
				Text:       piece,
				IsComplete: terminal,
				StreamID:   streamID,
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if terminal {
			event.FullText = reply
		}

		if !s.deliver(userID, event) {
			// Target went away: the rest of the stream is undeliverable and
			// is discarded, not buffered.
			return
		}

		if !terminal {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pacing):
			}
		}
	}
}

// deliver resolves the user's live connection and pushes one chunk. A missing
// connection is not an error for the caller; the stored message remains the
// source of truth and the client catches up from history.
func (s *Service) deliver(userID string, event StreamChunkEvent) bool {
	conn, ok := s.sessions.Resolve(userID)
	if !ok {
		log.Printf("[chat] no live connection for user=%s, dropping stream %s", userID, event.StreamID)
		return false
	}
	conn.Send("stream-chunk", event)
	return true
}

func validateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > maxMessageChars {
		return ErrMessageTooLong
	}
	return nil
}
