package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	chatmodel "github.com/nimbuschat/backend/internal/model/chat"
	"github.com/nimbuschat/backend/internal/model/user"
	"github.com/nimbuschat/backend/internal/repository"
	"github.com/nimbuschat/backend/internal/session"
)

type fakeGenerator struct {
	reply     string
	err       error
	streaming bool
	tokens    []string
}

func (g *fakeGenerator) Generate(_ context.Context, text string, _ []chatmodel.Message) (string, error) {
	return g.reply, g.err
}

func (g *fakeGenerator) GenerateStream(_ context.Context, text string, _ []chatmodel.Message, onToken func(string)) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	var builder strings.Builder
	for _, tok := range g.tokens {
		builder.WriteString(tok)
		onToken(tok)
	}
	return builder.String(), nil
}

func (g *fakeGenerator) StreamingEnabled() bool { return g.streaming }

type recordConn struct {
	id     string
	events []recordedEvent
}

type recordedEvent struct {
	event string
	data  any
}

func (c *recordConn) ID() string { return c.id }
func (c *recordConn) Send(event string, data any) {
	c.events = append(c.events, recordedEvent{event: event, data: data})
}

func (c *recordConn) chunks(t *testing.T) []chatmodel.StreamChunk {
	t.Helper()
	var out []chatmodel.StreamChunk
	for _, ev := range c.events {
		if ev.event != "stream-chunk" {
			continue
		}
		raw, err := json.Marshal(ev.data)
		if err != nil {
			t.Fatalf("marshal chunk: %v", err)
		}
		var chunk chatmodel.StreamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			t.Fatalf("unmarshal chunk: %v", err)
		}
		out = append(out, chunk)
	}
	return out
}

func newTestService(gen Generator) (*Service, *repository.MemoryStore, *session.Directory) {
	store := repository.NewMemoryStore()
	dir := session.NewDirectory()
	svc := NewService(store, gen, dir)
	svc.pacing = time.Millisecond
	return svc, store, dir
}

func TestSendEmptyMessagePersistsNothing(t *testing.T) {
	svc, store, _ := newTestService(&fakeGenerator{reply: "hi"})

	for _, input := range []string{"", "   "} {
		if _, err := svc.Send(context.Background(), user.User{ID: "1"}, input); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("Send(%q): expected ErrEmptyMessage, got %v", input, err)
		}
	}

	history, err := store.History(context.Background(), "1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("validation failure must persist nothing, got %d messages", len(history))
	}
}

func TestSendOverlongMessageRejected(t *testing.T) {
	svc, _, _ := newTestService(&fakeGenerator{reply: "hi"})

	long := strings.Repeat("a", maxMessageChars+1)
	if _, err := svc.Send(context.Background(), user.User{ID: "1"}, long); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestSendGenerationFailureKeepsUserMessage(t *testing.T) {
	svc, store, _ := newTestService(&fakeGenerator{err: errors.New("backend exploded")})

	if _, err := svc.Send(context.Background(), user.User{ID: "1"}, "hello"); err == nil {
		t.Fatal("expected an error from a failing generator")
	}

	history, err := store.History(context.Background(), "1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly the user message persisted, got %d", len(history))
	}
	if history[0].Sender != chatmodel.SenderUser {
		t.Fatalf("expected a user message, got sender %q", history[0].Sender)
	}
}

func TestSendEmptyReplyIsGenerationError(t *testing.T) {
	svc, store, _ := newTestService(&fakeGenerator{reply: "   "})

	if _, err := svc.Send(context.Background(), user.User{ID: "1"}, "hello"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}

	history, _ := store.History(context.Background(), "1")
	if len(history) != 1 {
		t.Fatalf("blank reply must not be persisted, got %d messages", len(history))
	}
}

func TestSendPersistsBothTurnsAndReturnsBotMessage(t *testing.T) {
	svc, store, _ := newTestService(&fakeGenerator{reply: "a fine answer"})

	reply, err := svc.Send(context.Background(), user.User{ID: "1", Username: "admin"}, "a question")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if reply.Sender != chatmodel.SenderBot || reply.Text != "a fine answer" {
		t.Fatalf("unexpected reply record: %+v", reply)
	}
	if reply.ID == "" {
		t.Fatal("reply must carry its stored id")
	}

	history, _ := store.History(context.Background(), "1")
	if len(history) != 2 {
		t.Fatalf("expected user + bot messages, got %d", len(history))
	}
	if history[0].Sender != chatmodel.SenderUser || history[1].Sender != chatmodel.SenderBot {
		t.Fatalf("unexpected senders: %q then %q", history[0].Sender, history[1].Sender)
	}
}

func TestPushStreamsChunksWithSingleTerminal(t *testing.T) {
	svc, _, dir := newTestService(&fakeGenerator{reply: "hello world this is a test"})
	conn := &recordConn{id: "conn-1"}
	dir.Join("1", conn)

	if err := svc.Push(context.Background(), "1", "question"); err != nil {
		t.Fatalf("Push err: %v", err)
	}

	chunks := conn.chunks(t)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for the canned reply, got %d", len(chunks))
	}

	terminals := 0
	for _, c := range chunks {
		if c.StreamID != chunks[0].StreamID {
			t.Fatal("all chunks must share one stream id")
		}
		if c.IsComplete {
			terminals++
			if c.FullText != "hello world this is a test" {
				t.Fatalf("terminal chunk fullText mismatch: %q", c.FullText)
			}
		} else if c.FullText != "" {
			t.Fatal("only the terminal chunk may carry fullText")
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal chunk, got %d", terminals)
	}

	var assembled strings.Builder
	for _, c := range chunks {
		if assembled.Len() > 0 {
			assembled.WriteString(" ")
		}
		assembled.WriteString(c.Text)
	}
	if assembled.String() != "hello world this is a test" {
		t.Fatalf("chunks do not reassemble the reply: %q", assembled.String())
	}
}

func TestPushTokenStreamForwardsTokens(t *testing.T) {
	gen := &fakeGenerator{streaming: true, tokens: []string{"A", "B"}}
	svc, store, dir := newTestService(gen)
	conn := &recordConn{id: "conn-1"}
	dir.Join("1", conn)

	if err := svc.Push(context.Background(), "1", "question"); err != nil {
		t.Fatalf("Push err: %v", err)
	}

	chunks := conn.chunks(t)
	if len(chunks) != 3 {
		t.Fatalf("expected 2 tokens + terminal, got %d chunks", len(chunks))
	}
	if chunks[0].Text != "A" || chunks[1].Text != "B" {
		t.Fatalf("tokens forwarded out of order: %+v", chunks)
	}
	if !chunks[2].IsComplete || chunks[2].FullText != "AB" {
		t.Fatalf("unexpected terminal chunk: %+v", chunks[2])
	}

	// fullText on the terminal equals the concatenation of prior chunks.
	if chunks[0].Text+chunks[1].Text != chunks[2].FullText {
		t.Fatal("terminal fullText must match the concatenated tokens")
	}

	history, _ := store.History(context.Background(), "1")
	if len(history) != 2 || history[1].Text != "AB" {
		t.Fatalf("assembled reply must be persisted, history: %+v", history)
	}
}

func TestPushWithoutConnectionStillPersists(t *testing.T) {
	svc, store, _ := newTestService(&fakeGenerator{reply: "answer"})

	if err := svc.Push(context.Background(), "1", "question"); err != nil {
		t.Fatalf("Push with no live connection must not error, got %v", err)
	}

	history, _ := store.History(context.Background(), "1")
	if len(history) != 2 {
		t.Fatalf("both turns must be persisted regardless of delivery, got %d", len(history))
	}
}

func TestHistoryAscendingAcrossUsers(t *testing.T) {
	svc, _, _ := newTestService(&fakeGenerator{reply: "ok"})

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(context.Background(), user.User{ID: "1"}, "ping"); err != nil {
			t.Fatalf("Send err: %v", err)
		}
		if _, err := svc.Send(context.Background(), user.User{ID: "2"}, "pong"); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}

	for _, userID := range []string{"1", "2"} {
		history, err := svc.History(context.Background(), userID)
		if err != nil {
			t.Fatalf("History err: %v", err)
		}
		if history.Total != 6 {
			t.Fatalf("expected 6 messages for user %s, got %d", userID, history.Total)
		}
		for i := 1; i < len(history.Messages); i++ {
			if history.Messages[i].CreatedAt.Before(history.Messages[i-1].CreatedAt) {
				t.Fatal("history must ascend by creation time")
			}
		}
	}
}
