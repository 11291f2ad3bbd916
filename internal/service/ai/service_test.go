package ai

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nimbuschat/backend/internal/config"
	"github.com/nimbuschat/backend/internal/model/chat"
)

func newMockOnlyService() *Service {
	return NewService(context.Background(), config.AIConfig{})
}

func TestGenerateFallsBackWithoutBackend(t *testing.T) {
	svc := newMockOnlyService()

	reply, err := svc.Generate(context.Background(), "quantum computers", nil)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if reply == "" {
		t.Fatal("fallback must always produce text")
	}
	if !strings.Contains(reply, `"quantum computers"`) {
		t.Fatalf("mock reply should echo the input, got %q", reply)
	}
}

func TestGenerateStreamFallbackInvokesCallback(t *testing.T) {
	svc := newMockOnlyService()

	var tokens []string
	reply, err := svc.GenerateStream(context.Background(), "hello", nil, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("GenerateStream err: %v", err)
	}
	if len(tokens) == 0 {
		t.Fatal("expected at least one token callback")
	}
	if strings.Join(tokens, "") != reply {
		t.Fatalf("accumulated tokens %q != returned reply %q", strings.Join(tokens, ""), reply)
	}
}

func TestGenerateConcurrentDuplicatesStillAnswer(t *testing.T) {
	svc := newMockOnlyService()

	const workers = 8
	var wg sync.WaitGroup
	replies := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := svc.Generate(context.Background(), "same prompt", nil)
			if err != nil {
				t.Errorf("Generate err: %v", err)
				return
			}
			replies[i] = reply
		}(i)
	}
	wg.Wait()

	for i, reply := range replies {
		if reply == "" {
			t.Fatalf("worker %d got an empty reply", i)
		}
	}
}

func TestServiceStatusWithoutBackend(t *testing.T) {
	svc := newMockOnlyService()

	status := svc.ServiceStatus()
	if status.Available {
		t.Fatal("backend should not be available without credentials")
	}
	if !status.Fallback {
		t.Fatal("fallback is always on")
	}
	if svc.StreamingEnabled() {
		t.Fatal("streaming requires an available backend")
	}
}

func TestBuildHistoryWindowAndRoles(t *testing.T) {
	messages := make([]chat.Message, 0, 25)
	for i := 0; i < 25; i++ {
		sender := chat.SenderUser
		if i%2 == 1 {
			sender = chat.SenderBot
		}
		messages = append(messages, chat.Message{Sender: sender, Text: "m"})
	}

	history := buildHistory(messages)
	if len(history) != 20 {
		t.Fatalf("expected history window of 20, got %d", len(history))
	}
}
