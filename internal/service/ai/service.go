package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/nimbuschat/backend/internal/config"
	"github.com/nimbuschat/backend/internal/model/chat"
)

const systemPrompt = "You are a helpful AI assistant. Respond to the user's message in a conversational and helpful manner. Keep responses concise but informative and engaging."

// historyLimit bounds the conversation window passed to the model.
const historyLimit = 20

// Status reports backend availability for the health endpoint.
type Status struct {
	Available bool `json:"available"`
	Fallback  bool `json:"fallback"`
}

// Service wraps the language-model backend behind a call that always yields
// some reply text: when no credential is configured, or the backend call
// fails, a deterministic templated mock answers instead.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	cfg       config.AIConfig

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService builds the adapter. Backend initialization failures are logged
// and downgrade the service to the mock path rather than failing startup.
func NewService(ctx context.Context, cfg config.AIConfig) *Service {
	s := &Service{
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}

	if !cfg.Enabled() {
		log.Println("[ai] no backend credential configured, using mock responses")
		return s
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.Printf("[ai] failed to create chat model, using mock responses: %v", err)
		return s
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		log.Printf("[ai] failed to compile chat chain, using mock responses: %v", err)
		return s
	}

	s.chatModel = chatModel
	s.chain = runnable
	log.Println("[ai] backend initialized")
	return s
}

// Available reports whether the real backend is wired in.
func (s *Service) Available() bool {
	return s.chain != nil
}

// StreamingEnabled reports whether replies should be produced as a token
// stream rather than one completed text.
func (s *Service) StreamingEnabled() bool {
	return s.Available() && s.cfg.StreamResponse
}

// ServiceStatus describes the adapter for the health endpoint. Fallback is
// always on: the mock path answers whenever the backend cannot.
func (s *Service) ServiceStatus() Status {
	return Status{Available: s.Available(), Fallback: true}
}

// Generate produces a full reply for text. It never returns an error: any
// backend failure falls through to the mock response.
func (s *Service) Generate(ctx context.Context, text string, history []chat.Message) (string, error) {
	if !s.enterInflight(text) {
		// A concurrent identical prompt is already being generated; answer
		// the duplicate from the mock path. Latency optimization only, two
		// users with the same text never share a result.
		return mockResponse(text), nil
	}
	defer s.leaveInflight(text)

	if !s.Available() {
		return mockResponse(text), nil
	}

	response, err := s.chain.Invoke(ctx, s.chainInput(text, history))
	if err != nil {
		log.Printf("[ai] backend invoke failed, falling back to mock: %v", err)
		return mockResponse(text), nil
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		log.Println("[ai] backend returned empty reply, falling back to mock")
		return mockResponse(text), nil
	}
	return reply, nil
}

// GenerateStream produces the reply incrementally, invoking onToken for each
// piece as it arrives, and returns the accumulated full text. Like Generate
// it never fails: backend errors fall back to a single mock token.
func (s *Service) GenerateStream(ctx context.Context, text string, history []chat.Message, onToken func(string)) (string, error) {
	if !s.enterInflight(text) {
		reply := mockResponse(text)
		onToken(reply)
		return reply, nil
	}
	defer s.leaveInflight(text)

	if !s.Available() {
		reply := mockResponse(text)
		onToken(reply)
		return reply, nil
	}

	stream, err := s.chain.Stream(ctx, s.chainInput(text, history))
	if err != nil {
		log.Printf("[ai] backend stream failed, falling back to mock: %v", err)
		reply := mockResponse(text)
		onToken(reply)
		return reply, nil
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		piece, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			log.Printf("[ai] backend stream recv failed, falling back to mock: %v", recvErr)
			reply := mockResponse(text)
			onToken(reply)
			return reply, nil
		}
		if piece == nil || piece.Content == "" {
			continue
		}
		builder.WriteString(piece.Content)
		onToken(piece.Content)
	}

	reply := builder.String()
	if strings.TrimSpace(reply) == "" {
		reply = mockResponse(text)
		onToken(reply)
	}
	return reply, nil
}

func (s *Service) chainInput(text string, history []chat.Message) map[string]any {
	return map[string]any{
		"system":  systemPrompt,
		"history": buildHistory(history),
		"query":   text,
	}
}

func buildHistory(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderBot:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

func (s *Service) enterInflight(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[text]; ok {
		return false
	}
	s.inflight[text] = struct{}{}
	return true
}

func (s *Service) leaveInflight(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, text)
}

var mockTemplates = []string{
	`I understand you're asking about %q. Let me help you with some information about that topic.`,
	`That's an interesting question about %q! Here's what I can tell you about that.`,
	`I'd be happy to help you with %q. Let me provide some useful information.`,
	`Thanks for your question about %q. Here's what I know about that subject.`,
	`I can help you with %q! Let me share some relevant information with you.`,
	`Great question about %q! Here's some helpful information for you.`,
	`I understand your interest in %q. Let me provide some insights.`,
	`That's a good question about %q. Here's what I can share with you.`,
}

func mockResponse(text string) string {
	template := mockTemplates[rand.Intn(len(mockTemplates))]
	return fmt.Sprintf(template, text) +
		" (This is a mock response since no AI backend is configured. To use real AI responses, please set the Ark model environment variables.)"
}
