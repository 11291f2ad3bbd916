package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuschat/backend/internal/config"
	"github.com/nimbuschat/backend/internal/middleware"
	chatmodel "github.com/nimbuschat/backend/internal/model/chat"
	"github.com/nimbuschat/backend/internal/model/user"
	"github.com/nimbuschat/backend/internal/repository"
	authService "github.com/nimbuschat/backend/internal/service/auth"
	chatService "github.com/nimbuschat/backend/internal/service/chat"
	"github.com/nimbuschat/backend/internal/session"
)

func authServiceForTest() *authService.Service {
	return authService.NewService(config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
}

type fakeGenerator struct {
	reply string
}

func (g *fakeGenerator) Generate(context.Context, string, []chatmodel.Message) (string, error) {
	return g.reply, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, _ string, _ []chatmodel.Message, onToken func(string)) (string, error) {
	onToken(g.reply)
	return g.reply, nil
}

func (g *fakeGenerator) StreamingEnabled() bool { return false }

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()

	authSvc := authServiceForTest()
	chatSvc := chatService.NewService(repository.NewMemoryStore(), &fakeGenerator{reply: "ok"}, session.NewDirectory())

	r := chi.NewRouter()
	r.Group(func(api chi.Router) {
		api.Use(middleware.Auth(authSvc))
		New(chatSvc).RegisterRoutes(api)
	})

	resp, err := authSvc.Login(user.LoginRequest{Username: "admin", Password: "password"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return r, resp.AccessToken
}

func TestSendMessage(t *testing.T) {
	router, token := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var reply chatmodel.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if reply.Sender != chatmodel.SenderBot {
		t.Errorf("sender = %q, want %q", reply.Sender, chatmodel.SenderBot)
	}
	if reply.Text != "ok" {
		t.Errorf("text = %q, want %q", reply.Text, "ok")
	}
	if reply.ID == "" {
		t.Error("reply id is empty")
	}
}

func TestSendEmptyMessage(t *testing.T) {
	router, token := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"   "}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != "Message cannot be empty" {
		t.Errorf("error = %q, want %q", body["error"], "Message cannot be empty")
	}
}

func TestSendWithoutToken(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHistoryAfterSend(t *testing.T) {
	router, token := newTestRouter(t)

	send := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	send.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, send)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d, want %d", rec.Code, http.StatusCreated)
	}

	get := httptest.NewRequest(http.MethodGet, "/chat", nil)
	get.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, get)

	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want %d", rec.Code, http.StatusOK)
	}

	var history chatmodel.History
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if history.Total != 2 {
		t.Fatalf("total = %d, want 2", history.Total)
	}
	if history.Messages[0].Sender != chatmodel.SenderUser || history.Messages[1].Sender != chatmodel.SenderBot {
		t.Errorf("unexpected transcript order: %v", history.Messages)
	}
}
