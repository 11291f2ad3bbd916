package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/nimbuschat/backend/internal/handler/auth"
	chatHandler "github.com/nimbuschat/backend/internal/handler/chat"
	healthHandler "github.com/nimbuschat/backend/internal/handler/health"
	wsHandler "github.com/nimbuschat/backend/internal/handler/ws"
	middlewarePkg "github.com/nimbuschat/backend/internal/middleware"
	"github.com/nimbuschat/backend/internal/repository"
	"github.com/nimbuschat/backend/internal/session"
	aiService "github.com/nimbuschat/backend/internal/service/ai"
	authService "github.com/nimbuschat/backend/internal/service/auth"
	chatService "github.com/nimbuschat/backend/internal/service/chat"
)

// RouterDeps carries everything the router wires together.
type RouterDeps struct {
	AuthSvc     *authService.Service
	ChatSvc     *chatService.Service
	AISvc       *aiService.Service
	Store       repository.MessageStore
	Sessions    *session.Directory
	Environment string
	CORSOrigin  string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigin))

	healthHandler.New(deps.Store, deps.AISvc, deps.Environment).RegisterRoutes(r)

	r.Route("/auth", func(api chi.Router) {
		authHandler.New(deps.AuthSvc).RegisterRoutes(api)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Auth(deps.AuthSvc))
		chatHandler.New(deps.ChatSvc).RegisterRoutes(api)
	})

	wsHandler.New(deps.AuthSvc, deps.ChatSvc, deps.Sessions).RegisterRoutes(r)

	return r
}
