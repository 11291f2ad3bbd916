package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nimbuschat/backend/internal/config"
	"github.com/nimbuschat/backend/internal/handler"
	"github.com/nimbuschat/backend/internal/repository"
	"github.com/nimbuschat/backend/internal/session"
	"github.com/nimbuschat/backend/internal/service/ai"
	"github.com/nimbuschat/backend/internal/service/auth"
	"github.com/nimbuschat/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := newMessageStore(ctx, cfg.Mongo)
	sessions := session.NewDirectory()
	authSvc := auth.NewService(cfg.Auth)
	aiSvc := ai.NewService(ctx, cfg.AI)
	chatSvc := chat.NewService(store, aiSvc, sessions)

	router := handler.NewRouter(handler.RouterDeps{
		AuthSvc:     authSvc,
		ChatSvc:     chatSvc,
		AISvc:       aiSvc,
		Store:       store,
		Sessions:    sessions,
		Environment: cfg.Server.Environment,
		CORSOrigin:  cfg.Server.CORSOrigin,
	})

	startServer(ctx, cfg.Server, router)
}

// newMessageStore picks Mongo when a URI is configured and falls back to the
// in-memory store otherwise.
func newMessageStore(ctx context.Context, cfg config.MongoConfig) repository.MessageStore {
	if cfg.URI == "" {
		log.Println("no MONGODB_URI configured, using in-memory message store")
		return repository.NewMemoryStore()
	}

	store, err := repository.NewMongoStore(ctx, cfg.URI, cfg.Database)
	if err != nil {
		log.Printf("warning: failed to connect to mongo, using in-memory message store: %v", err)
		return repository.NewMemoryStore()
	}

	log.Println("connected to mongo message store")
	return store
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
