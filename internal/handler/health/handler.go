package health

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuschat/backend/internal/repository"
	"github.com/nimbuschat/backend/internal/service/ai"
	"github.com/nimbuschat/backend/pkg/utils"
)

// Handler reports process and dependency health.
type Handler struct {
	store       repository.MessageStore
	aiSvc       *ai.Service
	environment string
	startedAt   time.Time
}

// New creates the health handler.
func New(store repository.MessageStore, aiSvc *ai.Service, environment string) *Handler {
	return &Handler{
		store:       store,
		aiSvc:       aiSvc,
		environment: environment,
		startedAt:   time.Now(),
	}
}

// RegisterRoutes mounts the health route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := h.store.Ping(r.Context()) == nil

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.startedAt).Seconds(),
		"environment": h.environment,
		"services": map[string]any{
			"database": dbHealthy,
			"ai":       h.aiSvc.ServiceStatus(),
		},
	})
}
