package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuschat/backend/internal/middleware"
	chatService "github.com/nimbuschat/backend/internal/service/chat"
	"github.com/nimbuschat/backend/pkg/utils"
)

// Handler exposes the request/response chat endpoints.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat routes. Callers wrap them in the auth
// middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleSend)
	r.Get("/chat", h.handleHistory)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	usr, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Send(r.Context(), usr, payload.Message)
	if err != nil {
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, "Message cannot be empty")
		case errors.Is(err, chatService.ErrMessageTooLong):
			utils.RespondError(w, http.StatusBadRequest, "Message is too long")
		default:
			log.Printf("[chat] send failed for user=%s: %v", usr.ID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create chat message")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, reply)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	usr, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	history, err := h.chatSvc.History(r.Context(), usr.ID)
	if err != nil {
		log.Printf("[chat] history failed for user=%s: %v", usr.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, history)
}
