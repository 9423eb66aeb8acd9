package services

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
)

// SessionListLimit bounds the newest-first session listing
const SessionListLimit = 20

type SessionEndpoints struct {
	repo         *repository.GORMRepository
	conversation *repository.ConversationRepository
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

func NewSessionEndpoints(repo *repository.GORMRepository, conversation *repository.ConversationRepository) *SessionEndpoints {
	return &SessionEndpoints{
		repo:         repo,
		conversation: conversation,
	}
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", e.ListSessionsHandler)
		r.Post("/", e.CreateSessionHandler)
		r.Put("/{id}", e.RenameSessionHandler)
		r.Delete("/{id}", e.DeleteSessionHandler)
		r.Get("/{id}/messages", e.ListMessagesHandler)
	})
}

// ownedSession loads a session and enforces ownership. A missing session is
// 404; someone else's session is 403 so existence is still acknowledged, and
// nothing beyond that leaks.
func (e *SessionEndpoints) ownedSession(w http.ResponseWriter, r *http.Request, user *models.User) *models.ChatSession {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return nil
	}

	session, err := e.repo.GetChatSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	if session == nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return nil
	}
	if session.UserID != user.ID {
		writeError(w, http.StatusForbidden, ErrForbidden.Error())
		return nil
	}
	return session
}

func (e *SessionEndpoints) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := e.repo.GetChatSessions(r.Context(), user.ID, SessionListLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	session := &models.ChatSession{
		UserID: user.ID,
		Title:  req.Title,
	}
	if err := e.repo.CreateChatSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (e *SessionEndpoints) RenameSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RenameSessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	session := e.ownedSession(w, r, user)
	if session == nil {
		return
	}

	session.Title = req.Title
	if err := e.repo.UpdateChatSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	slog.Info("Session renamed", "session_id", session.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, session)
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := e.ownedSession(w, r, user)
	if session == nil {
		return
	}

	if err := e.repo.DeleteChatSession(r.Context(), session.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": session.ID})
}

func (e *SessionEndpoints) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := e.ownedSession(w, r, user)
	if session == nil {
		return
	}

	messages, err := e.conversation.GetMessages(r.Context(), session.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
