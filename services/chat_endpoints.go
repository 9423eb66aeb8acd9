package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
)

// HistoryWindow bounds how many recent messages are replayed upstream
const HistoryWindow = 50

const systemPrompt = "You are a helpful assistant."

const contextPromptSuffix = `
Use the following pieces of context to answer the user's question.
If the information is not in the context, just say that you don't know, don't try to make up an answer.
Keep the answer concise.

Context:
`

type ChatEndpoints struct {
	repo         *repository.GORMRepository
	conversation *repository.ConversationRepository
	llm          *LLMClient
	retrieval    *RetrievalService
	defaultModel string
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

type ChatResponse struct {
	Response   string `json:"response"`
	UserTokens *int   `json:"user_tokens,omitempty"`
	AITokens   *int   `json:"ai_tokens,omitempty"`
}

func NewChatEndpoints(repo *repository.GORMRepository, conversation *repository.ConversationRepository, llm *LLMClient, retrieval *RetrievalService, defaultModel string) *ChatEndpoints {
	return &ChatEndpoints{
		repo:         repo,
		conversation: conversation,
		llm:          llm,
		retrieval:    retrieval,
		defaultModel: defaultModel,
	}
}

func (e *ChatEndpoints) RegisterRoutes(r chi.Router) {
	r.Post("/chat", e.ChatHandler)
}

// ChatHandler appends the user message, replays the session history through
// the completion API and appends the reply. The user message is persisted
// before the upstream call and stays even when the call fails, so a failed
// exchange is visible in the log rather than rolled back.
func (e *ChatEndpoints) ChatHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChatRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = e.defaultModel
	}

	session, err := e.repo.GetChatSession(r.Context(), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}
	if session.UserID != user.ID {
		writeError(w, http.StatusForbidden, ErrForbidden.Error())
		return
	}

	userMessage := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.Message,
	}
	if err := e.conversation.SaveMessage(r.Context(), userMessage); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	turns := e.buildTurns(r.Context(), session.ID, req.Message)

	ctx, cancel := context.WithTimeout(r.Context(), CompletionTimeout)
	defer cancel()

	completion, err := e.llm.ChatCompletion(ctx, model, turns)
	if err != nil {
		slog.Error("Completion call failed", "error", err, "session_id", session.ID, "model", model)
		if errors.Is(err, ErrUpstream) || errors.Is(err, context.DeadlineExceeded) {
			// The upstream's own message is passed through when it gave one
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":   ErrUpstream.Error(),
				"message": strings.TrimPrefix(err.Error(), ErrUpstream.Error()+": "),
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	response := ChatResponse{Response: completion.Content}

	assistantMessage := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   completion.Content,
	}
	if completion.CompletionTokens > 0 {
		tokens := completion.CompletionTokens
		assistantMessage.TokenCount = &tokens
		response.AITokens = &tokens
	}
	if err := e.conversation.SaveMessage(r.Context(), assistantMessage); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if completion.PromptTokens > 0 {
		tokens := completion.PromptTokens
		response.UserTokens = &tokens
		if err := e.conversation.SetTokenCount(r.Context(), userMessage.ID, tokens); err != nil {
			slog.Warn("Failed to backfill user token count", "error", err, "message_id", userMessage.ID)
		}
	}

	writeJSON(w, http.StatusOK, response)

	slog.Info("Chat exchange completed", "session_id", session.ID, "user_id", user.ID, "model", model)
}

// buildTurns assembles system prompt, optional retrieval context and the
// bounded recent history for upstream replay. Retrieval failures are logged
// and the chat proceeds without context.
func (e *ChatEndpoints) buildTurns(ctx context.Context, sessionID, query string) []ChatTurn {
	instruction := systemPrompt
	if e.retrieval != nil {
		passages, err := e.retrieval.Retrieve(ctx, query, RetrievalK)
		if err != nil {
			slog.Warn("Retrieval failed, continuing without context", "error", err, "session_id", sessionID)
		} else if len(passages) > 0 {
			instruction += contextPromptSuffix + strings.Join(passages, "\n\n")
		}
	}

	turns := []ChatTurn{{Role: "system", Content: instruction}}

	history, err := e.conversation.GetRecentMessages(ctx, sessionID, HistoryWindow)
	if err != nil {
		slog.Warn("Failed to load history, replaying current message only", "error", err, "session_id", sessionID)
		return append(turns, ChatTurn{Role: models.RoleUser, Content: query})
	}

	for _, msg := range history {
		// Error-role messages are client-local and never replayed upstream
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		turns = append(turns, ChatTurn{Role: msg.Role, Content: msg.Content})
	}

	return turns
}
