package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyeonsu/sagebook/backend/models"
	"gorm.io/gorm"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// SaveMessage appends an immutable message to a session
func (r *ConversationRepository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		slog.Error("Failed to save message", "error", err, "session_id", message.SessionID)
		return fmt.Errorf("failed to save message: %w", err)
	}

	slog.Info("Message saved", "message_id", message.ID, "session_id", message.SessionID, "role", message.Role)
	return nil
}

// GetMessages returns a session's messages ordered oldest first
func (r *ConversationRepository) GetMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get messages", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return messages, nil
}

// SetTokenCount backfills a message's token count once the upstream reports
// usage. Content and ordering stay immutable.
func (r *ConversationRepository) SetTokenCount(ctx context.Context, messageID string, tokens int) error {
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("id = ?", messageID).
		Update("token_count", tokens).Error
	if err != nil {
		slog.Error("Failed to set token count", "error", err, "message_id", messageID)
		return fmt.Errorf("failed to set token count: %w", err)
	}
	return nil
}

// GetRecentMessages returns the most recent limit messages of a session,
// re-ordered oldest first for replay to the completion API
func (r *ConversationRepository) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	query := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		slog.Error("Failed to get conversation history", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
