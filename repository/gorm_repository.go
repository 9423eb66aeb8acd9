package repository

import (
	"context"
	"log/slog"

	"github.com/hyeonsu/sagebook/backend/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// DB exposes the underlying connection for health checks
func (r *GORMRepository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.Document{},
		&models.DocumentChunk{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by Google ID", "error", err)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) UpdateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		slog.Error("Failed to update user", "error", err, "user_id", user.ID)
		return err
	}
	return nil
}

// Chat session operations
func (r *GORMRepository) CreateChatSession(ctx context.Context, session *models.ChatSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create chat session", "error", err)
		return err
	}
	slog.Info("Chat session created", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

// GetChatSessions returns the user's sessions, newest first
func (r *GORMRepository) GetChatSessions(ctx context.Context, userID string, limit int) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		slog.Error("Failed to get chat sessions", "error", err, "user_id", userID)
		return nil, err
	}
	return sessions, nil
}

// GetChatSession gets a session by ID without an ownership check; ownership is
// enforced at the endpoint boundary so non-owners can be told apart from
// missing sessions
func (r *GORMRepository) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get chat session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) UpdateChatSession(ctx context.Context, session *models.ChatSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		slog.Error("Failed to update chat session", "error", err, "session_id", session.ID)
		return err
	}
	return nil
}

// DeleteChatSession removes a session and its messages
func (r *GORMRepository) DeleteChatSession(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
		slog.Error("Failed to delete session messages", "error", err, "session_id", sessionID)
		return err
	}
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.ChatSession{}).Error; err != nil {
		slog.Error("Failed to delete chat session", "error", err, "session_id", sessionID)
		return err
	}
	slog.Info("Chat session deleted", "session_id", sessionID)
	return nil
}

// Document operations
func (r *GORMRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		slog.Error("Failed to create document", "error", err)
		return err
	}
	slog.Info("Document created", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

// GetDocuments returns all documents, newest first. The knowledge base is
// shared across users, so listing is not owner-scoped.
func (r *GORMRepository) GetDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error; err != nil {
		slog.Error("Failed to get documents", "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *GORMRepository) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("id = ?", docID).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get document", "error", err, "document_id", docID)
		return nil, err
	}
	return &doc, nil
}

func (r *GORMRepository) SetDocumentStatus(ctx context.Context, docID, status string) error {
	if err := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", docID).Update("status", status).Error; err != nil {
		slog.Error("Failed to set document status", "error", err, "document_id", docID, "status", status)
		return err
	}
	slog.Info("Document status updated", "document_id", docID, "status", status)
	return nil
}

// DeleteDocument removes a document and its chunks
func (r *GORMRepository) DeleteDocument(ctx context.Context, docID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", docID).Delete(&models.DocumentChunk{}).Error; err != nil {
		slog.Error("Failed to delete document chunks", "error", err, "document_id", docID)
		return err
	}
	if err := r.db.WithContext(ctx).Where("id = ?", docID).Delete(&models.Document{}).Error; err != nil {
		slog.Error("Failed to delete document", "error", err, "document_id", docID)
		return err
	}
	slog.Info("Document deleted", "document_id", docID)
	return nil
}

// Chunk operations
func (r *GORMRepository) ReplaceDocumentChunks(ctx context.Context, docID string, chunks []models.DocumentChunk) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", docID).Delete(&models.DocumentChunk{}).Error; err != nil {
		slog.Error("Failed to clear document chunks", "error", err, "document_id", docID)
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		slog.Error("Failed to create document chunks", "error", err, "document_id", docID)
		return err
	}
	slog.Info("Document chunks stored", "document_id", docID, "count", len(chunks))
	return nil
}

// GetCompletedChunks returns chunks from fully analyzed documents only
func (r *GORMRepository) GetCompletedChunks(ctx context.Context) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.status = ? AND documents.deleted_at IS NULL", models.DocumentCompleted).
		Find(&chunks).Error
	if err != nil {
		slog.Error("Failed to get document chunks", "error", err)
		return nil, err
	}
	return chunks, nil
}
