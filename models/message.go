package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message roles. RoleError exists for client-side failure bubbles and is never
// persisted by the server.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// ChatMessage is a single immutable message in a session, ordered by CreatedAt
type ChatMessage struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string         `gorm:"type:uuid;not null;index" json:"session_id"`
	Role       string         `gorm:"type:varchar(50);not null;check:role IN ('user', 'assistant', 'error')" json:"role"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	TokenCount *int           `json:"token_count,omitempty"` // NULL when the upstream did not report usage
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session *ChatSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// TableName returns the table name for the ChatMessage model
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns the ID so the model works across database engines
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
