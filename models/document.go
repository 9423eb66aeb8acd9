package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document analysis lifecycle.
const (
	DocumentPending   = "pending"
	DocumentAnalyzing = "analyzing"
	DocumentCompleted = "completed"
	DocumentError     = "error"
)

// Document is an uploaded file tracked through the analysis pipeline.
// The raw bytes live in object storage under StoragePath.
type Document struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Filename    string         `gorm:"size:500;not null" json:"filename"`
	StoragePath string         `gorm:"size:500;not null" json:"-"`
	Status      string         `gorm:"not null;default:'pending';check:status IN ('pending', 'analyzing', 'completed', 'error')" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID" json:"-"`
}

// DocumentChunk is one embedded slice of an analyzed document, retrieved at
// chat time by vector similarity. Embedding is a JSON-encoded float array.
type DocumentChunk struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID string         `gorm:"type:uuid;not null;index" json:"document_id"`
	UserID     string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Seq        int            `gorm:"not null" json:"seq"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	Embedding  datatypes.JSON `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`

	// Relationships
	Document Document `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
}

// BeforeCreate assigns the ID so the model works across database engines
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// BeforeCreate assigns the ID so the model works across database engines
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
