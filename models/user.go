package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is created on signup or on first Google login. A user always has at
// least one of Password or GoogleID set.
type User struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"size:255" json:"-"`    // Hashed password (excluded from JSON)
	GoogleID  *string        `gorm:"uniqueIndex" json:"-"` // NULL for password-only accounts
	Name      string         `gorm:"size:255" json:"name,omitempty"`
	AvatarURL string         `gorm:"size:500" json:"avatar_url,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Sessions  []ChatSession `gorm:"foreignKey:UserID" json:"sessions,omitempty"`
	Documents []Document    `gorm:"foreignKey:UserID" json:"documents,omitempty"`
}

// BeforeCreate assigns the ID so the model works across database engines
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// HasPassword reports whether the account can log in with email/password.
// Accounts created via Google OAuth only have no password hash.
func (u *User) HasPassword() bool {
	return u.Password != ""
}
