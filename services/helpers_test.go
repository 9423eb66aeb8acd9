package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "test-secret"

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) (*repository.GORMRepository, *repository.ConversationRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return repo, repository.NewConversationRepository(db)
}

func signupTestUser(t *testing.T, auth *AuthService, email string) (*models.User, string) {
	t.Helper()

	user, err := auth.Signup(context.Background(), email, "password123", "Test User")
	if err != nil {
		t.Fatalf("failed to sign up test user: %v", err)
	}
	token, err := auth.IssueToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return user, token
}

func addBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}
