package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerifyToken(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)

	token, err := auth.IssueToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user id %q, got %q", "user-1", claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("expected email %q, got %q", "user@example.com", claims.Email)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 || remaining > TokenExpiry {
		t.Errorf("expected expiry within %v, got %v remaining", TokenExpiry, remaining)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)

	// Token signed with the right secret but already past expiry
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		UserID: "user-1",
		Email:  "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := auth.VerifyToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyToken_Invalid(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.VerifyToken(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAuthService(repo, "a-different-secret")
		token, err := other.IssueToken("user-1", "user@example.com")
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if _, err := auth.VerifyToken(token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid, got %v", err)
		}
	})
}

func TestSignup(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)
	ctx := context.Background()

	user, err := auth.Signup(ctx, "new@example.com", "password123", "New User")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.ID == "" {
		t.Error("expected user id to be assigned")
	}
	if user.Password == "password123" {
		t.Error("password stored in plaintext")
	}

	t.Run("duplicate email", func(t *testing.T) {
		_, err := auth.Signup(ctx, "new@example.com", "otherpass", "Imposter")
		if !errors.Is(err, ErrUserExists) {
			t.Errorf("expected ErrUserExists, got %v", err)
		}
	})
}

func TestLogin(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)
	ctx := context.Background()

	signup, err := auth.Signup(ctx, "login@example.com", "password123", "Login User")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	t.Run("correct credentials", func(t *testing.T) {
		user, err := auth.Login(ctx, "login@example.com", "password123")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if user.ID != signup.ID {
			t.Errorf("expected user %q, got %q", signup.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Login(ctx, "login@example.com", "wrongpass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := auth.Login(ctx, "ghost@example.com", "password123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("oauth-only account", func(t *testing.T) {
		_, err := auth.UpsertGoogleUser(ctx, "google-sub-1", "oauth@example.com", "OAuth User", "")
		if err != nil {
			t.Fatalf("UpsertGoogleUser() error = %v", err)
		}
		_, err = auth.Login(ctx, "oauth@example.com", "whatever")
		if !errors.Is(err, ErrOAuthOnly) {
			t.Errorf("expected ErrOAuthOnly, got %v", err)
		}
	})
}

func TestUpsertGoogleUser(t *testing.T) {
	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)
	ctx := context.Background()

	created, err := auth.UpsertGoogleUser(ctx, "sub-42", "g@example.com", "First Name", "https://avatar/1.png")
	if err != nil {
		t.Fatalf("UpsertGoogleUser() error = %v", err)
	}
	if created.GoogleID == nil || *created.GoogleID != "sub-42" {
		t.Fatalf("expected google id to be stored, got %v", created.GoogleID)
	}
	if created.HasPassword() {
		t.Error("oauth account should have no password hash")
	}

	// Second login with the same subject refreshes profile fields in place
	updated, err := auth.UpsertGoogleUser(ctx, "sub-42", "g@example.com", "Renamed", "https://avatar/2.png")
	if err != nil {
		t.Fatalf("UpsertGoogleUser() error = %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("expected same user, got %q and %q", created.ID, updated.ID)
	}
	if updated.Name != "Renamed" || updated.AvatarURL != "https://avatar/2.png" {
		t.Errorf("profile fields not refreshed: %+v", updated)
	}
}
