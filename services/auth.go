package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hyeonsu/sagebook/backend/models"
	"github.com/hyeonsu/sagebook/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// TokenExpiry is how long a bearer token stays valid. There is no refresh
// mechanism; expired callers must re-authenticate.
const TokenExpiry = time.Hour

// AuthService issues and verifies bearer tokens and resolves identities from
// email/password credentials or Google OAuth profiles.
type AuthService struct {
	repo        *repository.GORMRepository
	jwtSecret   []byte
	tokenExpiry time.Duration
}

type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(repo *repository.GORMRepository, jwtSecret string) *AuthService {
	return &AuthService{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: TokenExpiry,
	}
}

// IssueToken mints a signed token binding the user id and email
func (s *AuthService) IssueToken(userID, email string) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyToken checks signature and expiry and returns the embedded claims
func (s *AuthService) VerifyToken(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Signup creates a new email/password user
func (s *AuthService) Signup(ctx context.Context, email, password, name string) (*models.User, error) {
	existingUser, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hashedPassword),
		Name:     name,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		// A concurrent signup may have won the race; the email unique index
		// rejects the loser.
		if dup, dupErr := s.repo.GetUserByEmail(ctx, email); dupErr == nil && dup != nil {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User signed up", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login authenticates an email/password user
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if !user.HasPassword() {
		return nil, ErrOAuthOnly
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	slog.Info("User logged in", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// UpsertGoogleUser creates a user on first Google login, keyed on the Google
// profile id, and refreshes name/avatar on subsequent logins
func (s *AuthService) UpsertGoogleUser(ctx context.Context, googleID, email, name, avatarURL string) (*models.User, error) {
	user, err := s.repo.GetUserByGoogleID(ctx, googleID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up google user: %w", err)
	}

	if user != nil {
		user.Name = name
		user.AvatarURL = avatarURL
		if err := s.repo.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update google user: %w", err)
		}
		return user, nil
	}

	user = &models.User{
		Email:     email,
		GoogleID:  &googleID,
		Name:      name,
		AvatarURL: avatarURL,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		// Retried upsert for the race where two callbacks create the same
		// identity concurrently.
		if dup, dupErr := s.repo.GetUserByGoogleID(ctx, googleID); dupErr == nil && dup != nil {
			return dup, nil
		}
		return nil, fmt.Errorf("failed to create google user: %w", err)
	}

	slog.Info("Google user created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// bearerToken extracts the token from an Authorization header
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Middleware authorizes protected routes with a bearer token. A missing
// header is 401, a bad or expired token is 403. The user is re-read from
// storage so protected handlers always see current profile fields.
func (s *AuthService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := s.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusForbidden, ErrTokenInvalid.Error())
			return
		}

		user, err := s.repo.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			slog.Error("Failed to load user for token", "error", err, "user_id", claims.UserID)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if user == nil {
			writeError(w, http.StatusForbidden, ErrTokenInvalid.Error())
			return
		}

		ctx := context.WithValue(r.Context(), "user", user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
