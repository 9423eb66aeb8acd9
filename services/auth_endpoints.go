package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyeonsu/sagebook/backend/models"
)

type AuthEndpoints struct {
	authService *AuthService
	oauthFlow   *GoogleOAuthFlow
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func NewAuthEndpoints(authService *AuthService, oauthFlow *GoogleOAuthFlow) *AuthEndpoints {
	return &AuthEndpoints{
		authService: authService,
		oauthFlow:   oauthFlow,
	}
}

func (e *AuthEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", e.SignupHandler)
		r.Post("/login", e.LoginHandler)

		if e.oauthFlow != nil {
			r.Get("/google", e.oauthFlow.RedirectHandler)
			r.Get("/google/callback", e.oauthFlow.CallbackHandler)
		}

		r.Group(func(r chi.Router) {
			r.Use(e.authService.Middleware)
			r.Get("/me", e.MeHandler)
		})
	})
}

func (req *SignupRequest) validate() error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return ErrValidation
	}
	if len(req.Password) < 6 {
		return ErrValidation
	}
	if strings.TrimSpace(req.Name) == "" {
		return ErrValidation
	}
	return nil
}

func (e *AuthEndpoints) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	user, err := e.authService.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		slog.Error("Signup failed", "error", err, "email", req.Email)
		writeDomainError(w, err)
		return
	}

	token, err := e.authService.IssueToken(user.ID, user.Email)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (e *AuthEndpoints) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrValidation.Error())
		return
	}

	user, err := e.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Warn("Login failed", "error", err, "email", req.Email)
		writeDomainError(w, err)
		return
	}

	token, err := e.authService.IssueToken(user.ID, user.Email)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// MeHandler returns the authenticated user's current profile. The middleware
// re-reads storage, so the fields here reflect the database rather than the
// signed claim.
func (e *AuthEndpoints) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// decodeStrict rejects bodies with unknown fields before they reach business
// logic
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
