package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newAuthRouter(t *testing.T) (*chi.Mux, *AuthService) {
	t.Helper()

	repo, _ := setupTestDB(t)
	auth := NewAuthService(repo, testJWTSecret)
	endpoints := NewAuthEndpoints(auth, nil)

	r := chi.NewRouter()
	endpoints.RegisterRoutes(r)
	return r, auth
}

func TestSignupHandler(t *testing.T) {
	r, _ := newAuthRouter(t)

	t.Run("valid signup", func(t *testing.T) {
		body := `{"email":"sign@example.com","password":"password123","name":"Signer"}`
		req := httptest.NewRequest("POST", "/auth/signup", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp AuthResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Token == "" {
			t.Error("expected a token in the response")
		}
		if resp.User == nil || resp.User.Email != "sign@example.com" {
			t.Errorf("expected user in response, got %+v", resp.User)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		body := `{"email":"sign@example.com","password":"password123","name":"Signer"}`
		req := httptest.NewRequest("POST", "/auth/signup", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for duplicate email, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "user_exists") {
			t.Errorf("expected user_exists reason, got %s", w.Body.String())
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"malformed email", `{"email":"not-an-email","password":"password123","name":"X"}`},
		{"short password", `{"email":"short@example.com","password":"12345","name":"X"}`},
		{"blank name", `{"email":"blank@example.com","password":"password123","name":"  "}`},
		{"unknown field", `{"email":"extra@example.com","password":"password123","name":"X","admin":true}`},
		{"not json", `email=a@b.c`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/signup", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	r, auth := newAuthRouter(t)
	signupTestUser(t, auth, "known@example.com")

	t.Run("correct credentials", func(t *testing.T) {
		body := `{"email":"known@example.com","password":"password123"}`
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp AuthResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Token == "" {
			t.Error("expected a token in the response")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		body := `{"email":"known@example.com","password":"nope-nope"}`
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "invalid_credentials") {
			t.Errorf("expected invalid_credentials reason, got %s", w.Body.String())
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"known@example.com"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestMeHandler(t *testing.T) {
	r, auth := newAuthRouter(t)
	user, token := signupTestUser(t, auth, "me@example.com")

	t.Run("no authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/me", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		req := addBearer(httptest.NewRequest("GET", "/auth/me", nil), "garbage")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "invalid_token") {
			t.Errorf("expected invalid_token reason, got %s", w.Body.String())
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := addBearer(httptest.NewRequest("GET", "/auth/me", nil), token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), user.ID) {
			t.Errorf("expected response to carry user %s, got %s", user.ID, w.Body.String())
		}
		// Password hashes never leave the server
		if strings.Contains(w.Body.String(), "password") {
			t.Errorf("response leaks password field: %s", w.Body.String())
		}
	})

	t.Run("token for a deleted user", func(t *testing.T) {
		orphanToken, err := auth.IssueToken("no-such-user", "ghost@example.com")
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		req := addBearer(httptest.NewRequest("GET", "/auth/me", nil), orphanToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403 for orphaned token, got %d", w.Code)
		}
	})
}
