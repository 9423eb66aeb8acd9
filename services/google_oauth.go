package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const stateTTL = 10 * time.Minute

// StateStore holds single-use OAuth flow nonces in Redis with a short TTL.
// The nonce is purely server-held and independent of the bearer token.
type StateStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewStateStore(addr, password string) *StateStore {
	return &StateStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		keyPrefix: "sagebook:oauth:state:",
		ttl:       stateTTL,
	}
}

// Issue creates and stores a fresh nonce
func (s *StateStore) Issue(ctx context.Context) (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	state := hex.EncodeToString(bytes)

	if err := s.client.Set(ctx, s.keyPrefix+state, "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume atomically checks and deletes a nonce so it can be used only once
func (s *StateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	_, err := s.client.GetDel(ctx, s.keyPrefix+state).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}

// googleProfile is the subset of the userinfo response we consume
type googleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleOAuthFlow drives the authorization-code redirect flow: issue a state
// nonce, send the browser to the consent screen, exchange the callback grant
// for a profile, upsert the user, and hand the client a bearer token.
type GoogleOAuthFlow struct {
	oauthConfig *oauth2.Config
	authService *AuthService
	states      *StateStore
	clientURL   string
	userinfoURL string
}

func NewGoogleOAuthFlow(cfg OAuthConfig, clientURL string, authService *AuthService, states *StateStore) *GoogleOAuthFlow {
	return &GoogleOAuthFlow{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		authService: authService,
		states:      states,
		clientURL:   clientURL,
		userinfoURL: googleUserinfoURL,
	}
}

// RedirectHandler sends the browser to the Google consent screen
func (f *GoogleOAuthFlow) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	state, err := f.states.Issue(r.Context())
	if err != nil {
		slog.Error("Failed to issue oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	http.Redirect(w, r, f.oauthConfig.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler finishes the flow and redirects the browser back to the
// client with the token embedded in the callback URL
func (f *GoogleOAuthFlow) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ok, err := f.states.Consume(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		slog.Error("Failed to check oauth state", "error", err)
		f.redirectFailure(w, r)
		return
	}
	if !ok {
		slog.Warn("OAuth callback with unknown or reused state")
		f.redirectFailure(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("OAuth callback without authorization code", "error_param", r.URL.Query().Get("error"))
		f.redirectFailure(w, r)
		return
	}

	exchanged, err := f.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("OAuth code exchange failed", "error", err)
		f.redirectFailure(w, r)
		return
	}

	profile, err := f.fetchProfile(r.Context(), exchanged)
	if err != nil {
		slog.Error("Failed to fetch google profile", "error", err)
		f.redirectFailure(w, r)
		return
	}

	user, err := f.authService.UpsertGoogleUser(r.Context(), profile.ID, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		slog.Error("Failed to upsert google user", "error", err)
		f.redirectFailure(w, r)
		return
	}

	token, err := f.authService.IssueToken(user.ID, user.Email)
	if err != nil {
		slog.Error("Failed to issue token after oauth", "error", err, "user_id", user.ID)
		f.redirectFailure(w, r)
		return
	}

	slog.Info("Google login completed", "user_id", user.ID, "email", user.Email)
	http.Redirect(w, r, f.clientURL+"/auth-callback?token="+url.QueryEscape(token), http.StatusFound)
}

func (f *GoogleOAuthFlow) fetchProfile(ctx context.Context, token *oauth2.Token) (*googleProfile, error) {
	client := f.oauthConfig.Client(ctx, token)
	resp, err := client.Get(f.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("userinfo response missing profile id")
	}
	return &profile, nil
}

func (f *GoogleOAuthFlow) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, f.clientURL+"/login-failed", http.StatusFound)
}
