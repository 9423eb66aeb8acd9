package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyeonsu/sagebook/backend/repository"
	"github.com/hyeonsu/sagebook/backend/storage"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config            *Config
	gormDB            *repository.GORMRepository
	conversation      *repository.ConversationRepository
	rawDB             *gorm.DB
	objectStore       storage.ObjectStore
	llmClient         *LLMClient
	retrievalService  *RetrievalService
	analyzer          *DocumentAnalyzer
	authService       *AuthService
	oauthFlow         *GoogleOAuthFlow
	authEndpoints     *AuthEndpoints
	sessionEndpoints  *SessionEndpoints
	chatEndpoints     *ChatEndpoints
	documentEndpoints *DocumentEndpoints
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{config: config}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(repo *repository.GORMRepository, conversation *repository.ConversationRepository, rawDB *gorm.DB) {
	s.gormDB = repo
	s.conversation = conversation
	s.rawDB = rawDB
}

// InitializeServices initializes all server services. Optional subsystems
// (Google OAuth, document storage) are wired only when configured.
func (s *Server) InitializeServices() error {
	if s.config.LLM.BaseURL != "" {
		s.llmClient = NewLLMClient(s.config.LLM.BaseURL, s.config.LLM.APIKey, s.config.LLM.EmbeddingModel)
		slog.Info("LLM client initialized", "base_url", s.config.LLM.BaseURL)
	}

	if s.config.JWT.Secret != "" && s.gormDB != nil {
		s.authService = NewAuthService(s.gormDB, s.config.JWT.Secret)
		slog.Info("Authentication service initialized")
	} else {
		slog.Warn("JWT secret or database missing, authentication disabled")
	}

	if s.authService != nil && s.config.OAuth.GoogleClientID != "" && s.config.Redis.Addr != "" {
		states := NewStateStore(s.config.Redis.Addr, s.config.Redis.Password)
		s.oauthFlow = NewGoogleOAuthFlow(s.config.OAuth, s.config.Client.URL, s.authService, states)
		slog.Info("Google OAuth flow initialized")
	}

	if s.authService != nil {
		s.authEndpoints = NewAuthEndpoints(s.authService, s.oauthFlow)
		s.sessionEndpoints = NewSessionEndpoints(s.gormDB, s.conversation)
	}

	if s.gormDB != nil && s.llmClient != nil {
		s.retrievalService = NewRetrievalService(s.gormDB, s.llmClient)
		s.chatEndpoints = NewChatEndpoints(s.gormDB, s.conversation, s.llmClient, s.retrievalService, s.config.LLM.DefaultModel)
		slog.Info("Chat orchestrator initialized", "default_model", s.config.LLM.DefaultModel)
	}

	if s.config.Storage.Endpoint != "" && s.gormDB != nil && s.llmClient != nil {
		store, err := storage.NewMinioStore(
			s.config.Storage.Endpoint,
			s.config.Storage.AccessKey,
			s.config.Storage.SecretKey,
			s.config.Storage.Bucket,
			s.config.Storage.UseSSL,
		)
		if err != nil {
			return err
		}
		s.objectStore = store
		s.analyzer = NewDocumentAnalyzer(s.gormDB, s.objectStore, s.llmClient)
		s.documentEndpoints = NewDocumentEndpoints(s.gormDB, s.objectStore, s.analyzer, s.config.Storage.MaxUploadSize)
		slog.Info("Document registry initialized", "bucket", s.config.Storage.Bucket)
	}

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// Authentication routes
	if s.authEndpoints != nil {
		s.authEndpoints.RegisterRoutes(r)
	}

	// Protected routes
	if s.authService != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)

			if s.sessionEndpoints != nil {
				s.sessionEndpoints.RegisterRoutes(r)
			}
			if s.chatEndpoints != nil {
				s.chatEndpoints.RegisterRoutes(r)
			}
			if s.documentEndpoints != nil {
				s.documentEndpoints.RegisterRoutes(r)
			}
		})
	}

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err == nil {
			if err := sqlDB.Ping(); err != nil {
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}
